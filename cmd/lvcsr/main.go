package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ieee0824/lvcsr-go/internal/mathutil"
	"github.com/ieee0824/lvcsr-go/result"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type latticeFlags struct {
	logBase  float64
	frameMs  int
	mergeAdd bool
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "lvcsr",
		Short:   "Word lattice tooling for the lvcsr decoder",
		Version: version,
	}
	root.AddCommand(newLatticeCmd())
	return root
}

func newLatticeCmd() *cobra.Command {
	flags := &latticeFlags{}
	cmd := &cobra.Command{
		Use:   "lattice",
		Short: "Inspect and transform SLF word lattices",
	}
	cmd.PersistentFlags().Float64Var(&flags.logBase, "log-base", 0, "log base of lattice scores (0 = natural)")
	cmd.PersistentFlags().IntVar(&flags.frameMs, "frame-ms", 10, "feature frame duration in milliseconds")

	show := &cobra.Command{
		Use:   "show <lattice.slf>",
		Short: "Print nodes and edges of a lattice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, err := loadLattice(args[0], flags)
			if err != nil {
				return err
			}
			return showLattice(cmd, lat)
		},
	}

	optimize := &cobra.Command{
		Use:   "optimize <in.slf> <out.slf>",
		Short: "Determinize and minimize a lattice",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, err := loadLattice(args[0], flags)
			if err != nil {
				return err
			}
			before := lat.NodeCount()
			opt := result.NewOptimizer(lat)
			if flags.mergeAdd {
				opt.SetMergePolicy(result.MergeLogAdd)
			}
			opt.Optimize()
			if err := saveLattice(args[1], lat); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "nodes: %d -> %d, edges: %d\n",
				before, lat.NodeCount(), lat.EdgeCount())
			return nil
		},
	}
	optimize.Flags().BoolVar(&flags.mergeAdd, "merge-logadd", false,
		"merge parallel edge scores with logAdd instead of max")

	posterior := &cobra.Command{
		Use:   "posterior <lattice.slf>",
		Short: "Print word posteriors from a forward-backward pass",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, err := loadLattice(args[0], flags)
			if err != nil {
				return err
			}
			if err := lat.ComputePosteriors(); err != nil {
				return err
			}
			lm := lat.LogMath()
			for _, n := range lat.Nodes() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.3f\t%.3f\t%.4f\n",
					n.Word, lat.BeginTime(n).Seconds(), lat.EndTime(n).Seconds(),
					lm.LogToLinear(n.Posterior()))
			}
			return nil
		},
	}

	cmd.AddCommand(show, optimize, posterior)
	return cmd
}

func loadLattice(path string, flags *latticeFlags) (*result.Lattice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open lattice: %w", err)
	}
	defer f.Close()
	lm := mathutil.NewLogMath(flags.logBase)
	lat, err := result.ReadSLF(f, lm, time.Duration(flags.frameMs)*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("load lattice: %w", err)
	}
	return lat, nil
}

func saveLattice(path string, lat *result.Lattice) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create lattice: %w", err)
	}
	defer f.Close()
	if err := lat.WriteSLF(f); err != nil {
		return fmt.Errorf("write lattice: %w", err)
	}
	return nil
}

func showLattice(cmd *cobra.Command, lat *result.Lattice) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "nodes=%d edges=%d\n", lat.NodeCount(), lat.EdgeCount())
	for _, n := range lat.Nodes() {
		marker := ""
		if n == lat.Initial() {
			marker = " (initial)"
		}
		if n == lat.Terminal() {
			marker = " (terminal)"
		}
		fmt.Fprintf(out, "node %d\t%s\tt=%.3f%s\n", n.ID(), n.Word, lat.EndTime(n).Seconds(), marker)
	}
	for _, e := range lat.Edges() {
		fmt.Fprintf(out, "edge %d->%d\ta=%.3f\tl=%.3f\n",
			e.From.ID(), e.To.ID(), e.AcousticScore, e.LMScore)
	}
	return nil
}
