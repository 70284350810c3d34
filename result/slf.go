package result

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ieee0824/lvcsr-go/internal/mathutil"
)

// WriteSLF writes the lattice in HTK SLF form: a header with node and link
// counts, one node line per word hypothesis, one link line per edge. Times
// are seconds with millisecond precision.
func (l *Lattice) WriteSLF(w io.Writer) error {
	bw := bufio.NewWriter(w)
	nodes := l.Nodes()
	seq := make(map[int]int, len(nodes))
	for i, n := range nodes {
		seq[n.id] = i
	}

	fmt.Fprintf(bw, "VERSION=1.0\n")
	fmt.Fprintf(bw, "N=%d\tL=%d\n", len(nodes), l.EdgeCount())
	for i, n := range nodes {
		fmt.Fprintf(bw, "I=%d\tt=%.3f\tW=%s\n", i, l.EndTime(n).Seconds(), n.Word)
	}
	j := 0
	for _, e := range l.Edges() {
		fmt.Fprintf(bw, "J=%d\tS=%d\tE=%d\ta=%.3f\tl=%.3f\n",
			j, seq[e.From.id], seq[e.To.id], e.AcousticScore, e.LMScore)
		j++
	}
	return bw.Flush()
}

// ReadSLF parses an SLF lattice written by WriteSLF. The initial node is
// the unique node with no entering edges, the terminal the unique node with
// no leaving edges; a single-node lattice is its own initial and terminal.
func ReadSLF(r io.Reader, logMath mathutil.LogMath, frameDuration time.Duration) (*Lattice, error) {
	l := NewLattice(logMath, frameDuration)
	byIndex := make(map[int]*Node)

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields, err := parseSLFFields(text)
		if err != nil {
			return nil, fmt.Errorf("slf line %d: %w", line, err)
		}
		switch {
		case fields.has("I"):
			idx, err := fields.intVal("I")
			if err != nil {
				return nil, fmt.Errorf("slf line %d: %w", line, err)
			}
			t, err := fields.floatVal("t")
			if err != nil {
				return nil, fmt.Errorf("slf line %d: %w", line, err)
			}
			frame := int(t*float64(time.Second)/float64(l.frameDuration)+0.5) - 1
			n := l.AddNode(fields.val("W"), false, frame, frame)
			byIndex[idx] = n
		case fields.has("J"):
			src, err := fields.intVal("S")
			if err != nil {
				return nil, fmt.Errorf("slf line %d: %w", line, err)
			}
			dst, err := fields.intVal("E")
			if err != nil {
				return nil, fmt.Errorf("slf line %d: %w", line, err)
			}
			a, err := fields.floatVal("a")
			if err != nil {
				return nil, fmt.Errorf("slf line %d: %w", line, err)
			}
			lm, err := fields.floatVal("l")
			if err != nil {
				return nil, fmt.Errorf("slf line %d: %w", line, err)
			}
			from, ok := byIndex[src]
			if !ok {
				return nil, fmt.Errorf("slf line %d: unknown node %d", line, src)
			}
			to, ok := byIndex[dst]
			if !ok {
				return nil, fmt.Errorf("slf line %d: unknown node %d", line, dst)
			}
			l.AddEdge(from, to, a, lm)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read slf: %w", err)
	}
	if len(l.nodes) == 0 {
		return nil, fmt.Errorf("read slf: no nodes")
	}

	for _, n := range l.Nodes() {
		if len(n.entering) == 0 && l.initial == nil {
			l.initial = n
		}
		if len(n.leaving) == 0 {
			l.terminal = n
		}
	}
	if l.initial == nil {
		l.initial = l.Nodes()[0]
	}
	if l.terminal == nil {
		l.terminal = l.Nodes()[len(l.nodes)-1]
	}
	return l, nil
}

type slfFields map[string]string

func parseSLFFields(line string) (slfFields, error) {
	f := make(slfFields)
	for _, tok := range strings.Fields(line) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			return nil, fmt.Errorf("malformed field %q", tok)
		}
		f[k] = v
	}
	return f, nil
}

func (f slfFields) has(k string) bool { _, ok := f[k]; return ok }

func (f slfFields) val(k string) string { return f[k] }

func (f slfFields) intVal(k string) (int, error) {
	v, ok := f[k]
	if !ok {
		return 0, fmt.Errorf("missing field %s", k)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", k, err)
	}
	return n, nil
}

func (f slfFields) floatVal(k string) (float64, error) {
	v, ok := f[k]
	if !ok {
		return 0, fmt.Errorf("missing field %s", k)
	}
	x, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", k, err)
	}
	return x, nil
}
