// Package decoder drives the frame-synchronous token-passing search: it
// grows the active frontier through the linguist's graph, scores emitting
// tokens against feature frames, prunes with the configured beams, and
// surfaces results.
package decoder

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds beam search parameters. All beam widths operate on
// log-domain scores; relative widths must be <= 0, with 0 disabling the
// beam.
type Config struct {
	// AbsoluteBeamWidth caps the active list size after pruning.
	AbsoluteBeamWidth int `yaml:"absolute_beam_width"`

	// RelativeBeamWidth drops tokens scoring below best + this log delta.
	RelativeBeamWidth float64 `yaml:"relative_beam_width"`

	// WordBeamAbsolute and WordBeamRelative bound the word-boundary list.
	WordBeamAbsolute int     `yaml:"word_beam_absolute"`
	WordBeamRelative float64 `yaml:"word_beam_relative"`

	// MaxPathsPerWord caps tokens kept per distinct word label. 0 disables.
	MaxPathsPerWord int `yaml:"max_paths_per_word"`

	// MaxFillerWords caps filler-word tokens kept per frame.
	MaxFillerWords int `yaml:"max_filler_words"`

	// FeatureBlockSize caps the number of frames one Manager.Recognize call
	// consumes; larger block sizes are clamped to it. Recognizer.Recognize
	// uses it as its block size.
	FeatureBlockSize int `yaml:"feature_block_size"`

	// StrictPruning forbids pruning a token before its acoustic score for
	// the current frame has been computed. When disabled, entry-time
	// pruning on the predecessor's score is allowed.
	StrictPruning bool `yaml:"strict_pruning"`

	// AltHypMaxEdges caps archived alternate predecessors per token.
	AltHypMaxEdges int `yaml:"alt_hyp_max_edges"`

	// LogBase sets the global log-math base. 0 selects natural logs.
	LogBase float64 `yaml:"log_base"`

	// GrowDepthLimit bounds the non-emitting expansion fixpoint, guarding
	// against cycles on silence or null arcs.
	GrowDepthLimit int `yaml:"grow_depth_limit"`

	// ScorerWorkers is the goroutine count for batched acoustic scoring.
	// 0 selects GOMAXPROCS, 1 runs inline.
	ScorerWorkers int `yaml:"scorer_workers"`
}

// DefaultConfig returns reasonable default parameters.
func DefaultConfig() Config {
	return Config{
		AbsoluteBeamWidth: 2000,
		RelativeBeamWidth: 0,
		WordBeamAbsolute:  200,
		WordBeamRelative:  0,
		MaxPathsPerWord:   0,
		MaxFillerWords:    1,
		FeatureBlockSize:  math.MaxInt32,
		StrictPruning:     true,
		AltHypMaxEdges:    100,
		LogBase:           0,
		GrowDepthLimit:    100,
		ScorerWorkers:     1,
	}
}

// Validate checks the configuration, returning a ConfigError for the first
// invalid key.
func (c Config) Validate() error {
	if c.AbsoluteBeamWidth <= 0 {
		return &ConfigError{Key: "absolute_beam_width", Reason: "must be positive"}
	}
	if c.RelativeBeamWidth > 0 {
		return &ConfigError{Key: "relative_beam_width", Reason: "must be a log value <= 0"}
	}
	if c.WordBeamAbsolute <= 0 {
		return &ConfigError{Key: "word_beam_absolute", Reason: "must be positive"}
	}
	if c.WordBeamRelative > 0 {
		return &ConfigError{Key: "word_beam_relative", Reason: "must be a log value <= 0"}
	}
	if c.MaxPathsPerWord < 0 {
		return &ConfigError{Key: "max_paths_per_word", Reason: "must be >= 0"}
	}
	if c.MaxFillerWords < 0 {
		return &ConfigError{Key: "max_filler_words", Reason: "must be >= 0"}
	}
	if c.FeatureBlockSize <= 0 {
		return &ConfigError{Key: "feature_block_size", Reason: "must be positive"}
	}
	if c.AltHypMaxEdges < 1 {
		return &ConfigError{Key: "alt_hyp_max_edges", Reason: "must be >= 1"}
	}
	if c.LogBase < 0 || c.LogBase == 1 {
		return &ConfigError{Key: "log_base", Reason: "must be 0 (natural) or a valid log base"}
	}
	if c.GrowDepthLimit <= 0 {
		return &ConfigError{Key: "grow_depth_limit", Reason: "must be positive"}
	}
	return nil
}

// LoadConfig reads a YAML configuration file, overlaying the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
