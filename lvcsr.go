// Package lvcsr is a large-vocabulary continuous speech recognition
// decoder core: a frame-synchronous token-passing beam search over a
// linguist-supplied graph, producing word lattices with timings and
// posterior confidences. Acoustic models, feature extraction and language
// models stay behind the scorer, frontend and linguist contracts.
package lvcsr

import (
	"fmt"
	"log/slog"

	"github.com/ieee0824/lvcsr-go/decoder"
	"github.com/ieee0824/lvcsr-go/frontend"
	"github.com/ieee0824/lvcsr-go/linguist"
	"github.com/ieee0824/lvcsr-go/result"
	"github.com/ieee0824/lvcsr-go/scorer"
	"github.com/ieee0824/lvcsr-go/search"
)

// Recognizer is the top-level decoder facade.
type Recognizer struct {
	Graph  linguist.SearchGraph
	Scorer scorer.Scorer
	Cfg    decoder.Config

	logger      *slog.Logger
	listFactory search.Factory
}

// Option configures a Recognizer.
type Option func(*Recognizer)

// WithConfig sets custom decoder parameters.
func WithConfig(cfg decoder.Config) Option {
	return func(r *Recognizer) { r.Cfg = cfg }
}

// WithConfigFile loads decoder parameters from a YAML file. Read, parse and
// validation errors are returned here, before any Recognizer is built.
func WithConfigFile(path string) (Option, error) {
	cfg, err := decoder.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return WithConfig(cfg), nil
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recognizer) { r.logger = l }
}

// WithActiveListFactory overrides the main active list implementation.
func WithActiveListFactory(f search.Factory) Option {
	return func(r *Recognizer) { r.listFactory = f }
}

// NewRecognizer creates a Recognizer over a search graph and an acoustic
// scorer.
func NewRecognizer(graph linguist.SearchGraph, sc scorer.Scorer, opts ...Option) *Recognizer {
	r := &Recognizer{
		Graph:  graph,
		Scorer: sc,
		Cfg:    decoder.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewManager builds an allocated search manager over a feature source, for
// callers that want block-wise recognition with intermediate results.
// The caller owns the lifecycle from StartRecognition on.
func (r *Recognizer) NewManager(source frontend.Source) (*decoder.Manager, error) {
	var opts []decoder.Option
	if r.logger != nil {
		opts = append(opts, decoder.WithLogger(r.logger))
	}
	if r.listFactory != nil {
		opts = append(opts, decoder.WithActiveListFactory(r.listFactory))
	}
	m := decoder.NewManager(r.Graph, r.Scorer, source, r.Cfg, opts...)
	if err := m.Allocate(); err != nil {
		return nil, fmt.Errorf("allocate decoder: %w", err)
	}
	return m, nil
}

// Recognize drains the feature source and returns the final result.
func (r *Recognizer) Recognize(source frontend.Source) (*result.Result, error) {
	m, err := r.NewManager(source)
	if err != nil {
		return nil, err
	}
	defer m.Deallocate()
	if err := m.StartRecognition(); err != nil {
		return nil, err
	}

	var res *result.Result
	for {
		res, err = m.Recognize(r.Cfg.FeatureBlockSize)
		if err != nil {
			return res, err
		}
		if res == nil || res.IsFinal() {
			break
		}
	}
	m.StopRecognition()
	return res, nil
}

// RecognizeFrames runs recognition over in-memory feature vectors.
func (r *Recognizer) RecognizeFrames(frames [][]float64) (*result.Result, error) {
	return r.Recognize(frontend.NewSliceSource(frames, 0))
}
