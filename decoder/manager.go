package decoder

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/ieee0824/lvcsr-go/frontend"
	"github.com/ieee0824/lvcsr-go/internal/mathutil"
	"github.com/ieee0824/lvcsr-go/linguist"
	"github.com/ieee0824/lvcsr-go/result"
	"github.com/ieee0824/lvcsr-go/scorer"
	"github.com/ieee0824/lvcsr-go/search"
)

// State is the manager lifecycle phase.
type State int

const (
	Idle State = iota
	Allocated
	Running
	Drained
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Allocated:
		return "allocated"
	case Running:
		return "running"
	case Drained:
		return "drained"
	}
	return "unknown"
}

// Manager runs the frame-synchronous token-passing search over one
// utterance at a time. It is single-threaded: parallelism happens only
// inside the batched scorer. Decoding several utterances concurrently
// requires independent managers.
type Manager struct {
	cfg     Config
	graph   linguist.SearchGraph
	scorer  *scorer.BatchScorer
	source  frontend.Source
	logMath mathutil.LogMath
	log     *slog.Logger

	listFactory search.Factory
	wordFactory search.Factory
	pruner      search.Pruner

	state         State
	active        search.ActiveList
	alternates    *search.AlternateHypothesisManager
	finals        []*search.Token
	lastBest      *search.Token
	frameDuration time.Duration
	done          bool
	uttErr        error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger. nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithActiveListFactory overrides the main active list implementation.
func WithActiveListFactory(f search.Factory) Option {
	return func(m *Manager) { m.listFactory = f }
}

// WithPruner overrides the pruning policy.
func WithPruner(p search.Pruner) Option {
	return func(m *Manager) { m.pruner = p }
}

// NewManager wires a search manager. Allocate must be called before
// recognition.
func NewManager(graph linguist.SearchGraph, sc scorer.Scorer, source frontend.Source, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:     cfg,
		graph:   graph,
		scorer:  &scorer.BatchScorer{Scorer: sc, Workers: cfg.ScorerWorkers},
		source:  source,
		logMath: mathutil.NewLogMath(cfg.LogBase),
		log:     slog.Default(),
		listFactory: search.PartitionActiveListFactory{
			AbsoluteBeamWidth:    cfg.AbsoluteBeamWidth,
			LogRelativeBeamWidth: cfg.RelativeBeamWidth,
		},
		wordFactory: search.WordActiveListFactory{
			AbsoluteBeamWidth:    cfg.WordBeamAbsolute,
			LogRelativeBeamWidth: cfg.WordBeamRelative,
			MaxPathsPerWord:      cfg.MaxPathsPerWord,
			MaxFillerWords:       cfg.MaxFillerWords,
		},
		pruner: search.SimplePruner{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LogMath returns the manager's log base context.
func (m *Manager) LogMath() mathutil.LogMath { return m.logMath }

// State returns the lifecycle phase.
func (m *Manager) State() State { return m.state }

// Allocate validates the configuration and acquires scorer resources.
func (m *Manager) Allocate() error {
	if err := m.cfg.Validate(); err != nil {
		return err
	}
	if err := m.scorer.Scorer.Allocate(); err != nil {
		return err
	}
	m.state = Allocated
	return nil
}

// Deallocate releases the active lists and scorer resources.
func (m *Manager) Deallocate() {
	if m.state == Running {
		m.StopRecognition()
	}
	m.scorer.Scorer.Deallocate()
	m.active = nil
	m.alternates = nil
	m.finals = nil
	m.state = Idle
}

// StartRecognition seeds the search with a single token at the graph's
// initial state.
func (m *Manager) StartRecognition() error {
	switch m.state {
	case Idle:
		return ErrNotAllocated
	case Running:
		return ErrRunning
	}
	m.alternates = search.NewAlternateHypothesisManager(m.cfg.AltHypMaxEdges)
	m.active = m.listFactory.New(m.alternates)
	m.active.Add(search.NewInitialToken(m.graph.InitialState()))
	m.finals = nil
	m.lastBest = nil
	m.done = false
	m.uttErr = nil
	m.frameDuration = frontend.DefaultFrameDuration
	m.pruner.StartRecognition()
	m.state = Running
	return nil
}

// StopRecognition ends the utterance; the manager can start a new one.
func (m *Manager) StopRecognition() {
	if m.state != Running {
		return
	}
	m.pruner.StopRecognition()
	m.state = Drained
}

// Recognize consumes up to blockSize feature frames and returns the
// recognition result so far, final once end-of-data was reached. A zero
// blockSize is a no-op returning nil. After an utterance error the result
// carries the partial hypotheses and the error.
func (m *Manager) Recognize(blockSize int) (*result.Result, error) {
	if m.state != Running {
		return nil, ErrNotRunning
	}
	if blockSize <= 0 {
		return nil, nil
	}
	if blockSize > m.cfg.FeatureBlockSize {
		blockSize = m.cfg.FeatureBlockSize
	}

	for i := 0; i < blockSize && !m.done; i++ {
		if err := m.step(); err != nil {
			m.done = true
			m.uttErr = err
			m.log.Error("utterance aborted", "error", err)
		}
	}
	m.log.Debug("block complete",
		"active", m.active.Size(), "final", len(m.finals),
		"best", m.active.BestScore(), "done", m.done)

	actives := m.active.Tokens()
	if len(actives) == 0 && m.lastBest != nil {
		// the whole frontier was pruned away (e.g. every acoustic score
		// collapsed); surface the best partial hypothesis instead
		actives = []*search.Token{m.lastBest}
	}
	res := result.New(m.finals, actives, m.alternates,
		m.done, m.frameDuration, m.logMath, m.uttErr)
	if m.done {
		m.StopRecognition()
	}
	return res, m.uttErr
}

// step advances the search by one frame: grow the frontier through
// non-emitting arcs, score the emitting tokens, expand them into the next
// frame's list and prune.
func (m *Manager) step() error {
	m.finals = nil
	if err := m.growNonEmitting(); err != nil {
		return err
	}
	if b := m.active.Best(); b != nil {
		m.lastBest = b
	}

	f, err := m.source.Next()
	if errors.Is(err, io.EOF) {
		m.done = true
		return nil
	}
	if err != nil {
		return &ScorerError{Frame: f.Index, Err: err}
	}
	if f.Duration != 0 {
		m.frameDuration = f.Duration
	}

	emitting := make([]*search.Token, 0, m.active.Size())
	entryThreshold := m.active.BeamThreshold()
	for _, t := range m.active.Tokens() {
		if !t.IsEmitting() {
			continue
		}
		// entry-time pruning on the predecessor's score is only legal
		// when strict pruning is off
		if !m.cfg.StrictPruning && t.Score() < entryThreshold {
			continue
		}
		emitting = append(emitting, t)
	}

	best, err := m.scorer.CalculateScoresAndNormalize(f, emitting)
	if err != nil {
		return &ScorerError{Frame: f.Index, Err: err}
	}

	threshold := mathutil.LogZero
	if best != nil && m.cfg.RelativeBeamWidth < 0 {
		threshold = best.Score() + m.cfg.RelativeBeamWidth
	}

	next := m.listFactory.New(m.alternates)
	for _, t := range emitting {
		if t.Score() < threshold {
			continue
		}
		for _, arc := range t.State().Arcs() {
			next.Add(search.NewToken(t, arc.Dest, arc.LanguageScore, arc.InsertionScore))
		}
	}
	m.active = m.pruner.Prune(next)
	return nil
}

// growNonEmitting expands tokens on non-emitting states until the frontier
// is stable. Word-boundary tokens pass through the word active list so the
// word beams and per-word quotas apply before their successors are grown.
// The round count is capped to defend against non-emitting graph cycles.
func (m *Manager) growNonEmitting() error {
	var worklist []*search.Token
	words := m.wordFactory.New(m.alternates)
	for _, t := range m.active.Tokens() {
		if t.IsEmitting() {
			continue
		}
		if t.IsWord() {
			words.Add(t)
		} else {
			worklist = append(worklist, t)
		}
	}

	for depth := 0; ; depth++ {
		if depth > m.cfg.GrowDepthLimit {
			return &GraphError{Frame: m.currentFrame(), Depth: m.cfg.GrowDepthLimit}
		}
		if len(worklist) == 0 {
			if words.Size() == 0 {
				return nil
			}
			committed := words.Commit()
			words = m.wordFactory.New(m.alternates)
			worklist = append(worklist, committed.Tokens()...)
			continue
		}

		var next []*search.Token
		for _, t := range worklist {
			if t.IsFinal() {
				m.finals = append(m.finals, t)
			}
			for _, arc := range t.State().Arcs() {
				child := search.NewToken(t, arc.Dest, arc.LanguageScore, arc.InsertionScore)
				if !child.IsEmitting() && child.IsWord() {
					words.Add(child)
					continue
				}
				if m.active.Add(child) && !child.IsEmitting() {
					next = append(next, child)
				}
			}
		}
		worklist = next
	}
}

func (m *Manager) currentFrame() int {
	if m.active == nil || m.active.Best() == nil {
		return -1
	}
	return m.active.Best().Frame()
}
