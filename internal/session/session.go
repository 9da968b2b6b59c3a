// Package session orchestrates a complete matching run: parallel ingest,
// coarse/fine DTW refinement, event selection, plane triangulation and
// Earth-arrival prediction.
//
// The session owns the spacecraft map for its window. Records are built
// once and treated as immutable afterwards; the per-craft offset estimates
// are the only state the refinement loop overwrites, and only from the
// orchestrating goroutine.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/helioswarm/shockfront/internal/align"
	"github.com/helioswarm/shockfront/internal/front"
	"github.com/helioswarm/shockfront/internal/health"
	"github.com/helioswarm/shockfront/internal/metrics"
	"github.com/helioswarm/shockfront/internal/series"
	"github.com/helioswarm/shockfront/internal/shock"
)

// Loader supplies spacecraft records. ingest.Archive satisfies it; tests
// supply in-memory fixtures.
type Loader interface {
	align.Reloader
	LoadAll(ctx context.Context, craft []string, start, end time.Time, earthCraft []string, earthPad time.Duration) (map[string]*series.Record, error)
}

// Config describes one analysis run.
type Config struct {
	Reference  string   // the trainer spacecraft all others align against
	Craft      []string // exactly three non-reference craft used for triangulation
	EarthCraft []string // additional targets for arrival prediction
	Start, End time.Time

	Events    int           // number of event instants to triangulate
	EdgeGuard time.Duration // window edges excluded from event selection
	EarthPad  time.Duration // forward shift for near-Earth craft windows

	Align  align.Config
	Front  front.Config
	Scorer shock.Scorer
	SigWin time.Duration // rolling window for jump significances
}

// DefaultConfig fills the tuned defaults around a window and craft set.
func DefaultConfig(reference string, craft, earthCraft []string, start, end time.Time) Config {
	return Config{
		Reference:  reference,
		Craft:      craft,
		EarthCraft: earthCraft,
		Start:      start,
		End:        end,
		Events:     1,
		EdgeGuard:  45 * time.Minute,
		EarthPad:   time.Hour,
		Align:      align.DefaultConfig(),
		Front:      front.DefaultConfig(),
		Scorer:     shock.DefaultScorer(),
		SigWin:     10 * time.Minute,
	}
}

// Results of one run.
type Results struct {
	Reference string
	Offsets   map[string]align.OffsetSeries
	Events    []front.Event
	// ShockProb is the classifier probability at each selected event
	// instant, diagnostic only.
	ShockProb map[time.Time]float64
}

// Session runs the pipeline. Stateless between runs: two Run calls on
// identical inputs produce identical results.
type Session struct {
	cfg    Config
	loader Loader
	logger *slog.Logger
	state  *health.State // optional
}

// New creates a session.
func New(cfg Config, loader Loader, logger *slog.Logger) *Session {
	return &Session{cfg: cfg, loader: loader, logger: logger}
}

// WithHealth attaches a health state updated as the pipeline advances.
func (s *Session) WithHealth(state *health.State) *Session {
	s.state = state
	return s
}

func (s *Session) phase(name string) {
	if s.state != nil {
		s.state.SetPhase(name)
	}
}

// Run executes the full pipeline.
func (s *Session) Run(ctx context.Context) (*Results, error) {
	if len(s.cfg.Craft) != 3 {
		return nil, fmt.Errorf("session: triangulation needs exactly 3 non-reference craft, got %d", len(s.cfg.Craft))
	}

	s.phase("ingest")
	names := append([]string{s.cfg.Reference}, s.cfg.Craft...)
	records, err := s.loader.LoadAll(ctx, names, s.cfg.Start, s.cfg.End, s.cfg.EarthCraft, s.cfg.EarthPad)
	if err != nil {
		return nil, fmt.Errorf("session: loading spacecraft archives: %w", err)
	}
	for name, rec := range records {
		metrics.SetCraftSamples(name, rec.Len())
	}

	ref, ok := records[s.cfg.Reference]
	if !ok || ref.Len() < 2 {
		return nil, fmt.Errorf("session: reference craft %s has no usable data", s.cfg.Reference)
	}
	comps := make(map[string]*series.Record, len(records)-1)
	for name, rec := range records {
		if name != s.cfg.Reference {
			comps[name] = rec
		}
	}

	s.phase("align")
	controller := align.NewController(s.loader, s.cfg.Align, s.logger)
	aligned, err := controller.Refine(ctx, ref, comps, s.cfg.Start, s.cfg.End)
	if err != nil {
		return nil, fmt.Errorf("session: refinement: %w", err)
	}

	s.phase("triangulate")
	eventTimes := shock.TopEvents(ref, s.cfg.Events, s.cfg.EdgeGuard)
	if len(eventTimes) == 0 {
		s.logger.Warn("no event candidates in window")
	}

	tr := front.NewTriangulator(s.cfg.Front, s.logger)
	events := tr.Solve(eventTimes, ref, aligned, s.cfg.Craft, s.cfg.EarthCraft)

	for _, ev := range events {
		if ev.Reused {
			metrics.CountEvent("reused")
		} else {
			metrics.CountEvent("solved")
		}
		for range ev.Predictions {
			metrics.CountPrediction()
		}
	}
	for i := 0; i < len(eventTimes)-len(events); i++ {
		metrics.CountEvent("skipped")
	}

	res := &Results{
		Reference: s.cfg.Reference,
		Offsets:   make(map[string]align.OffsetSeries, len(aligned)),
		Events:    events,
		ShockProb: s.scoreEvents(ref, eventTimes),
	}
	for name, r := range aligned {
		res.Offsets[name] = r.Offsets
	}

	s.phase("done")
	return res, nil
}

// scoreEvents applies the trained classifier at each event instant.
func (s *Session) scoreEvents(ref *series.Record, eventTimes []time.Time) map[time.Time]float64 {
	if len(eventTimes) == 0 {
		return nil
	}
	sigSpeed := shock.Significance(ref, series.Speed, s.cfg.SigWin)
	sigNp := shock.Significance(ref, series.Np, s.cfg.SigWin)
	sigVth := shock.Significance(ref, series.Vth, s.cfg.SigWin)

	out := make(map[time.Time]float64, len(eventTimes))
	for _, t := range eventTimes {
		i, ok := ref.NearestIndex(t, 0)
		if !ok {
			continue
		}
		p := s.cfg.Scorer.Probability(sigSpeed[i], sigNp[i], sigVth[i])
		out[t] = p
		s.logger.Info("event candidate", "at", t, "shock_probability", fmt.Sprintf("%.3f", p))
	}
	return out
}
