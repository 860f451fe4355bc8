// Package pipeline runs the fetch, render, publish and advance loop.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/filipviz/juicebox-tweeter/internal/auth"
	"github.com/filipviz/juicebox-tweeter/internal/gate"
	"github.com/filipviz/juicebox-tweeter/internal/metadata"
	"github.com/filipviz/juicebox-tweeter/internal/metrics"
	"github.com/filipviz/juicebox-tweeter/internal/model"
	"github.com/filipviz/juicebox-tweeter/internal/postprocess"
	"github.com/filipviz/juicebox-tweeter/internal/render"
	"github.com/filipviz/juicebox-tweeter/internal/source"
	"github.com/filipviz/juicebox-tweeter/internal/store"
)

// Advance policies.
const (
	// AdvanceObserve moves the cursor past every observed event whatever the
	// publish outcome.
	AdvanceObserve = "observe"
	// AdvanceSuccess moves it only past published or filtered events. The
	// first failure holds the cursor for the rest of the batch.
	AdvanceSuccess = "success"
)

type Publisher interface {
	Publish(ctx context.Context, a model.Announcement) (model.Receipt, error)
}

type Deps struct {
	Auth     auth.Authorizer
	Source   source.Source
	Metadata metadata.Resolver
	Names    metadata.NameResolver
	Renderer *render.Renderer
	Filter   *postprocess.Engine
	Gate     Publisher
	Cursor   store.Cursor
	Dedup    *store.Dedup
	Metrics  *metrics.Metrics
}

type Options struct {
	Interval           time.Duration
	AdvancePolicy      string
	ResolveConcurrency int
}

// CycleResult summarises one RunCycle call.
type CycleResult struct {
	Fetched   int
	Published int
	Failed    int
	Filtered  int
	Duplicate int
	Skipped   bool // not authorized; nothing fetched
	Cursor    model.Position
	Err       error // source or persistence failure that ended the cycle
}

type Scheduler struct {
	d    Deps
	opts Options

	// cycle state, touched only by the goroutine running cycles
	cursor model.Position
	ready  bool
	// restored is true while the cursor came from storage (or the initial
	// seed) and this process has not moved it. Ties at the cursor are then
	// assumed handled.
	restored bool
	// held keeps the keys of events handled past a cursor that could not
	// move over them. Unlike Dedup entries they only go once the cursor
	// passes their position.
	held map[string]model.Position
}

func New(d Deps, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 3 * time.Minute
	}
	if opts.AdvancePolicy == "" {
		opts.AdvancePolicy = AdvanceObserve
	}
	if opts.ResolveConcurrency <= 0 {
		opts.ResolveConcurrency = 4
	}
	if d.Names == nil {
		d.Names = metadata.AddressNames{}
	}
	if d.Dedup == nil {
		d.Dedup = store.NewDedup(10000, 24*time.Hour)
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	return &Scheduler{d: d, opts: opts, held: make(map[string]model.Position)}
}

// Run executes a cycle now and then on every tick until ctx is done. Ticks
// that fire while a cycle is running are dropped.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().
		Str("source", s.d.Source.Name()).
		Dur("interval", s.opts.Interval).
		Str("advance_policy", s.opts.AdvancePolicy).
		Msg("pipeline started")
	s.RunCycle(ctx)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Err(ctx.Err()).Msg("pipeline stopping")
			return nil
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle performs one polling cycle. It must not be called concurrently.
func (s *Scheduler) RunCycle(ctx context.Context) CycleResult {
	start := time.Now()
	defer s.d.Metrics.ObserveCycle(start)
	lg := log.With().Str("cycle", uuid.NewString()).Logger()

	authorized := s.d.Auth.IsAuthorized()
	s.d.Metrics.SetAuthorized(authorized)
	if !authorized {
		lg.Info().Msg("not authorized, skipping cycle")
		return CycleResult{Skipped: true, Cursor: s.cursor}
	}

	if err := s.init(ctx); err != nil {
		s.logCycleErr(lg, err, "cursor init failed")
		return CycleResult{Cursor: s.cursor, Err: err}
	}

	res := CycleResult{Cursor: s.cursor}
	events, err := s.d.Source.FetchSince(ctx, s.cursor)
	if err != nil {
		s.d.Metrics.SourceErrors.WithLabelValues(s.d.Source.Name()).Inc()
		s.logCycleErr(lg, err, "fetch failed, cursor untouched")
		res.Err = err
		return res
	}
	s.d.Metrics.LastSuccessTS.SetToCurrentTime()
	s.d.Metrics.EventsFetched.Add(float64(len(events)))

	items := s.triage(events, &res)
	if len(items) == 0 {
		lg.Debug().Uint64("cursor", uint64(s.cursor)).Msg("no new events")
		return res
	}

	s.resolve(ctx, lg, items)
	halted := false
	for _, it := range items {
		l := lg.With().Str("event_id", it.ev.ID).Uint64("position", uint64(it.ev.Position)).Logger()
		ok := true
		if it.dup {
			l.Debug().Msg("already handled")
		} else {
			var stop bool
			ok, stop = s.handle(ctx, l, it, &res)
			if stop {
				break
			}
		}
		if !ok && s.opts.AdvancePolicy == AdvanceSuccess {
			halted = true
		}
		if halted {
			if ok {
				s.held[it.ev.Key()] = it.ev.Position
			}
			continue
		}
		if err := s.advance(ctx, it.ev.Position); err != nil {
			l.Error().Err(err).Msg("cursor write failed, aborting cycle")
			s.held[it.ev.Key()] = it.ev.Position
			res.Err = err
			break
		}
	}
	s.release()
	res.Cursor = s.cursor

	lg.Info().
		Int("fetched", res.Fetched).
		Int("published", res.Published).
		Int("failed", res.Failed).
		Int("filtered", res.Filtered).
		Uint64("cursor", uint64(s.cursor)).
		Dur("took", time.Since(start).Truncate(time.Millisecond)).
		Msg("cycle finished")
	return res
}

func (s *Scheduler) logCycleErr(lg zerolog.Logger, err error, msg string) {
	var ue *source.UnavailableError
	if errors.As(err, &ue) {
		lg.Warn().Err(err).Str("source", ue.Source).Msg(msg)
		return
	}
	lg.Error().Err(err).Msg(msg)
}

// init loads the cursor once. With nothing stored it starts at the source
// head so the backlog is never announced.
func (s *Scheduler) init(ctx context.Context) error {
	if s.ready {
		return nil
	}
	pos, ok, err := s.d.Cursor.Load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		pos, err = s.d.Source.Head(ctx)
		if err != nil {
			return err
		}
		if err := s.d.Cursor.Advance(ctx, pos); err != nil {
			return err
		}
		log.Info().Uint64("cursor", uint64(pos)).Str("source", s.d.Source.Name()).Msg("seeded cursor at source head")
	} else {
		log.Info().Uint64("cursor", uint64(pos)).Str("backend", s.d.Cursor.Name()).Msg("loaded cursor")
	}
	s.cursor, s.ready, s.restored = pos, true, true
	s.d.Metrics.CursorPosition.Set(float64(pos))
	return nil
}

// triage drops events behind the cursor and flags those already handled.
// Ties at a restored cursor are dropped outright; duplicates past the
// cursor are kept so the cursor can still move over them.
func (s *Scheduler) triage(events []model.RawEvent, res *CycleResult) []item {
	out := make([]item, 0, len(events))
	for _, ev := range events {
		if ev.Position < s.cursor {
			continue
		}
		restoredTie := ev.Position == s.cursor && s.restored
		_, held := s.held[ev.Key()]
		if restoredTie || held || s.d.Dedup.Seen(ev.Key()) {
			res.Duplicate++
			s.d.Metrics.Announcements.WithLabelValues(metrics.StatusDuplicate).Inc()
			if restoredTie {
				continue
			}
			out = append(out, item{ev: ev, dup: true})
			continue
		}
		res.Fetched++
		out = append(out, item{ev: ev})
	}
	return out
}

// release forgets held keys the cursor has moved past.
func (s *Scheduler) release() {
	for k, pos := range s.held {
		if pos < s.cursor {
			delete(s.held, k)
		}
	}
}

type item struct {
	ev      model.RawEvent
	dup     bool
	md      model.Metadata
	creator string
}

// resolve fetches metadata and creator names concurrently. Failures are
// soft and leave empty metadata.
func (s *Scheduler) resolve(ctx context.Context, lg zerolog.Logger, items []item) {
	var g errgroup.Group
	g.SetLimit(s.opts.ResolveConcurrency)
	for i := range items {
		if items[i].dup {
			continue
		}
		it := &items[i]
		g.Go(func() error {
			md, err := s.d.Metadata.Resolve(ctx, it.ev.Locator)
			if err != nil {
				s.d.Metrics.MetadataUnavailable.Inc()
				lg.Warn().Err(err).Str("event_id", it.ev.ID).Uint64("position", uint64(it.ev.Position)).Msg("metadata unavailable, using fallback")
			} else if md.Empty() {
				lg.Debug().Str("event_id", it.ev.ID).Msg("metadata has no usable fields")
			}
			it.md = md
			it.creator = s.d.Names.ResolveName(ctx, it.ev.Creator)
			return nil
		})
	}
	_ = g.Wait()
}

// handle renders and publishes one event. ok reports whether it counts as
// done for the success policy; stop ends the batch without advancing.
func (s *Scheduler) handle(ctx context.Context, l zerolog.Logger, it item, res *CycleResult) (ok, stop bool) {
	if reason := s.d.Filter.Deny(it.ev, it.md, it.creator); reason != "" {
		res.Filtered++
		s.d.Metrics.Announcements.WithLabelValues(metrics.StatusFiltered).Inc()
		s.d.Dedup.Mark(it.ev.Key())
		l.Info().Str("reason", reason).Msg("event filtered")
		return true, false
	}

	a := s.d.Renderer.Render(it.ev, it.md, it.creator)
	rec, err := s.d.Gate.Publish(ctx, a)
	switch {
	case errors.Is(err, gate.ErrNotAuthorized):
		// Revoked mid-cycle; leave the rest for after reauthorization.
		s.d.Metrics.Announcements.WithLabelValues(metrics.StatusNotAuthorized).Inc()
		s.d.Metrics.SetAuthorized(false)
		l.Warn().Msg("authorization lost, stopping cycle")
		return false, true
	case err != nil:
		res.Failed++
		s.d.Metrics.Announcements.WithLabelValues(metrics.StatusFailed).Inc()
		l.Error().Err(err).Str("text", a.Text).Msg("publish failed")
		if s.opts.AdvancePolicy == AdvanceObserve {
			s.d.Dedup.Mark(it.ev.Key())
		}
		return false, false
	}
	res.Published++
	s.d.Metrics.Announcements.WithLabelValues(metrics.StatusPublished).Inc()
	s.d.Dedup.Mark(it.ev.Key())
	l.Info().
		Str("receipt", rec.ID).
		Str("sink", rec.Sink).
		Int("width", a.Width).
		Bool("truncated", a.Truncated).
		Msg("announcement published")
	return true, false
}

func (s *Scheduler) advance(ctx context.Context, pos model.Position) error {
	if pos < s.cursor {
		return nil
	}
	if pos > s.cursor {
		if err := s.d.Cursor.Advance(ctx, pos); err != nil {
			return err
		}
		s.cursor = pos
		s.d.Metrics.CursorPosition.Set(float64(pos))
	}
	s.restored = false
	return nil
}
