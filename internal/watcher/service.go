package watcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"hwbot/internal/eventbus"
	"hwbot/internal/homework"
	"hwbot/internal/notifier"
	"hwbot/internal/schedule"
	"hwbot/internal/storage"
	"hwbot/internal/transport"
	"hwbot/pkg/logx"
)

// Service owns the tracker and runs cycles.
//
// Cycle and Run must not be called concurrently with each other; Snapshot and
// Apply are safe from any goroutine.
type Service struct {
	fetcher  Fetcher
	notifier Notifier
	store    storage.Store
	bus      eventbus.Bus
	log      logx.Logger

	cycleMu sync.Mutex // serializes cycles

	mu       sync.Mutex
	cfg      Config
	sched    activations
	tracker  *homework.Tracker
	cursor   int64
	restored bool
	snap     Snapshot

	// Last forwarded error text; cleared by a successful poll.
	lastReported string

	reload chan struct{}
	now    func() time.Time
}

// activations is the part of schedule.Schedule the loop needs.
type activations interface {
	Next(t time.Time) time.Time
	String() string
}

func New(cfg Config, fetcher Fetcher, notifier Notifier, store storage.Store, bus eventbus.Bus, log logx.Logger) (*Service, error) {
	if fetcher == nil {
		return nil, errors.New("watcher: fetcher is nil")
	}
	if notifier == nil {
		return nil, errors.New("watcher: notifier is nil")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = withDefaults(cfg)
	sc, err := schedule.Build(cfg.Schedule, cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("poller schedule: %w", err)
	}

	s := &Service{
		fetcher:  fetcher,
		notifier: notifier,
		store:    store,
		bus:      bus,
		log:      log,
		cfg:      cfg,
		sched:    sc,
		tracker:  homework.NewTracker(nil),
		reload:   make(chan struct{}, 1),
		now:      time.Now,
	}
	s.cursor = cfg.FromDate
	if s.cursor <= 0 {
		s.cursor = s.now().Unix()
	}
	s.snap.Cursor = s.cursor
	s.snap.Schedule = sc.String()
	return s, nil
}

func withDefaults(cfg Config) Config {
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = DefaultSchedule
	}
	return cfg
}

// Apply swaps the live settings. The running loop re-arms its timer with the
// new schedule. The initial cursor is not touched.
func (s *Service) Apply(cfg Config) error {
	cfg = withDefaults(cfg)
	sc, err := schedule.Build(cfg.Schedule, cfg.Timezone)
	if err != nil {
		return fmt.Errorf("poller schedule: %w", err)
	}
	s.mu.Lock()
	changed := s.sched.String() != sc.String() || s.cfg.Timezone != cfg.Timezone
	cfg.FromDate = s.cfg.FromDate
	s.cfg = cfg
	s.sched = sc
	s.snap.Schedule = sc.String()
	s.mu.Unlock()

	if changed {
		s.log.Info("poll schedule updated", logx.String("schedule", sc.String()))
		select {
		case s.reload <- struct{}{}:
		default:
		}
	}
	return nil
}

// Restore loads persisted state, if any. Run calls it once; it is exported for
// callers that drive Cycle directly.
func (s *Service) Restore(ctx context.Context) error {
	s.mu.Lock()
	if s.restored {
		s.mu.Unlock()
		return nil
	}
	s.restored = true
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	st, ok, err := s.store.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if !ok {
		return nil
	}

	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	s.mu.Lock()
	s.tracker = homework.NewTracker(st.Last)
	if st.Cursor > 0 {
		s.cursor = st.Cursor
	}
	s.snap.Last = s.tracker.Last()
	s.snap.Cursor = s.cursor
	s.mu.Unlock()

	fields := []logx.Field{logx.Int64("cursor", st.Cursor)}
	if st.Last != nil {
		fields = append(fields, logx.String("homework", st.Last.HomeworkName), logx.String("status", string(st.Last.Status)))
	}
	s.log.Info("state restored", fields...)
	return nil
}

// Run performs cycles until ctx is cancelled. It always returns ctx.Err().
func (s *Service) Run(ctx context.Context) error {
	if err := s.Restore(ctx); err != nil {
		s.log.Warn("state restore failed, starting fresh", logx.Err(err))
	}

	s.mu.Lock()
	runOnStart := s.cfg.RunOnStart
	s.snap.Running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.snap.Running = false
		s.snap.NextRunAt = time.Time{}
		s.mu.Unlock()
	}()

	s.log.Info("watcher started", logx.String("schedule", s.Snapshot().Schedule), logx.Bool("run_on_start", runOnStart))
	if runOnStart {
		s.Cycle(ctx)
	}

	for {
		s.mu.Lock()
		next := s.sched.Next(s.now())
		s.snap.NextRunAt = next
		s.mu.Unlock()

		if next.IsZero() {
			// No activation left: idle until a new schedule or shutdown.
			s.log.Warn("schedule has no next run; polling paused", logx.String("schedule", s.Snapshot().Schedule))
			select {
			case <-ctx.Done():
				s.log.Info("watcher stopped")
				return ctx.Err()
			case <-s.reload:
				continue
			}
		}

		t := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			t.Stop()
			s.log.Info("watcher stopped")
			return ctx.Err()
		case <-s.reload:
			t.Stop()
			continue
		case <-t.C:
			s.Cycle(ctx)
		}
	}
}

// Cycle performs one poll -> compare -> notify pass.
func (s *Service) Cycle(ctx context.Context) (res CycleResult) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	started := s.now()
	s.mu.Lock()
	cfg := s.cfg
	cursor := s.cursor
	tracker := s.tracker
	s.mu.Unlock()

	cctx := ctx
	if cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, cfg.CycleTimeout)
		defer cancel()
	}

	res = CycleResult{Cursor: cursor}
	defer func() {
		res.Took = s.now().Sub(started)
		s.finish(res, started)
	}()

	resp, err := s.fetcher.Fetch(cctx, cursor)
	if err != nil {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}
		res.Err = err
		s.log.Error("poll failed", logx.Err(err), logx.Int64("from_date", cursor))
		res.ErrorReported = s.reportError(ctx, cfg, err)
		return res
	}

	// The endpoint answered with a valid document: the outage, if any, is over.
	s.mu.Lock()
	s.lastReported = ""
	s.mu.Unlock()

	rec := resp.Latest()
	res.Record = rec
	if rec == nil {
		s.log.Debug("no updates", logx.Int64("from_date", cursor))
		return res
	}

	if tracker.Changed(rec) {
		res.Changed = true
		eventbus.Publish(s.bus, eventbus.StatusChanged, CycleEvent{Homework: rec.HomeworkName, Status: string(rec.Status), Changed: true, Cursor: cursor})
		s.log.Info("homework status changed",
			logx.String("homework", rec.HomeworkName),
			logx.String("status", string(rec.Status)),
		)

		err := s.notifier.Notify(cctx, transport.Notification{
			Kind:   transport.KindStatus,
			Target: cfg.Target,
			Text:   rec.Message(),
		})
		switch {
		case errors.Is(err, notifier.ErrDisabled):
			// Delivery is switched off: the change is handled, just not sent.
			s.log.Info("notifier disabled; status change not sent", logx.String("homework", rec.HomeworkName))
			tracker.Commit(*rec)
		case err != nil:
			// Not committed: the change is re-detected and re-sent next cycle.
			res.Err = err
			if ctx.Err() == nil {
				s.log.Error("status notification failed", logx.Err(err), logx.String("homework", rec.HomeworkName))
			}
			return res
		default:
			res.Notified = true
			tracker.Commit(*rec)
		}
	} else {
		s.log.Debug("status unchanged", logx.String("homework", rec.HomeworkName), logx.String("status", string(rec.Status)))
	}

	if resp.CurrentDate > 0 {
		cursor = resp.CurrentDate
	}
	res.Cursor = cursor
	s.mu.Lock()
	s.cursor = cursor
	s.mu.Unlock()

	if err := s.persist(cctx, homework.State{Last: tracker.Last(), Cursor: cursor, UpdatedAt: s.now()}); err != nil {
		res.Err = err
		s.log.Error("state save failed", logx.Err(err))
		res.ErrorReported = s.reportError(ctx, cfg, err)
	}
	return res
}

func (s *Service) persist(ctx context.Context, st homework.State) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.SaveState(ctx, st); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// reportError forwards err to the chat unless the same text was already
// forwarded since the last successful poll.
func (s *Service) reportError(ctx context.Context, cfg Config, err error) bool {
	if !cfg.ReportErrors || ctx.Err() != nil {
		return false
	}
	msg := errorPrefix + err.Error()

	s.mu.Lock()
	dup := s.lastReported == msg
	s.mu.Unlock()
	if dup {
		eventbus.Publish(s.bus, eventbus.ErrorSuppressed, map[string]string{"error": err.Error()})
		s.log.Debug("error already reported", logx.Err(err))
		return false
	}

	nerr := s.notifier.Notify(ctx, transport.Notification{
		Kind:   transport.KindError,
		Target: cfg.Target,
		Text:   msg,
	})
	if nerr != nil {
		s.log.Error("error report failed", logx.Err(nerr))
		return false
	}
	s.mu.Lock()
	s.lastReported = msg
	s.mu.Unlock()
	eventbus.Publish(s.bus, eventbus.ErrorReported, map[string]string{"error": err.Error()})
	return true
}

func (s *Service) finish(res CycleResult, at time.Time) {
	s.mu.Lock()
	s.snap.Cycles++
	s.snap.LastCycleAt = at
	s.snap.Cursor = s.cursor
	s.snap.Last = s.tracker.Last()
	if res.Changed {
		s.snap.Changes++
	}
	if res.Notified {
		s.snap.Notified++
	}
	if res.Err != nil {
		s.snap.Failures++
		s.snap.LastError = res.Err.Error()
		s.snap.LastErrorAt = at
	} else {
		s.snap.LastOKAt = at
		s.snap.LastError = ""
	}
	s.mu.Unlock()

	ev := CycleEvent{Changed: res.Changed, Notified: res.Notified, Cursor: res.Cursor, Took: res.Took}
	if res.Record != nil {
		ev.Homework = res.Record.HomeworkName
		ev.Status = string(res.Record.Status)
	}
	if res.Err != nil {
		ev.Error = res.Err.Error()
		eventbus.Publish(s.bus, eventbus.CycleFailed, ev)
		return
	}
	eventbus.Publish(s.bus, eventbus.CycleOK, ev)
}

// Snapshot returns a copy of the loop state.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.snap
	if out.Last != nil {
		cp := *out.Last
		out.Last = &cp
	}
	return out
}
