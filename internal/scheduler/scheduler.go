package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hako/durafmt"
	"github.com/remeh/sizedwaitgroup"
	"github.com/rs/zerolog"

	"github.com/Rin0913/devicewatch/internal/status"
)

const (
	DefaultInterval       = 10 * time.Second
	DefaultProbeTimeout   = 2 * time.Second
	DefaultMaxConcurrency = 50
)

// ErrCyclePanic is returned by Run when a cycle panicked. The supervisor
// restarts the scheduler; statuses in the store survive the restart.
var ErrCyclePanic = errors.New("scheduler: cycle panicked")

// Roster supplies the devices to probe. It is read once per cycle.
type Roster interface {
	Targets(ctx context.Context) ([]status.Target, error)
}

// Prober answers whether a target is reachable. It must not block longer
// than timeout.
type Prober interface {
	Probe(ctx context.Context, target status.Target, timeout time.Duration) bool
}

type Config struct {
	Interval       time.Duration
	ProbeTimeout   time.Duration
	MaxConcurrency int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	return c
}

// CycleStats summarises one pass over the roster.
type CycleStats struct {
	Targets     int
	Probed      int
	Transitions int
	Duration    time.Duration
	Err         error
}

// Scheduler runs the polling cycles and owns the write side of the status
// store. Cycles never overlap: when one runs past the interval the next one
// starts as soon as it drains.
type Scheduler struct {
	roster Roster
	prober Prober
	store  *status.Store
	cfg    Config
	log    zerolog.Logger
	now    func() time.Time

	cycles   atomic.Uint64
	overruns atomic.Uint64
}

func New(roster Roster, prober Prober, store *status.Store, cfg Config, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		roster: roster,
		prober: prober,
		store:  store,
		cfg:    cfg.withDefaults(),
		log:    log,
		now:    time.Now,
	}
}

// Run loops until ctx is cancelled and then returns ctx.Err(). A panic in a
// cycle ends the loop with ErrCyclePanic.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().
		Dur("interval", s.cfg.Interval).
		Dur("probe_timeout", s.cfg.ProbeTimeout).
		Int("max_concurrency", s.cfg.MaxConcurrency).
		Msg("liveness scheduler started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("liveness scheduler stopped")
			return ctx.Err()
		case <-timer.C:
		}

		start := time.Now()
		stats, err := s.safeCycle(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("liveness scheduler aborted")
			return err
		}
		if ctx.Err() != nil {
			continue
		}

		elapsed := time.Since(start)
		wait := s.cfg.Interval - elapsed
		if wait <= 0 {
			s.overruns.Add(1)
			s.log.Warn().
				Dur("elapsed", elapsed).
				Dur("interval", s.cfg.Interval).
				Int("targets", stats.Targets).
				Msg("cycle overran interval, starting next cycle immediately")
			wait = 0
		}
		timer.Reset(wait)
	}
}

func (s *Scheduler) safeCycle(ctx context.Context) (stats CycleStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Debug().Bytes("stack", debug.Stack()).Msg("cycle panic stack")
			err = fmt.Errorf("%w: %v", ErrCyclePanic, r)
		}
	}()
	return s.RunCycle(ctx), nil
}

// RunCycle performs one full pass: read the roster, track new devices, then
// probe every device with at most MaxConcurrency probes in flight. Each
// result is applied to the store as soon as it arrives.
func (s *Scheduler) RunCycle(ctx context.Context) CycleStats {
	start := time.Now()
	n := s.cycles.Add(1)

	gen := s.store.Generation()
	s.store.Prune(gen)

	targets, err := s.roster.Targets(ctx)
	if err != nil {
		s.log.Error().Err(err).Uint64("cycle", n).Msg("roster fetch failed, skipping cycle")
		return CycleStats{Err: err, Duration: time.Since(start)}
	}

	// every device is visible as checking before the first probe goes out
	pending := make([]status.Target, 0, len(targets))
	seen := make(map[status.DeviceID]struct{}, len(targets))
	for _, t := range targets {
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		if s.store.EnsureTrackedSince(gen, t.ID) {
			pending = append(pending, t)
		}
	}

	var (
		probed, transitions atomic.Int64
		panicOnce           sync.Once
		panicked            any
	)

	if len(pending) > 0 {
		swg := sizedwaitgroup.New(min(len(pending), s.cfg.MaxConcurrency))
		for _, t := range pending {
			if err := swg.AddWithContext(ctx); err != nil {
				break
			}
			go func(t status.Target) {
				defer swg.Done()
				defer func() {
					if r := recover(); r != nil {
						panicOnce.Do(func() { panicked = r })
					}
				}()
				if s.probeOne(ctx, t) {
					transitions.Add(1)
				}
				probed.Add(1)
			}(t)
		}
		swg.Wait()
	}
	// surfaced on the cycle's goroutine once every probe has drained
	if panicked != nil {
		panic(panicked)
	}

	stats := CycleStats{
		Targets:     len(pending),
		Probed:      int(probed.Load()),
		Transitions: int(transitions.Load()),
		Duration:    time.Since(start),
	}
	s.log.Debug().
		Uint64("cycle", n).
		Int("targets", stats.Targets).
		Int("probed", stats.Probed).
		Int("transitions", stats.Transitions).
		Dur("duration", stats.Duration).
		Msg("cycle complete")

	return stats
}

func (s *Scheduler) probeOne(ctx context.Context, t status.Target) bool {
	reachable := s.prober.Probe(ctx, t, s.cfg.ProbeTimeout)
	if ctx.Err() != nil {
		// abandoned on shutdown; the result says nothing about the device
		return false
	}

	now := s.now()
	prev, changed := s.store.RecordResult(t.ID, reachable, now)
	if !changed {
		return false
	}

	ev := s.log.Info().
		Str("device_id", t.ID).
		Str("address", t.Address).
		Stringer("from", prev.Status).
		Stringer("to", status.FromReachable(reachable))
	if prev.Status != status.Checking {
		ev = ev.Str("after", durafmt.Parse(now.Sub(prev.ChangedAt)).LimitFirstN(2).String())
	}
	ev.Msg("device status changed")

	return true
}

// Snapshot is the read side exposed to the query surface.
func (s *Scheduler) Snapshot() map[status.DeviceID]status.Record {
	return s.store.Snapshot()
}

// NotifyDeviceRemoved drops the status of a deleted device. Probes still in
// flight for it are discarded when they finish.
func (s *Scheduler) NotifyDeviceRemoved(id status.DeviceID) {
	s.store.Evict(id)
	s.log.Debug().Str("device_id", id).Msg("device status evicted")
}

func (s *Scheduler) Cycles() uint64 {
	return s.cycles.Load()
}

func (s *Scheduler) Overruns() uint64 {
	return s.overruns.Load()
}
