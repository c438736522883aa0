// Package rebuild decides when the backend should rebuild the user's taste
// profile. Ratings are counted; once enough accumulate a rebuild is
// requested, at most once per cooldown window.
package rebuild

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/reelwise/reelwise/internal/config"
	"github.com/reelwise/reelwise/internal/metrics"
)

// StateKey is the KV key holding the persisted scheduler state.
const StateKey = "taste_rebuild_state"

// State is the position of the scheduler in its lifecycle.
type State string

const (
	StateIdle            State = "idle"
	StateCountingRatings State = "counting_ratings"
	StateCooldown        State = "cooldown"
	StatePendingRebuild  State = "pending_rebuild"
	StateInFlight        State = "in_flight"
)

// KV persists string values.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Rebuilder asks the backend for a taste rebuild.
type Rebuilder interface {
	RebuildTaste(ctx context.Context) error
}

// Persisted is the only scheduler state that survives a restart.
type Persisted struct {
	Count         int       `json:"count"`
	LastRebuildAt time.Time `json:"lastRebuildAt"`
	Pending       bool      `json:"pending"`
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	State State `json:"state"`
	Persisted
}

// Scheduler is the rebuild state machine. It implements the watchlist's
// rating recorder.
type Scheduler struct {
	kv        KV
	rebuilder Rebuilder
	threshold int
	cooldown  time.Duration
	logger    zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	loaded   bool
	data     Persisted
	inFlight bool
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler from the rebuild configuration.
func NewScheduler(kv KV, rebuilder Rebuilder, cfg config.RebuildConfig, logger zerolog.Logger) *Scheduler {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 5
	}
	return &Scheduler{
		kv:        kv,
		rebuilder: rebuilder,
		threshold: threshold,
		cooldown:  cfg.Cooldown(),
		logger:    logger.With().Str("component", "rebuild").Logger(),
		now:       time.Now,
	}
}

// RecordRating counts one saved rating. Reaching the threshold starts a
// rebuild in the background, or marks one pending while in cooldown.
func (s *Scheduler) RecordRating(ctx context.Context) {
	s.mu.Lock()
	s.loadLocked(ctx)
	s.data.Count++
	start := false
	if s.data.Count >= s.threshold {
		if s.inCooldownLocked() || s.inFlight {
			s.data.Pending = true
		} else {
			start = true
			s.inFlight = true
		}
	}
	s.saveLocked(ctx)
	count := s.data.Count
	s.mu.Unlock()

	s.logger.Debug().Int("count", count).Int("threshold", s.threshold).Msg("Recorded rating")

	if start {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(context.WithoutCancel(ctx), count)
		}()
	}
}

// Tick fires a pending rebuild once the cooldown has elapsed. It is driven
// by the job scheduler and runs the rebuild synchronously.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.Lock()
	s.loadLocked(ctx)
	due := (s.data.Pending || s.data.Count >= s.threshold) && !s.inCooldownLocked() && !s.inFlight
	if due {
		s.inFlight = true
	}
	count := s.data.Count
	s.mu.Unlock()

	if due {
		s.run(ctx, count)
	}
}

// Status returns the current state and persisted counters.
func (s *Scheduler) Status(ctx context.Context) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)
	return Status{State: s.stateLocked(), Persisted: s.data}
}

// Wait blocks until background rebuilds have returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// run performs one rebuild covering the first counted ratings. Ratings
// recorded while the call is in flight carry over to the next cycle.
func (s *Scheduler) run(ctx context.Context, counted int) {
	s.logger.Info().Msg("Requesting taste profile rebuild")
	err := s.rebuilder.RebuildTaste(ctx)

	s.mu.Lock()
	s.inFlight = false
	if err != nil {
		s.data.Pending = true
	} else {
		s.data.Count = max(0, s.data.Count-counted)
		s.data.LastRebuildAt = s.now()
		s.data.Pending = s.data.Count >= s.threshold
	}
	s.saveLocked(ctx)
	s.mu.Unlock()

	if err != nil {
		metrics.TasteRebuilds.WithLabelValues("failed").Inc()
		s.logger.Warn().Err(err).Msg("Taste profile rebuild failed, will retry on next tick")
		return
	}
	metrics.TasteRebuilds.WithLabelValues("succeeded").Inc()
	s.logger.Info().Msg("Taste profile rebuild requested")
}

func (s *Scheduler) stateLocked() State {
	switch {
	case s.inFlight:
		return StateInFlight
	case s.data.Pending:
		return StatePendingRebuild
	case s.inCooldownLocked():
		return StateCooldown
	case s.data.Count > 0:
		return StateCountingRatings
	default:
		return StateIdle
	}
}

func (s *Scheduler) inCooldownLocked() bool {
	if s.data.LastRebuildAt.IsZero() {
		return false
	}
	return s.now().Sub(s.data.LastRebuildAt) < s.cooldown
}

func (s *Scheduler) loadLocked(ctx context.Context) {
	if s.loaded {
		return
	}
	s.loaded = true

	raw, ok, err := s.kv.Get(ctx, StateKey)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load rebuild state")
		return
	}
	if !ok || raw == "" {
		return
	}
	var data Persisted
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		s.logger.Warn().Err(err).Msg("Discarding unreadable rebuild state")
		return
	}
	s.data = data
}

func (s *Scheduler) saveLocked(ctx context.Context) {
	raw, err := json.Marshal(s.data)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode rebuild state")
		return
	}
	if err := s.kv.Set(ctx, StateKey, string(raw)); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist rebuild state")
	}
}
