// Package watchlist keeps the per-item watchlist state of an explore page and
// mutates the remote watchlist optimistically with rollback on failure.
package watchlist

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelwise/reelwise/internal/backend"
	"github.com/reelwise/reelwise/internal/results"
)

// Controller owns the watchlist entries keyed by media id. A busy entry
// accepts no new mutation until the in-flight one settles.
type Controller struct {
	ctx      context.Context
	cancel   context.CancelFunc
	remote   Remote
	opts     Options
	logger   zerolog.Logger
	listener Listener
	ratings  RatingRecorder

	mu       sync.Mutex
	entries  map[string]*Entry
	// detached holds entries dropped by Reset while a mutation was in
	// flight. Restore reinstates them so the outcome is not lost.
	detached map[string]*Entry

	lookupMu sync.Mutex
	queue    []backend.LookupKey
	queued   map[string]bool
	inFlight map[string]bool
	timer    *time.Timer
	flushes  sync.WaitGroup
	closed   bool
}

// NewController creates a watchlist controller.
func NewController(remote Remote, opts Options, logger zerolog.Logger) *Controller {
	d := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = d.BatchSize
	}
	if opts.Debounce <= 0 {
		opts.Debounce = d.Debounce
	}
	if opts.FlushThreshold <= 0 {
		opts.FlushThreshold = d.FlushThreshold
	}
	if opts.Source == "" {
		opts.Source = d.Source
	}
	if opts.MediaType == "" {
		opts.MediaType = d.MediaType
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		ctx:      ctx,
		cancel:   cancel,
		remote:   remote,
		opts:     opts,
		logger:   logger.With().Str("component", "watchlist").Logger(),
		listener: nopListener{},
		entries:  make(map[string]*Entry),
		detached: make(map[string]*Entry),
		queued:   make(map[string]bool),
		inFlight: make(map[string]bool),
	}
}

// SetListener registers the observer for entry changes.
func (c *Controller) SetListener(l Listener) {
	if l == nil {
		l = nopListener{}
	}
	c.listener = l
}

// SetRatingRecorder registers the observer told about saved ratings.
func (c *Controller) SetRatingRecorder(r RatingRecorder) {
	c.ratings = r
}

// Add puts item on the watchlist with status "want". It is a no-op while the
// entry is loading, already listed or busy.
func (c *Controller) Add(ctx context.Context, item results.Item) error {
	_, err := c.withOptimisticUpdate(ctx, item.MediaID, mutation{
		op: "add",
		eligible: func(e Entry) bool {
			return e.State == StateNotAdded
		},
		apply: func(e *Entry) {
			e.State = StateInList
			e.Status = backend.StatusWant
			e.Rating = nil
		},
		commit: func(ctx context.Context, e Entry) (*backend.WatchlistRecord, error) {
			rec, err := c.remote.CreateWatchlist(ctx, backend.CreateWatchlistRequest{
				MediaID:     item.MediaID,
				MediaType:   e.MediaType,
				Status:      backend.StatusWant,
				Title:       item.Title,
				PosterURL:   item.PosterURL,
				ReleaseYear: item.ReleaseYear,
				Genres:      item.Genres,
				Source:      c.opts.Source,
			})
			if err != nil {
				return nil, err
			}
			if rec == nil || rec.ID == "" {
				return nil, ErrMissingID
			}
			return rec, nil
		},
		confirm: applyRecord,
	})
	return err
}

// SetStatus changes the status of a listed entry. It is a no-op unless the
// entry is listed, idle, has a remote id and the status actually changes.
func (c *Controller) SetStatus(ctx context.Context, mediaID string, status backend.WatchlistStatus) error {
	if !status.Valid() {
		return nil
	}

	_, err := c.withOptimisticUpdate(ctx, mediaID, mutation{
		op: "set_status",
		eligible: func(e Entry) bool {
			return e.State == StateInList && e.ID != "" && e.Status != status
		},
		apply: func(e *Entry) {
			e.Status = status
		},
		commit: func(ctx context.Context, e Entry) (*backend.WatchlistRecord, error) {
			return c.remote.UpdateWatchlistStatus(ctx, e.ID, status)
		},
		confirm: applyRecord,
	})
	return err
}

// Remove deletes a listed entry. The entry keeps its fields while the call
// is in flight and is cleared once the backend confirms.
func (c *Controller) Remove(ctx context.Context, mediaID string) error {
	_, err := c.withOptimisticUpdate(ctx, mediaID, mutation{
		op: "remove",
		eligible: func(e Entry) bool {
			return e.State == StateInList && e.ID != ""
		},
		apply: func(*Entry) {},
		commit: func(ctx context.Context, e Entry) (*backend.WatchlistRecord, error) {
			return nil, c.remote.DeleteWatchlist(ctx, e.ID)
		},
		confirm: func(e *Entry, _ *backend.WatchlistRecord) {
			e.State = StateNotAdded
			e.Status = ""
			e.Rating = nil
			e.ID = ""
		},
	})
	return err
}

// NormalizeRating maps a requested rating onto the 1-10 integer scale.
// Values above 10 clamp to 10 and fractions round to the nearest integer;
// anything that ends up below 1, or NaN, is rejected.
func NormalizeRating(value float64) (int, bool) {
	if math.IsNaN(value) {
		return 0, false
	}
	v := math.Round(math.Min(value, 10))
	if v < 1 {
		return 0, false
	}
	return int(v), true
}

// Rate sets the rating of a listed entry. Invalid values are ignored.
func (c *Controller) Rate(ctx context.Context, mediaID string, value float64) error {
	rating, ok := NormalizeRating(value)
	if !ok {
		return nil
	}

	started, err := c.withOptimisticUpdate(ctx, mediaID, mutation{
		op: "rate",
		eligible: func(e Entry) bool {
			return e.State == StateInList && e.ID != "" && (e.Rating == nil || *e.Rating != rating)
		},
		apply: func(e *Entry) {
			r := rating
			e.Rating = &r
		},
		commit: func(ctx context.Context, e Entry) (*backend.WatchlistRecord, error) {
			return c.remote.UpdateWatchlistRating(ctx, e.ID, rating)
		},
		confirm: applyRecord,
	})
	if started && err == nil && c.ratings != nil {
		c.ratings.RecordRating(ctx)
	}
	return err
}

// Get returns a copy of the entry for mediaID.
func (c *Controller) Get(mediaID string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[mediaID]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Entries returns copies of all entries.
func (c *Controller) Entries() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(Snapshot, len(c.entries))
	for key, e := range c.entries {
		out[key] = e.clone()
	}
	return out
}

// Restore replaces all entries with a snapshot. An entry whose mutation was
// in flight when Reset dropped it is reinstated live instead of from the
// snapshot, so its pending commit or rollback still lands. Other restored
// entries are never busy, and entries that were still loading are queued
// for lookup again.
func (c *Controller) Restore(snap Snapshot) {
	var reload []backend.LookupKey

	c.mu.Lock()
	c.entries = make(map[string]*Entry, len(snap))
	for key, e := range snap {
		if live, ok := c.detached[key]; ok {
			c.entries[key] = live
			continue
		}
		restored := e.clone()
		restored.Busy = false
		c.entries[key] = &restored
		if restored.State == StateLoading {
			reload = append(reload, backend.LookupKey{MediaID: key, MediaType: restored.MediaType})
		}
	}
	c.detached = make(map[string]*Entry)
	c.mu.Unlock()

	c.enqueue(reload)
}

// Reset drops every entry and any queued lookups. Busy entries are kept
// aside for a following Restore.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.detached = make(map[string]*Entry)
	for key, e := range c.entries {
		if e.Busy {
			c.detached[key] = e
		}
	}
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()

	c.lookupMu.Lock()
	c.queue = nil
	c.queued = make(map[string]bool)
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.lookupMu.Unlock()
}

// Close stops the debounce timer, aborts running lookups and waits for them.
func (c *Controller) Close() {
	c.cancel()

	c.lookupMu.Lock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.lookupMu.Unlock()

	c.flushes.Wait()
}
