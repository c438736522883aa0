package watchlist

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reelwise/reelwise/internal/backend"
	"github.com/reelwise/reelwise/internal/metrics"
	"github.com/reelwise/reelwise/internal/results"
)

const maxConcurrentLookups = 4

var newTimer = time.AfterFunc

// Track creates a loading entry for every item that has none yet and queues
// its existence lookup.
func (c *Controller) Track(items []results.Item) {
	keys := make([]backend.LookupKey, 0, len(items))
	for _, item := range items {
		keys = append(keys, backend.LookupKey{MediaID: item.MediaID, MediaType: item.MediaType})
	}
	c.Lookup(keys)
}

// Lookup queues existence lookups for keys without an entry. Keys are
// deduplicated against the queue and against lookups already in flight.
// The queue is flushed after the debounce window, or immediately once it
// reaches the flush threshold.
func (c *Controller) Lookup(keys []backend.LookupKey) {
	fresh := make([]backend.LookupKey, 0, len(keys))
	created := make([]Entry, 0, len(keys))

	c.mu.Lock()
	for _, key := range keys {
		if key.MediaID == "" {
			continue
		}
		if _, ok := c.entries[key.MediaID]; ok {
			continue
		}
		if key.MediaType == "" {
			key.MediaType = c.opts.MediaType
		}
		e := &Entry{MediaID: key.MediaID, MediaType: key.MediaType, State: StateLoading}
		c.entries[key.MediaID] = e
		fresh = append(fresh, key)
		created = append(created, *e)
	}
	c.mu.Unlock()

	for _, e := range created {
		c.listener.EntryChanged(e)
	}
	c.enqueue(fresh)
}

// Flush resolves every queued key now and returns once the lookups settled.
func (c *Controller) Flush(ctx context.Context) {
	c.lookupMu.Lock()
	batch := c.takeQueueLocked()
	c.lookupMu.Unlock()

	if batch != nil {
		c.runFlush(ctx, batch)
	}
}

func (c *Controller) enqueue(keys []backend.LookupKey) {
	if len(keys) == 0 {
		return
	}

	c.lookupMu.Lock()
	if c.closed {
		c.lookupMu.Unlock()
		return
	}
	for _, key := range keys {
		if c.queued[key.MediaID] || c.inFlight[key.MediaID] {
			continue
		}
		c.queued[key.MediaID] = true
		c.queue = append(c.queue, key)
	}

	if len(c.queue) >= c.opts.FlushThreshold {
		batch := c.takeQueueLocked()
		c.lookupMu.Unlock()
		go c.runFlush(c.ctx, batch)
		return
	}
	if len(c.queue) > 0 && c.timer == nil {
		c.timer = newTimer(c.opts.Debounce, c.onDebounce)
	}
	c.lookupMu.Unlock()
}

func (c *Controller) onDebounce() {
	c.lookupMu.Lock()
	c.timer = nil
	batch := c.takeQueueLocked()
	c.lookupMu.Unlock()

	if batch != nil {
		c.runFlush(c.ctx, batch)
	}
}

// takeQueueLocked moves the queue into the in-flight set. It returns nil when
// there is nothing to flush or the controller is closed.
func (c *Controller) takeQueueLocked() []backend.LookupKey {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.closed || len(c.queue) == 0 {
		return nil
	}

	batch := c.queue
	c.queue = nil
	for _, key := range batch {
		delete(c.queued, key.MediaID)
		c.inFlight[key.MediaID] = true
	}
	c.flushes.Add(1)
	return batch
}

func (c *Controller) runFlush(ctx context.Context, batch []backend.LookupKey) {
	defer c.flushes.Done()
	defer func() {
		c.lookupMu.Lock()
		for _, key := range batch {
			delete(c.inFlight, key.MediaID)
		}
		c.lookupMu.Unlock()
	}()

	var g errgroup.Group
	g.SetLimit(maxConcurrentLookups)

	for start := 0; start < len(batch); start += c.opts.BatchSize {
		end := min(start+c.opts.BatchSize, len(batch))
		chunk := batch[start:end]
		g.Go(func() error {
			c.resolveChunk(ctx, chunk)
			return nil // failures are settled per chunk
		})
	}

	_ = g.Wait()
}

func (c *Controller) resolveChunk(ctx context.Context, chunk []backend.LookupKey) {
	found, err := c.remote.LookupWatchlist(ctx, chunk)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.WatchlistLookupBatches.WithLabelValues("error").Inc()
		c.logger.Warn().Err(err).Int("keys", len(chunk)).Msg("Watchlist lookup failed, defaulting to not added")
		c.settle(chunk, nil)
		return
	}

	metrics.WatchlistLookupBatches.WithLabelValues("success").Inc()
	byKey := make(map[string]backend.LookupResult, len(found))
	for _, r := range found {
		if key := r.Key(); key != "" {
			byKey[key] = r
		}
	}
	c.settle(chunk, byKey)
}

// settle resolves loading entries from lookup results. Entries that are no
// longer loading, or are busy, keep their state.
func (c *Controller) settle(chunk []backend.LookupKey, byKey map[string]backend.LookupResult) {
	changed := make([]Entry, 0, len(chunk))

	c.mu.Lock()
	for _, key := range chunk {
		e, ok := c.entries[key.MediaID]
		if !ok || e.State != StateLoading || e.Busy {
			continue
		}

		r, hit := byKey[key.MediaID]
		if hit && r.Exists && r.ID != "" {
			e.State = StateInList
			e.ID = r.ID
			e.Status = r.Status
			if e.Status == "" {
				e.Status = backend.StatusWant
			}
			e.Rating = nil
			if r.Rating != nil {
				rating := *r.Rating
				e.Rating = &rating
			}
		} else {
			e.State = StateNotAdded
			e.ID = ""
			e.Status = ""
			e.Rating = nil
		}
		changed = append(changed, e.clone())
	}
	c.mu.Unlock()

	for _, e := range changed {
		c.listener.EntryChanged(e)
	}
}
