package watchlist

import (
	"context"

	"github.com/reelwise/reelwise/internal/backend"
	"github.com/reelwise/reelwise/internal/metrics"
)

// mutation describes one optimistic watchlist operation.
type mutation struct {
	op string
	// eligible reports whether the operation may start on the entry.
	eligible func(e Entry) bool
	// apply writes the optimistic local state.
	apply func(e *Entry)
	// commit performs the remote call. It receives the optimistic entry.
	commit func(ctx context.Context, e Entry) (*backend.WatchlistRecord, error)
	// confirm writes the server-confirmed state after a successful commit.
	confirm func(e *Entry, rec *backend.WatchlistRecord)
}

// withOptimisticUpdate runs m against the entry for key. The entry is
// snapshotted, updated optimistically with busy set, and then either
// confirmed or restored to the snapshot. It reports whether the operation
// started; a failed remote call is also reported to the listener.
func (c *Controller) withOptimisticUpdate(ctx context.Context, key string, m mutation) (bool, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || e.Busy || !m.eligible(*e) {
		c.mu.Unlock()
		return false, nil
	}

	snapshot := e.clone()
	m.apply(e)
	e.Busy = true
	pending := e.clone()
	c.mu.Unlock()

	c.listener.EntryChanged(pending)

	rec, err := m.commit(ctx, pending)

	c.mu.Lock()
	if err != nil {
		*e = snapshot
	} else {
		m.confirm(e, rec)
	}
	e.Busy = false
	current := c.entries[key] == e
	final := e.clone()
	c.mu.Unlock()

	if !current {
		// The entry was reset while the call was in flight. It keeps the
		// outcome in case a Restore brings it back.
		metrics.WatchlistMutations.WithLabelValues(m.op, "discarded").Inc()
		return true, err
	}

	c.listener.EntryChanged(final)

	if err != nil {
		metrics.WatchlistMutations.WithLabelValues(m.op, "rolled_back").Inc()
		c.logger.Warn().Err(err).Str("op", m.op).Str("mediaId", key).Msg("Watchlist mutation failed, rolled back")
		c.listener.MutationFailed(m.op, key, err)
		return true, err
	}

	metrics.WatchlistMutations.WithLabelValues(m.op, "committed").Inc()
	return true, nil
}

// applyRecord copies server-confirmed fields onto e.
func applyRecord(e *Entry, rec *backend.WatchlistRecord) {
	if rec == nil {
		return
	}
	if rec.ID != "" {
		e.ID = rec.ID
	}
	if rec.Status != "" {
		e.Status = rec.Status
	}
	if rec.Rating != nil {
		r := *rec.Rating
		e.Rating = &r
	} else {
		e.Rating = nil
	}
}
