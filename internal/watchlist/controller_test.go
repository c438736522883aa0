package watchlist

import (
	"context"
	"errors"
	"math"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelwise/reelwise/internal/backend"
	"github.com/reelwise/reelwise/internal/results"
)

var errBoom = errors.New("backend unavailable")

type fakeRemote struct {
	mu sync.Mutex

	createErr error
	statusErr error
	ratingErr error
	deleteErr error
	lookupErr func(keys []backend.LookupKey) error

	// block, when set, holds every mutation until it is closed.
	block chan struct{}

	listed      map[string]backend.LookupResult
	lookupCalls [][]backend.LookupKey
	ratingCalls []int
	statusCalls []backend.WatchlistStatus
	creates     int
	deletes     int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{listed: make(map[string]backend.LookupResult)}
}

func (f *fakeRemote) wait() {
	if f.block != nil {
		<-f.block
	}
}

func (f *fakeRemote) CreateWatchlist(_ context.Context, req backend.CreateWatchlistRequest) (*backend.WatchlistRecord, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &backend.WatchlistRecord{ID: "w-" + req.MediaID, Status: req.Status}, nil
}

func (f *fakeRemote) UpdateWatchlistStatus(_ context.Context, id string, status backend.WatchlistStatus) (*backend.WatchlistRecord, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, status)
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &backend.WatchlistRecord{ID: id, Status: status}, nil
}

func (f *fakeRemote) UpdateWatchlistRating(_ context.Context, id string, rating int) (*backend.WatchlistRecord, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ratingCalls = append(f.ratingCalls, rating)
	if f.ratingErr != nil {
		return nil, f.ratingErr
	}
	return &backend.WatchlistRecord{ID: id, Status: backend.StatusWatched, Rating: &rating}, nil
}

func (f *fakeRemote) DeleteWatchlist(_ context.Context, _ string) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	return f.deleteErr
}

func (f *fakeRemote) LookupWatchlist(_ context.Context, keys []backend.LookupKey) ([]backend.LookupResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupCalls = append(f.lookupCalls, append([]backend.LookupKey(nil), keys...))
	if f.lookupErr != nil {
		if err := f.lookupErr(keys); err != nil {
			return nil, err
		}
	}
	out := make([]backend.LookupResult, 0, len(keys))
	for _, k := range keys {
		if r, ok := f.listed[k.MediaID]; ok {
			out = append(out, r)
			continue
		}
		out = append(out, backend.LookupResult{MediaID: json.RawMessage(`"` + k.MediaID + `"`)})
	}
	return out, nil
}

func (f *fakeRemote) list(mediaID, id string, status backend.WatchlistStatus) {
	f.listed[mediaID] = backend.LookupResult{
		MediaID: json.RawMessage(`"` + mediaID + `"`),
		Exists:  true,
		ID:      id,
		Status:  status,
	}
}

func (f *fakeRemote) lookups() [][]backend.LookupKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]backend.LookupKey(nil), f.lookupCalls...)
}

type recordingListener struct {
	mu       sync.Mutex
	changes  []Entry
	failures []string
}

func (l *recordingListener) EntryChanged(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, e)
}

func (l *recordingListener) MutationFailed(op, mediaID string, _ error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = append(l.failures, op+":"+mediaID)
}

type countingRecorder struct {
	mu    sync.Mutex
	count int
}

func (r *countingRecorder) RecordRating(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
}

func newTestController(remote *fakeRemote) (*Controller, *recordingListener) {
	c := NewController(remote, Options{Debounce: time.Hour}, zerolog.Nop())
	l := &recordingListener{}
	c.SetListener(l)
	return c, l
}

// resolve tracks the given ids and flushes the lookup synchronously.
func resolve(t *testing.T, c *Controller, ids ...string) {
	t.Helper()
	items := make([]results.Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, results.Item{MediaID: id, Title: "Title " + id, MediaType: "movie"})
	}
	c.Track(items)
	c.Flush(context.Background())
	for _, id := range ids {
		e, ok := c.Get(id)
		require.True(t, ok)
		require.NotEqual(t, StateLoading, e.State)
	}
}

func TestController_AddCommits(t *testing.T) {
	remote := newFakeRemote()
	c, l := newTestController(remote)
	resolve(t, c, "603")

	require.NoError(t, c.Add(context.Background(), results.Item{MediaID: "603", Title: "The Matrix"}))

	e, _ := c.Get("603")
	assert.Equal(t, StateInList, e.State)
	assert.Equal(t, "w-603", e.ID)
	assert.Equal(t, backend.StatusWant, e.Status)
	assert.False(t, e.Busy)
	assert.Empty(t, l.failures)
}

func TestController_AddRollsBack(t *testing.T) {
	remote := newFakeRemote()
	remote.createErr = errBoom
	c, l := newTestController(remote)
	resolve(t, c, "603")
	before, _ := c.Get("603")

	err := c.Add(context.Background(), results.Item{MediaID: "603"})
	assert.ErrorIs(t, err, errBoom)

	after, _ := c.Get("603")
	assert.Equal(t, before, after)
	assert.Equal(t, StateNotAdded, after.State)
	assert.Equal(t, []string{"add:603"}, l.failures)
}

func TestController_AddMissingIDRollsBack(t *testing.T) {
	remote := &idlessRemote{fakeRemote: newFakeRemote()}
	c := NewController(remote, Options{Debounce: time.Hour}, zerolog.Nop())
	c.Track([]results.Item{{MediaID: "1"}})
	c.Flush(context.Background())

	err := c.Add(context.Background(), results.Item{MediaID: "1"})
	assert.ErrorIs(t, err, ErrMissingID)

	e, _ := c.Get("1")
	assert.Equal(t, StateNotAdded, e.State)
}

type idlessRemote struct{ *fakeRemote }

func (r *idlessRemote) CreateWatchlist(context.Context, backend.CreateWatchlistRequest) (*backend.WatchlistRecord, error) {
	return &backend.WatchlistRecord{Status: backend.StatusWant}, nil
}

func TestController_AddNoops(t *testing.T) {
	remote := newFakeRemote()
	remote.list("2", "w-2", backend.StatusWant)
	c, _ := newTestController(remote)

	// Unknown and still-loading entries are ignored.
	require.NoError(t, c.Add(context.Background(), results.Item{MediaID: "1"}))
	c.Track([]results.Item{{MediaID: "1"}})
	require.NoError(t, c.Add(context.Background(), results.Item{MediaID: "1"}))

	c.Flush(context.Background())

	// Already listed.
	require.NoError(t, c.Add(context.Background(), results.Item{MediaID: "2"}))
	c.Track([]results.Item{{MediaID: "2"}})
	c.Flush(context.Background())
	require.NoError(t, c.Add(context.Background(), results.Item{MediaID: "2"}))

	assert.Equal(t, 0, remote.creates)
}

func TestController_BusyGuard(t *testing.T) {
	remote := newFakeRemote()
	remote.list("603", "w-603", backend.StatusWant)
	c, _ := newTestController(remote)
	resolve(t, c, "603")

	remote.block = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- c.SetStatus(context.Background(), "603", backend.StatusWatched)
	}()

	require.Eventually(t, func() bool {
		e, _ := c.Get("603")
		return e.Busy
	}, time.Second, time.Millisecond)

	// Every other mutation on the busy key is a no-op.
	assert.NoError(t, c.SetStatus(context.Background(), "603", backend.StatusWatching))
	assert.NoError(t, c.Rate(context.Background(), "603", 7))
	assert.NoError(t, c.Remove(context.Background(), "603"))

	close(remote.block)
	require.NoError(t, <-done)

	e, _ := c.Get("603")
	assert.Equal(t, backend.StatusWatched, e.Status)
	assert.False(t, e.Busy)
	assert.Equal(t, []backend.WatchlistStatus{backend.StatusWatched}, remote.statusCalls)
	assert.Empty(t, remote.ratingCalls)
	assert.Equal(t, 0, remote.deletes)
}

func TestController_SetStatusNoops(t *testing.T) {
	remote := newFakeRemote()
	remote.list("603", "w-603", backend.StatusWant)
	c, _ := newTestController(remote)
	resolve(t, c, "603", "604")

	assert.NoError(t, c.SetStatus(context.Background(), "603", backend.StatusWant), "unchanged status")
	assert.NoError(t, c.SetStatus(context.Background(), "603", "bogus"), "invalid status")
	assert.NoError(t, c.SetStatus(context.Background(), "604", backend.StatusWatched), "not listed")
	assert.Empty(t, remote.statusCalls)
}

func TestController_RateRollbackAfterStatusChange(t *testing.T) {
	remote := newFakeRemote()
	remote.list("603", "w-603", backend.StatusWant)
	c, l := newTestController(remote)
	resolve(t, c, "603")

	require.NoError(t, c.SetStatus(context.Background(), "603", backend.StatusWatched))
	preRate, _ := c.Get("603")
	require.Equal(t, backend.StatusWatched, preRate.Status)

	remote.ratingErr = errBoom
	err := c.Rate(context.Background(), "603", 9)
	assert.ErrorIs(t, err, errBoom)

	after, _ := c.Get("603")
	expected := preRate
	expected.Busy = false
	assert.Equal(t, expected, after)
	assert.Equal(t, []string{"rate:603"}, l.failures)
}

func TestNormalizeRating(t *testing.T) {
	tests := []struct {
		in   float64
		want int
		ok   bool
	}{
		{11, 10, true},
		{10, 10, true},
		{7.6, 8, true},
		{7.4, 7, true},
		{0.5, 1, true},
		{1, 1, true},
		{0, 0, false},
		{0.4, 0, false},
		{-3, 0, false},
		{math.NaN(), 0, false},
		{math.Inf(1), 10, true},
	}

	for _, tt := range tests {
		got, ok := NormalizeRating(tt.in)
		assert.Equal(t, tt.ok, ok, "input %v", tt.in)
		assert.Equal(t, tt.want, got, "input %v", tt.in)
	}
}

func TestController_RateClamps(t *testing.T) {
	remote := newFakeRemote()
	remote.list("603", "w-603", backend.StatusWatched)
	c, _ := newTestController(remote)
	recorder := &countingRecorder{}
	c.SetRatingRecorder(recorder)
	resolve(t, c, "603")

	require.NoError(t, c.Rate(context.Background(), "603", 11))
	e, _ := c.Get("603")
	require.NotNil(t, e.Rating)
	assert.Equal(t, 10, *e.Rating)

	require.NoError(t, c.Rate(context.Background(), "603", 0))
	e, _ = c.Get("603")
	assert.Equal(t, 10, *e.Rating, "zero is ignored")

	require.NoError(t, c.Rate(context.Background(), "603", 7.6))
	e, _ = c.Get("603")
	assert.Equal(t, 8, *e.Rating)

	assert.Equal(t, []int{10, 8}, remote.ratingCalls)
	assert.Equal(t, 2, recorder.count)
}

func TestController_Remove(t *testing.T) {
	remote := newFakeRemote()
	remote.list("603", "w-603", backend.StatusWant)
	c, _ := newTestController(remote)
	resolve(t, c, "603")

	require.NoError(t, c.Remove(context.Background(), "603"))

	e, _ := c.Get("603")
	assert.Equal(t, StateNotAdded, e.State)
	assert.Empty(t, e.ID)
	assert.Empty(t, e.Status)
	assert.Nil(t, e.Rating)
}

func TestController_RemoveRollsBack(t *testing.T) {
	remote := newFakeRemote()
	remote.list("603", "w-603", backend.StatusWatched)
	remote.deleteErr = errBoom
	c, _ := newTestController(remote)
	resolve(t, c, "603")
	before, _ := c.Get("603")

	assert.ErrorIs(t, c.Remove(context.Background(), "603"), errBoom)

	after, _ := c.Get("603")
	assert.Equal(t, before, after)
}

func TestController_LookupBatching(t *testing.T) {
	remote := newFakeRemote()
	remote.list("5", "w-5", backend.StatusWatching)
	c := NewController(remote, Options{BatchSize: 20, FlushThreshold: 12, Debounce: time.Hour}, zerolog.Nop())
	defer c.Close()

	keys := make([]backend.LookupKey, 0, 45)
	for i := range 45 {
		keys = append(keys, backend.LookupKey{MediaID: strconv.Itoa(i % 30)})
	}
	// 45 keys with 30 distinct ids, flushed early because the queue passed 12.
	c.Lookup(keys)

	require.Eventually(t, func() bool {
		for i := range 30 {
			if e, ok := c.Get(strconv.Itoa(i)); !ok || e.State == StateLoading {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)

	calls := remote.lookups()
	seen := make(map[string]int)
	for _, call := range calls {
		assert.LessOrEqual(t, len(call), 20)
		for _, k := range call {
			seen[k.MediaID]++
			assert.Equal(t, "movie", k.MediaType)
		}
	}
	assert.Len(t, seen, 30)
	for id, n := range seen {
		assert.Equal(t, 1, n, "key %s looked up more than once", id)
	}

	e, _ := c.Get("5")
	assert.Equal(t, StateInList, e.State)
	assert.Equal(t, backend.StatusWatching, e.Status)
}

func TestController_LookupDebounce(t *testing.T) {
	remote := newFakeRemote()
	c := NewController(remote, Options{Debounce: 20 * time.Millisecond, FlushThreshold: 12}, zerolog.Nop())
	defer c.Close()

	c.Lookup([]backend.LookupKey{{MediaID: "1"}, {MediaID: "2"}})
	c.Lookup([]backend.LookupKey{{MediaID: "2"}, {MediaID: "3"}})

	e, _ := c.Get("1")
	assert.Equal(t, StateLoading, e.State)

	require.Eventually(t, func() bool {
		e, _ := c.Get("3")
		return e.State == StateNotAdded
	}, time.Second, 5*time.Millisecond)

	calls := remote.lookups()
	require.Len(t, calls, 1, "both calls coalesce into one batch")
	ids := make([]string, 0, len(calls[0]))
	for _, k := range calls[0] {
		ids = append(ids, k.MediaID)
	}
	sort.Strings(ids)
	assert.Equal(t, []string{"1", "2", "3"}, ids)
}

func TestController_LookupFailureDefaultsToNotAdded(t *testing.T) {
	remote := newFakeRemote()
	remote.list("1", "w-1", backend.StatusWant)
	remote.list("24", "w-24", backend.StatusWant)
	remote.lookupErr = func(keys []backend.LookupKey) error {
		for _, k := range keys {
			if k.MediaID == "1" {
				return errBoom
			}
		}
		return nil
	}
	c := NewController(remote, Options{BatchSize: 20, FlushThreshold: 100, Debounce: time.Hour}, zerolog.Nop())

	keys := make([]backend.LookupKey, 0, 25)
	for i := range 25 {
		keys = append(keys, backend.LookupKey{MediaID: strconv.Itoa(i)})
	}
	c.Lookup(keys)
	c.Flush(context.Background())

	failed, _ := c.Get("1")
	assert.Equal(t, StateNotAdded, failed.State, "keys of a failed chunk default to not added")

	ok, _ := c.Get("24")
	assert.Equal(t, StateInList, ok.State, "sibling chunk is unaffected")
}

func TestController_SnapshotRestore(t *testing.T) {
	remote := newFakeRemote()
	remote.list("1", "w-1", backend.StatusWant)
	c, _ := newTestController(remote)
	resolve(t, c, "1", "2")

	snap := c.Entries()
	c.Reset()
	_, ok := c.Get("1")
	assert.False(t, ok)

	c.Restore(snap)
	e, ok := c.Get("1")
	require.True(t, ok)
	assert.Equal(t, StateInList, e.State)
	assert.Equal(t, "w-1", e.ID)
}


func TestController_RestoreKeepsInFlightAdd(t *testing.T) {
	remote := newFakeRemote()
	c, _ := newTestController(remote)
	resolve(t, c, "1")

	remote.block = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- c.Add(context.Background(), results.Item{MediaID: "1"})
	}()
	require.Eventually(t, func() bool {
		e, _ := c.Get("1")
		return e.Busy
	}, time.Second, time.Millisecond)

	snap := c.Entries()
	c.Reset()
	c.Restore(snap)

	close(remote.block)
	require.NoError(t, <-done)

	e, ok := c.Get("1")
	require.True(t, ok)
	assert.Equal(t, StateInList, e.State)
	assert.Equal(t, "w-1", e.ID)
	assert.False(t, e.Busy)

	require.NoError(t, c.Remove(context.Background(), "1"))
	assert.Equal(t, 1, remote.deletes)
}

func TestController_RestoreAfterDetachedAddSettled(t *testing.T) {
	remote := newFakeRemote()
	c, _ := newTestController(remote)
	resolve(t, c, "1")

	remote.block = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- c.Add(context.Background(), results.Item{MediaID: "1"})
	}()
	require.Eventually(t, func() bool {
		e, _ := c.Get("1")
		return e.Busy
	}, time.Second, time.Millisecond)

	snap := c.Entries()
	c.Reset()

	// The call settles while the entry is out of the map.
	close(remote.block)
	require.NoError(t, <-done)

	c.Restore(snap)
	e, ok := c.Get("1")
	require.True(t, ok)
	assert.Equal(t, StateInList, e.State)
	assert.Equal(t, "w-1", e.ID)
	assert.False(t, e.Busy)
}

func TestController_RestoreAfterDetachedAddFailed(t *testing.T) {
	remote := newFakeRemote()
	remote.createErr = errBoom
	c, _ := newTestController(remote)
	resolve(t, c, "1")

	remote.block = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- c.Add(context.Background(), results.Item{MediaID: "1"})
	}()
	require.Eventually(t, func() bool {
		e, _ := c.Get("1")
		return e.Busy
	}, time.Second, time.Millisecond)

	snap := c.Entries()
	c.Reset()
	close(remote.block)
	assert.ErrorIs(t, <-done, errBoom)

	c.Restore(snap)
	e, _ := c.Get("1")
	assert.Equal(t, StateNotAdded, e.State)
	assert.Empty(t, e.ID)
	assert.False(t, e.Busy)
}
