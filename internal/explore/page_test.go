package explore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelwise/reelwise/internal/backend"
	"github.com/reelwise/reelwise/internal/results"
	"github.com/reelwise/reelwise/internal/watchlist"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// fakeStream is one open SSE response the test writes frames into.
type fakeStream struct {
	w   *io.PipeWriter
	req backend.PrimaryRequest
	url string
}

func (s *fakeStream) send(t *testing.T, typ string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	_, err = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", typ, data)
	require.NoError(t, err)
}

func (s *fakeStream) raw(t *testing.T, text string) {
	t.Helper()
	_, err := io.WriteString(s.w, text)
	require.NoError(t, err)
}

func (s *fakeStream) close() {
	_ = s.w.Close()
}

type fakeBackend struct {
	mu sync.Mutex

	openErr    error
	rerunResp  *backend.RerunResponse
	rerunErr   error
	rerunBlock chan struct{}

	rerunCalls []backend.RerunRequest
	feedback   []backend.Feedback

	primary chan *fakeStream
	why     chan *fakeStream
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		primary: make(chan *fakeStream, 8),
		why:     make(chan *fakeStream, 8),
	}
}

func pipe(ctx context.Context) (*io.PipeReader, *io.PipeWriter) {
	r, w := io.Pipe()
	go func() {
		<-ctx.Done()
		_ = w.CloseWithError(ctx.Err())
	}()
	return r, w
}

func (f *fakeBackend) OpenPrimaryStream(ctx context.Context, req backend.PrimaryRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	err := f.openErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	r, w := pipe(ctx)
	f.primary <- &fakeStream{w: w, req: req}
	return r, nil
}

func (f *fakeBackend) OpenExplanationStream(ctx context.Context, url string) (io.ReadCloser, error) {
	r, w := pipe(ctx)
	f.why <- &fakeStream{w: w, url: url}
	return r, nil
}

func (f *fakeBackend) Rerun(ctx context.Context, req backend.RerunRequest) (*backend.RerunResponse, error) {
	f.mu.Lock()
	f.rerunCalls = append(f.rerunCalls, req)
	block, resp, err := f.rerunBlock, f.rerunResp, f.rerunErr
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return resp, err
}

func (f *fakeBackend) SendFeedback(_ context.Context, fb backend.Feedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedback = append(f.feedback, fb)
	return nil
}

func (f *fakeBackend) DeviceInfo() backend.DeviceInfo {
	return backend.DeviceInfo{Platform: "test"}
}

func (f *fakeBackend) MediaType() string {
	return "movie"
}

func (f *fakeBackend) rerunCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rerunCalls)
}

func (f *fakeBackend) nextPrimary(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case s := <-f.primary:
		return s
	case <-time.After(waitFor):
		t.Fatal("primary stream was not opened")
		return nil
	}
}

func (f *fakeBackend) nextWhy(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case s := <-f.why:
		return s
	case <-time.After(waitFor):
		t.Fatal("explanation stream was not opened")
		return nil
	}
}

type fakeWatchlist struct {
	mu       sync.Mutex
	entries  watchlist.Snapshot
	tracked  [][]string
	resets   int
	restores int
}

func newFakeWatchlist() *fakeWatchlist {
	return &fakeWatchlist{entries: make(watchlist.Snapshot)}
}

func (w *fakeWatchlist) Track(items []results.Item) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.MediaID)
		w.entries[it.MediaID] = watchlist.Entry{MediaID: it.MediaID, State: watchlist.StateNotAdded}
	}
	w.tracked = append(w.tracked, ids)
}

func (w *fakeWatchlist) trackedIDs() [][]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]string(nil), w.tracked...)
}

func (w *fakeWatchlist) Entries() watchlist.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(watchlist.Snapshot, len(w.entries))
	for k, v := range w.entries {
		out[k] = v
	}
	return out
}

func (w *fakeWatchlist) Restore(snap watchlist.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.restores++
	w.entries = make(watchlist.Snapshot, len(snap))
	for k, v := range snap {
		w.entries[k] = v
	}
}

func (w *fakeWatchlist) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resets++
	w.entries = make(watchlist.Snapshot)
}

type recordingNotifier struct {
	mu       sync.Mutex
	statuses []Status
	items    []results.Item
	toasts   []string
}

func (n *recordingNotifier) StateChanged(snap Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, snap.State.Status)
}

func (n *recordingNotifier) ItemChanged(item results.Item) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, item)
}

func (n *recordingNotifier) Toast(kind, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toasts = append(n.toasts, kind+": "+message)
}

func (n *recordingNotifier) sawStatus(s Status) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, got := range n.statuses {
		if got == s {
			return true
		}
	}
	return false
}

type recordingShown struct {
	mu    sync.Mutex
	calls map[string][]results.Item
}

func (r *recordingShown) LogShown(queryID string, items []results.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[string][]results.Item)
	}
	r.calls[queryID] = items
}

func (r *recordingShown) get(queryID string) ([]results.Item, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items, ok := r.calls[queryID]
	return items, ok
}

type pageFixture struct {
	page      *Page
	backend   *fakeBackend
	watchlist *fakeWatchlist
	notifier  *recordingNotifier
	shown     *recordingShown
}

func newPageFixture(t *testing.T) *pageFixture {
	t.Helper()
	f := &pageFixture{
		backend:   newFakeBackend(),
		watchlist: newFakeWatchlist(),
		notifier:  &recordingNotifier{},
		shown:     &recordingShown{},
	}
	f.page = NewPage(f.backend, f.watchlist, zerolog.Nop())
	f.page.SetNotifier(f.notifier)
	f.page.SetShownLogger(f.shown)
	t.Cleanup(f.page.Close)
	return f
}

func (f *pageFixture) waitStatus(t *testing.T, want Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.page.State().Status == want
	}, waitFor, tick, "page never reached status %s (now %s)", want, f.page.State().Status)
}

func itemIDs(items []results.Item) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.MediaID)
	}
	return ids
}

func recsPayload(queryID string, streamURL string, ids ...string) map[string]any {
	items := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		items = append(items, map[string]any{"media_id": id, "title": "Title " + id})
	}
	payload := map[string]any{"query_id": queryID, "items": items}
	if streamURL != "" {
		payload["stream_url"] = streamURL
	}
	return payload
}

// startWithItems runs a query to completion with the given items and no
// explanation stream.
func (f *pageFixture) startWithItems(t *testing.T, filters Filters, ids ...string) string {
	t.Helper()
	queryID, err := f.page.Query(QueryRequest{Text: "heist movies", Filters: filters})
	require.NoError(t, err)

	s := f.backend.nextPrimary(t)
	s.send(t, "started", map[string]any{"query_id": queryID})
	s.send(t, "recs", recsPayload(queryID, "", ids...))
	s.send(t, "done", map[string]any{"query_id": queryID})
	s.close()

	f.waitStatus(t, StatusDone)
	return queryID
}

func TestPage_QueryRequest(t *testing.T) {
	f := newPageFixture(t)

	queryID, err := f.page.Query(QueryRequest{
		Text:    "  cozy mysteries ",
		Filters: Filters{Providers: []string{"Netflix"}, YearRange: years(2000, 2010)},
	})
	require.NoError(t, err)

	s := f.backend.nextPrimary(t)
	state := f.page.State()
	assert.Equal(t, StatusLoading, state.Status)
	assert.Contains(t, queryID, state.SessionID)
	assert.Equal(t, queryID, s.req.QueryID)
	assert.Equal(t, state.SessionID, s.req.SessionID)
	assert.Equal(t, "cozy mysteries", s.req.QueryText)
	assert.Equal(t, "movie", s.req.MediaType)
	assert.Equal(t, []string{"Netflix"}, s.req.QueryFilters.Providers)
	assert.Equal(t, "test", s.req.DeviceInfo.Platform)

	_, err = f.page.Query(QueryRequest{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestPage_RecsStartExplanationAndLookup(t *testing.T) {
	f := newPageFixture(t)

	queryID, err := f.page.Query(QueryRequest{Text: "space operas"})
	require.NoError(t, err)

	s := f.backend.nextPrimary(t)
	s.send(t, "opening", map[string]any{"query_id": queryID, "opening_summary": "Big skies"})
	s.send(t, "recs", recsPayload(queryID, "/why/"+queryID, "11", "12"))
	s.send(t, "done", map[string]any{"query_id": queryID})
	s.close()

	why := f.backend.nextWhy(t)
	assert.Equal(t, "/why/"+queryID, why.url)

	f.waitStatus(t, StatusDone)
	snap := f.page.Snapshot()
	assert.Equal(t, "Big skies", snap.State.OpeningSummary)
	assert.Equal(t, []string{"11", "12"}, itemIDs(snap.Items))
	assert.True(t, snap.State.WhyBusy)
	assert.True(t, snap.Items[0].IsWhyLoading)
	assert.Equal(t, [][]string{{"11", "12"}}, f.watchlist.trackedIDs())

	why.send(t, "started", map[string]any{"query_id": queryID})
	why.send(t, "why_delta", map[string]any{
		"query_id":               queryID,
		"media_id":               11,
		"imdb_rating":            7.9,
		"rotten_tomatoes_rating": "91%",
		"why_you_might_enjoy_it": "Operatic scale.",
		"why_source":             "cache",
	})
	why.send(t, "why_delta", map[string]any{"query_id": queryID, "media_id": "999", "why_you_might_enjoy_it": "unknown"})
	why.send(t, "done", map[string]any{"query_id": queryID})
	why.close()

	require.Eventually(t, func() bool {
		_, ok := f.shown.get(queryID)
		return ok
	}, waitFor, tick)

	item, ok := f.page.Item("11")
	require.True(t, ok)
	require.NotNil(t, item.WhyMarkdown)
	assert.Equal(t, "Operatic scale.", *item.WhyMarkdown)
	require.NotNil(t, item.RottenTomatoesRating)
	assert.InDelta(t, 91, *item.RottenTomatoesRating, 0.001)
	assert.False(t, item.IsWhyLoading)

	other, ok := f.page.Item("12")
	require.True(t, ok)
	assert.False(t, other.IsWhyLoading, "finalized when the explanation stream ends")
	assert.False(t, other.IsRatingsLoading)

	_, ok = f.page.Item("999")
	assert.False(t, ok, "deltas for unknown items are ignored")

	logged, _ := f.shown.get(queryID)
	assert.Equal(t, []string{"11", "12"}, itemIDs(logged))
	assert.False(t, f.page.State().WhyBusy)
}

func TestPage_NullRatingsStayPending(t *testing.T) {
	f := newPageFixture(t)

	queryID, err := f.page.Query(QueryRequest{Text: "slow cinema"})
	require.NoError(t, err)

	s := f.backend.nextPrimary(t)
	s.send(t, "recs", map[string]any{
		"query_id":   queryID,
		"stream_url": "/why/" + queryID,
		"items": []map[string]any{{
			"media_id":               "21",
			"title":                  "Stalker",
			"imdb_rating":            nil,
			"rotten_tomatoes_rating": nil,
		}},
	})
	s.send(t, "done", map[string]any{"query_id": queryID})
	s.close()

	why := f.backend.nextWhy(t)
	f.waitStatus(t, StatusDone)

	item, ok := f.page.Item("21")
	require.True(t, ok)
	assert.Nil(t, item.IMDbRating)
	assert.Nil(t, item.RottenTomatoesRating)
	assert.True(t, item.IsRatingsLoading)

	why.send(t, "started", map[string]any{"query_id": queryID})
	why.send(t, "why_delta", map[string]any{
		"query_id":               queryID,
		"media_id":               "21",
		"imdb_rating":            nil,
		"rotten_tomatoes_rating": nil,
		"why_you_might_enjoy_it": "Patient and strange.",
	})
	require.Eventually(t, func() bool {
		it, _ := f.page.Item("21")
		return it.WhyMarkdown != nil
	}, waitFor, tick)

	item, _ = f.page.Item("21")
	assert.Nil(t, item.IMDbRating, "null is not a zero rating")
	assert.Nil(t, item.RottenTomatoesRating)
	assert.True(t, item.IsRatingsLoading, "ratings stay pending until the stream ends")
	assert.False(t, item.IsWhyLoading)

	why.send(t, "done", map[string]any{"query_id": queryID})
	why.close()
	require.Eventually(t, func() bool { return !f.page.State().WhyBusy }, waitFor, tick)

	item, _ = f.page.Item("21")
	assert.Nil(t, item.IMDbRating)
	assert.False(t, item.IsRatingsLoading)
}

// A superseded query must leave no trace in the new one.
func TestPage_StaleQueryRejected(t *testing.T) {
	f := newPageFixture(t)

	q1, err := f.page.Query(QueryRequest{Text: "first"})
	require.NoError(t, err)
	s1 := f.backend.nextPrimary(t)
	s1.send(t, "started", map[string]any{"query_id": q1})

	q2, err := f.page.Query(QueryRequest{Text: "second"})
	require.NoError(t, err)
	require.NotEqual(t, q1, q2)
	s2 := f.backend.nextPrimary(t)

	// A late frame on the aborted stream is either refused by the closed pipe
	// or read and discarded by its cancelled token.
	_, _ = fmt.Fprintf(s1.w, "event: recs\ndata: %s\n\n", `{"query_id":"`+q1+`","items":[{"media_id":"1"}]}`)

	// A Q1-tagged frame arriving on the live stream is dropped as well.
	s2.send(t, "opening", map[string]any{"query_id": q1, "opening_summary": "from the first query"})
	s2.send(t, "recs", recsPayload(q1, "/why/"+q1, "1", "2"))
	s2.send(t, "opening", map[string]any{"query_id": q2, "opening_summary": "second summary"})
	s2.send(t, "recs", recsPayload(q2, "", "3", "4"))
	s2.send(t, "done", map[string]any{"query_id": q2})
	s2.close()

	f.waitStatus(t, StatusDone)

	snap := f.page.Snapshot()
	assert.Equal(t, q2, snap.State.QueryID)
	assert.Equal(t, "second summary", snap.State.OpeningSummary)
	assert.Equal(t, []string{"3", "4"}, itemIDs(snap.Items))
	assert.Empty(t, f.backend.why, "no explanation stream from the stale recs")
	assert.Equal(t, [][]string{{"3", "4"}}, f.watchlist.trackedIDs())
}

func TestPage_CancelMidFrameIsNotAnError(t *testing.T) {
	f := newPageFixture(t)

	queryID, err := f.page.Query(QueryRequest{Text: "noir"})
	require.NoError(t, err)
	s := f.backend.nextPrimary(t)
	s.send(t, "started", map[string]any{"query_id": queryID})
	f.waitStatus(t, StatusStreaming)

	s.raw(t, `event: recs`+"\n"+`data: {"query_id":"`+queryID+`","items":[{"media_`)

	assert.True(t, f.page.Cancel())
	assert.Equal(t, StatusCancelled, f.page.State().Status)

	assert.Never(t, func() bool {
		return f.page.State().Status == StatusError
	}, 100*time.Millisecond, tick)
	assert.False(t, f.notifier.sawStatus(StatusError))
	assert.Empty(t, f.page.Snapshot().Items)
}

func TestPage_PrimaryErrors(t *testing.T) {
	t.Run("unauthorized before any request", func(t *testing.T) {
		f := newPageFixture(t)
		f.backend.openErr = backend.ErrUnauthorized

		_, err := f.page.Query(QueryRequest{Text: "anything"})
		require.NoError(t, err)

		f.waitStatus(t, StatusUnauthorized)
		assert.False(t, f.notifier.sawStatus(StatusError))
	})

	t.Run("transport failure", func(t *testing.T) {
		f := newPageFixture(t)

		queryID, err := f.page.Query(QueryRequest{Text: "anything"})
		require.NoError(t, err)
		s := f.backend.nextPrimary(t)
		s.send(t, "started", map[string]any{"query_id": queryID})
		_ = s.w.CloseWithError(errors.New("connection reset by peer"))

		f.waitStatus(t, StatusError)
		state := f.page.State()
		assert.Equal(t, streamErrorMessage, state.ErrorMessage)
		assert.False(t, state.Busy)
	})

	t.Run("error event", func(t *testing.T) {
		f := newPageFixture(t)

		queryID, err := f.page.Query(QueryRequest{Text: "anything"})
		require.NoError(t, err)
		s := f.backend.nextPrimary(t)
		s.send(t, "error", map[string]any{"query_id": queryID, "message": "Quota exceeded", "error_id": "e-19"})
		s.close()

		f.waitStatus(t, StatusError)
		state := f.page.State()
		assert.Equal(t, "Quota exceeded", state.ErrorMessage)
		assert.Equal(t, "e-19", state.ErrorID)
	})
}

func TestPage_ChatBranch(t *testing.T) {
	f := newPageFixture(t)

	queryID, err := f.page.Query(QueryRequest{Text: "hello"})
	require.NoError(t, err)
	s := f.backend.nextPrimary(t)
	s.send(t, "chat", map[string]any{"query_id": queryID, "message": "What mood are you in?"})
	s.send(t, "done", map[string]any{"query_id": queryID})
	s.close()

	f.waitStatus(t, StatusDone)
	snap := f.page.Snapshot()
	assert.Equal(t, ModeChat, snap.State.Mode)
	assert.Equal(t, "What mood are you in?", snap.State.ChatMessage)
	assert.Empty(t, snap.Items)
	assert.Empty(t, f.watchlist.trackedIDs())
}

func TestPage_RerunSkipsUnchangedFilters(t *testing.T) {
	f := newPageFixture(t)
	f.startWithItems(t, Filters{Providers: []string{"Netflix"}, YearRange: years(2000, 2010)}, "1", "2")

	applied, err := f.page.Rerun(context.Background(), Filters{
		Providers: []string{"Netflix"},
		YearRange: years(2000, 2010),
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 0, f.backend.rerunCount())
	assert.Equal(t, []string{"1", "2"}, itemIDs(f.page.Snapshot().Items))
}

func TestPage_RerunReplacesItems(t *testing.T) {
	f := newPageFixture(t)
	queryID := f.startWithItems(t, Filters{Providers: []string{"Netflix"}, YearRange: years(2000, 2010)}, "1", "2")
	require.NoError(t, f.page.Feedback(context.Background(), "1", backend.FeedbackLike))

	f.backend.rerunResp = &backend.RerunResponse{
		QueryID: queryID + "-r1",
		Mode:    "RECS",
		Items:   []results.RawItem{rawItem("5", "Blade Runner"), rawItem("6", "Alien")},
	}

	applied, err := f.page.Rerun(context.Background(), Filters{
		Providers: []string{"Netflix"},
		YearRange: years(1990, 2010),
	})
	require.NoError(t, err)
	assert.True(t, applied)
	require.Equal(t, 1, f.backend.rerunCount())

	req := f.backend.rerunCalls[0]
	assert.Equal(t, queryID, req.QueryID)
	assert.Equal(t, f.page.State().SessionID, req.SessionID)
	assert.Equal(t, []string{"Netflix"}, req.Patch.Providers)
	require.NotNil(t, req.Patch.YearRange)
	assert.Equal(t, backend.YearRange{1990, 2010}, *req.Patch.YearRange)

	snap := f.page.Snapshot()
	assert.Equal(t, []string{"5", "6"}, itemIDs(snap.Items), "old items are discarded, not merged")
	assert.Empty(t, snap.Feedback)
	assert.Equal(t, StatusDone, snap.State.Status)
	assert.Equal(t, queryID+"-r1", snap.State.QueryID)
	require.NotNil(t, snap.State.Filters.YearRange)
	assert.Equal(t, backend.YearRange{1990, 2010}, *snap.State.Filters.YearRange)
	assert.False(t, snap.Items[0].IsWhyLoading, "no explanation stream, so items are finalized")
	assert.Equal(t, [][]string{{"1", "2"}, {"5", "6"}}, f.watchlist.trackedIDs())
}

func TestPage_RerunFailureRestoresEverything(t *testing.T) {
	f := newPageFixture(t)
	f.startWithItems(t, Filters{Providers: []string{"Netflix"}}, "1", "2")
	require.NoError(t, f.page.Feedback(context.Background(), "2", backend.FeedbackDislike))
	before := f.page.Snapshot()

	f.backend.rerunErr = fmt.Errorf("%w: status 502", backend.ErrAPI)

	applied, err := f.page.Rerun(context.Background(), Filters{Providers: []string{"Max"}})
	require.ErrorIs(t, err, backend.ErrAPI)
	assert.False(t, applied)

	after := f.page.Snapshot()
	assert.Equal(t, before.Items, after.Items)
	assert.Equal(t, before.Feedback, after.Feedback)
	assert.Equal(t, before.Watchlist, after.Watchlist)
	assert.Equal(t, before.State, after.State)
	assert.True(t, f.notifier.sawStatus(StatusLoading), "the cleared state was shown while waiting")
	assert.Len(t, f.notifier.toasts, 1)
}

func TestPage_RerunCallerGoneRestoresWithoutToast(t *testing.T) {
	f := newPageFixture(t)
	f.startWithItems(t, Filters{}, "1", "2")
	before := f.page.Snapshot()
	f.backend.rerunBlock = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.page.Rerun(ctx, Filters{Providers: []string{"Max"}})
		done <- err
	}()
	require.Eventually(t, func() bool { return f.backend.rerunCount() == 1 }, waitFor, tick)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	after := f.page.Snapshot()
	assert.Equal(t, before.State, after.State)
	assert.Equal(t, before.Items, after.Items)
	assert.Empty(t, f.notifier.toasts)
}

func TestPage_RerunSupersededByQuery(t *testing.T) {
	f := newPageFixture(t)
	f.startWithItems(t, Filters{}, "1", "2")
	f.backend.rerunBlock = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.page.Rerun(context.Background(), Filters{Providers: []string{"Max"}})
		done <- err
	}()
	require.Eventually(t, func() bool { return f.backend.rerunCount() == 1 }, waitFor, tick)

	q2, err := f.page.Query(QueryRequest{Text: "something else"})
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(waitFor):
		t.Fatal("rerun did not return")
	}

	state := f.page.State()
	assert.Equal(t, q2, state.QueryID)
	assert.Equal(t, StatusLoading, state.Status)
	assert.Empty(t, f.page.Snapshot().Items)
}

func TestPage_CancelDuringRerunRestores(t *testing.T) {
	f := newPageFixture(t)
	f.startWithItems(t, Filters{}, "1", "2")
	f.backend.rerunBlock = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.page.Rerun(context.Background(), Filters{YearRange: years(1970, 1980)})
		done <- err
	}()
	require.Eventually(t, func() bool {
		return f.backend.rerunCount() == 1 && f.page.State().Status == StatusLoading
	}, waitFor, tick)

	assert.True(t, f.page.Cancel())
	assert.ErrorIs(t, <-done, ErrSuperseded)

	snap := f.page.Snapshot()
	assert.Equal(t, StatusDone, snap.State.Status, "the restored results keep their status")
	assert.Equal(t, []string{"1", "2"}, itemIDs(snap.Items))
	assert.Nil(t, snap.State.Filters.YearRange)
}

func TestPage_CancelDuringRerunOfStreamingQuery(t *testing.T) {
	f := newPageFixture(t)
	queryID, err := f.page.Query(QueryRequest{Text: "noir"})
	require.NoError(t, err)
	s := f.backend.nextPrimary(t)
	s.send(t, "recs", recsPayload(queryID, "", "1"))
	require.Eventually(t, func() bool { return len(f.page.Snapshot().Items) == 1 }, waitFor, tick)

	f.backend.rerunBlock = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := f.page.Rerun(context.Background(), Filters{Providers: []string{"Max"}})
		done <- err
	}()
	require.Eventually(t, func() bool { return f.backend.rerunCount() == 1 }, waitFor, tick)

	assert.True(t, f.page.Cancel())
	assert.ErrorIs(t, <-done, ErrSuperseded)
	assert.Equal(t, StatusCancelled, f.page.State().Status, "the interrupted stream cannot resume")
}

func TestPage_RerunWithoutQuery(t *testing.T) {
	f := newPageFixture(t)

	_, err := f.page.Rerun(context.Background(), Filters{Providers: []string{"Max"}})
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestPage_Feedback(t *testing.T) {
	f := newPageFixture(t)
	queryID := f.startWithItems(t, Filters{}, "1", "2")
	ctx := context.Background()

	require.NoError(t, f.page.Feedback(ctx, "1", backend.FeedbackLike))
	assert.Equal(t, backend.FeedbackLike, f.page.Snapshot().Feedback["1"])

	require.NoError(t, f.page.Feedback(ctx, "1", backend.FeedbackNone))
	assert.NotContains(t, f.page.Snapshot().Feedback, "1")

	assert.ErrorIs(t, f.page.Feedback(ctx, "404", backend.FeedbackLike), ErrUnknownItem)
	assert.ErrorIs(t, f.page.Feedback(ctx, "1", backend.FeedbackValue("meh")), ErrInvalidFeedback)

	require.Len(t, f.backend.feedback, 2)
	assert.Equal(t, queryID, f.backend.feedback[0].QueryID)
	assert.Equal(t, "movie", f.backend.feedback[0].MediaType)
	assert.Equal(t, backend.FeedbackNone, f.backend.feedback[1].Value)
}

func TestPage_Close(t *testing.T) {
	f := newPageFixture(t)

	queryID, err := f.page.Query(QueryRequest{Text: "westerns"})
	require.NoError(t, err)
	s := f.backend.nextPrimary(t)
	s.send(t, "started", map[string]any{"query_id": queryID})

	f.page.Close()
	f.page.Close()

	_, err = f.page.Query(QueryRequest{Text: "again"})
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, f.page.Cancel())
}
