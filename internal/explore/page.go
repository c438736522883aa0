package explore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/reelwise/reelwise/internal/backend"
	"github.com/reelwise/reelwise/internal/metrics"
	"github.com/reelwise/reelwise/internal/results"
	"github.com/reelwise/reelwise/internal/sse"
	"github.com/reelwise/reelwise/internal/stream"
	"github.com/reelwise/reelwise/internal/watchlist"
)

var (
	ErrEmptyQuery      = errors.New("query text is empty")
	ErrNoSession       = errors.New("no active query to rerun")
	ErrClosed          = errors.New("explore page closed")
	ErrUnknownItem     = errors.New("item not in current results")
	ErrInvalidFeedback = errors.New("invalid feedback value")
	ErrSuperseded      = errors.New("rerun superseded by a newer request")
)

const rerunFailedMessage = "Couldn't update filters. Your previous results are back."

// Backend is the part of the recommendation service the page drives.
type Backend interface {
	OpenPrimaryStream(ctx context.Context, req backend.PrimaryRequest) (io.ReadCloser, error)
	OpenExplanationStream(ctx context.Context, streamURL string) (io.ReadCloser, error)
	Rerun(ctx context.Context, req backend.RerunRequest) (*backend.RerunResponse, error)
	SendFeedback(ctx context.Context, fb backend.Feedback) error
	DeviceInfo() backend.DeviceInfo
	MediaType() string
}

// Watchlist is the watchlist state composed alongside the results.
type Watchlist interface {
	Track(items []results.Item)
	Entries() watchlist.Snapshot
	Restore(snap watchlist.Snapshot)
	Reset()
}

// ShownLogger receives the final shown recommendations of a query.
type ShownLogger interface {
	LogShown(queryID string, items []results.Item)
}

// Notifier is told about every visible change of the page.
type Notifier interface {
	StateChanged(snap Snapshot)
	ItemChanged(item results.Item)
	Toast(kind, message string)
}

// Snapshot is the full visible page state.
type Snapshot struct {
	State     State                            `json:"state"`
	Items     []results.Item                   `json:"items"`
	Watchlist watchlist.Snapshot               `json:"watchlist"`
	Feedback  map[string]backend.FeedbackValue `json:"feedback"`
}

// QueryRequest starts a fresh query.
type QueryRequest struct {
	MediaType string
	Text      string
	Filters   Filters
}

// rerunSnapshot is everything a failed rerun restores.
type rerunSnapshot struct {
	state     State
	items     results.Snapshot
	watchlist watchlist.Snapshot
	feedback  map[string]backend.FeedbackValue
}

// Page owns the explore page state: the two streams, the result collection,
// per-item feedback and filter reruns. All state mutations happen under mu.
// Lock order is Page.mu, then the stream controllers.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc

	backend   Backend
	watchlist Watchlist
	logger    zerolog.Logger
	notifier  Notifier
	shown     ShownLogger
	now       func() time.Time

	primary *stream.Controller
	why     *stream.Controller
	store   *results.Store

	mu          sync.Mutex
	state       State
	feedback    map[string]backend.FeedbackValue
	primaryTok  stream.Token
	whyTok      stream.Token
	epoch       uint64
	seq         uint64
	rerun       *rerunSnapshot
	rerunCancel context.CancelFunc
	closed      bool
}

// NewPage creates an idle page with a new session id.
func NewPage(b Backend, wl Watchlist, logger zerolog.Logger) *Page {
	ctx, cancel := context.WithCancel(context.Background())
	return &Page{
		ctx:       ctx,
		cancel:    cancel,
		backend:   b,
		watchlist: wl,
		logger:    logger.With().Str("component", "explore").Logger(),
		notifier:  nopNotifier{},
		now:       time.Now,
		primary:   stream.NewController(stream.CategoryPrimary, logger),
		why:       stream.NewController(stream.CategoryExplanation, logger),
		store:     results.NewStore(),
		state:     State{Status: StatusIdle, SessionID: uuid.NewString(), MediaType: b.MediaType()},
		feedback:  make(map[string]backend.FeedbackValue),
	}
}

// SetNotifier sets the receiver of page changes.
func (p *Page) SetNotifier(n Notifier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n == nil {
		n = nopNotifier{}
	}
	p.notifier = n
}

// SetShownLogger sets the telemetry sink for shown recommendations.
func (p *Page) SetShownLogger(l ShownLogger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown = l
}

// Query supersedes the current session and starts the primary stream for a
// new query. It returns the new query id.
func (p *Page) Query(req QueryRequest) (string, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", ErrEmptyQuery
	}
	mediaType := req.MediaType
	if mediaType == "" {
		mediaType = p.backend.MediaType()
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return "", ErrClosed
	}

	p.abortLocked()
	p.store.Clear()
	p.watchlist.Reset()
	p.feedback = make(map[string]backend.FeedbackValue)

	queryID := p.nextQueryIDLocked()
	p.state = State{
		Status:    StatusLoading,
		Busy:      true,
		SessionID: p.state.SessionID,
		QueryID:   queryID,
		MediaType: mediaType,
		QueryText: text,
		Filters:   req.Filters.clone(),
	}

	streamReq := backend.PrimaryRequest{
		MediaType:    mediaType,
		QueryText:    text,
		QueryFilters: req.Filters.Query(),
		SessionID:    p.state.SessionID,
		QueryID:      queryID,
		DeviceInfo:   p.backend.DeviceInfo(),
	}
	p.primaryTok = p.primary.Start(p.ctx, func(ctx context.Context) (io.ReadCloser, error) {
		return p.backend.OpenPrimaryStream(ctx, streamReq)
	}, stream.Handler{
		OnEvent: p.onPrimaryEvent,
		OnEnd:   p.onPrimaryEnd,
	})

	out := changes{state: true}
	p.finishLocked(&out)
	p.mu.Unlock()

	p.logger.Info().Str("queryId", queryID).Str("mediaType", mediaType).Msg("Started explore query")
	p.emit(out)
	return queryID, nil
}

// Cancel aborts both streams and any pending rerun. The page ends in the
// cancelled state, never in error. It reports whether anything was live.
func (p *Page) Cancel() bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}

	restored := p.restoreRerunLocked()
	primaryLive := p.primary.Cancel()
	whyLive := p.why.Cancel()
	if !restored && !primaryLive && !whyLive && !p.state.Live() {
		p.mu.Unlock()
		return false
	}

	out := changes{state: true}
	// A restored rerun snapshot already carries its final status.
	if primaryLive || whyLive || !restored {
		state, effects := PrimaryEnded(p.state, stream.ErrCancelled)
		p.state = state
		p.applyLocked(effects, &out)
	}
	p.finishLocked(&out)
	queryID := p.state.QueryID
	p.mu.Unlock()

	p.logger.Info().Str("queryId", queryID).Msg("Cancelled explore query")
	p.emit(out)
	return true
}

// Close aborts everything and waits for the stream goroutines to return.
func (p *Page) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	tokens := []stream.Token{p.primaryTok, p.whyTok}
	p.abortLocked()
	p.mu.Unlock()

	p.cancel()
	for _, tok := range tokens {
		if tok != nil {
			<-tok.Finished()
		}
	}
}

// Rerun re-queries the current session with new filters. An unchanged
// selection is a no-op and reports false. On failure every piece of visible
// state is restored and the error is returned.
func (p *Page) Rerun(ctx context.Context, f Filters) (bool, error) {
	p.mu.Lock()
	switch {
	case p.closed:
		p.mu.Unlock()
		return false, ErrClosed
	case p.state.QueryID == "":
		p.mu.Unlock()
		return false, ErrNoSession
	case f.Equal(p.state.Filters):
		p.mu.Unlock()
		metrics.Reruns.WithLabelValues("skipped").Inc()
		p.logger.Debug().Msg("Filters unchanged, skipping rerun")
		return false, nil
	}

	// A rerun that supersedes a pending one keeps the older snapshot, which
	// is the last state the user actually saw.
	snap := p.rerun
	if snap == nil {
		snap = &rerunSnapshot{
			state:     p.state.clone(),
			items:     p.store.Snapshot(),
			watchlist: p.watchlist.Entries(),
			feedback:  copyFeedback(p.feedback),
		}
	}
	p.abortLocked()
	p.rerun = snap
	epoch := p.epoch

	rctx, cancel := context.WithCancel(ctx)
	p.rerunCancel = cancel
	defer cancel()

	p.store.Clear()
	p.watchlist.Reset()
	p.feedback = make(map[string]backend.FeedbackValue)
	p.state.Status = StatusLoading
	p.state.Busy = true
	p.state.WhyBusy = false
	p.state.ErrorMessage = ""
	p.state.ErrorID = ""
	p.state.ExplanationError = ""
	p.state.Filters = f.clone()

	req := backend.RerunRequest{
		SessionID:  p.state.SessionID,
		QueryID:    p.state.QueryID,
		DeviceInfo: p.backend.DeviceInfo(),
		Patch:      f.Patch(),
	}
	out := changes{state: true}
	p.finishLocked(&out)
	p.mu.Unlock()
	p.emit(out)

	resp, err := p.backend.Rerun(rctx, req)

	p.mu.Lock()
	if p.closed || p.epoch != epoch {
		p.mu.Unlock()
		p.logger.Debug().Str("queryId", req.QueryID).Msg("Discarding superseded rerun result")
		return false, ErrSuperseded
	}
	p.rerun = nil
	p.rerunCancel = nil

	out = changes{state: true}
	if err != nil {
		p.restoreLocked(snap)
		switch {
		case errors.Is(err, backend.ErrUnauthorized):
			p.state.Status = StatusUnauthorized
		case ctx.Err() != nil:
			// The caller went away; nothing failed from the user's view.
		default:
			out.toast = &toast{kind: "error", message: rerunFailedMessage}
		}
		p.finishLocked(&out)
		p.mu.Unlock()

		metrics.Reruns.WithLabelValues("restored").Inc()
		p.logger.Warn().Err(err).Str("queryId", req.QueryID).Msg("Rerun failed, restored previous results")
		p.emit(out)
		return false, fmt.Errorf("rerun: %w", err)
	}

	state, effects := ReduceRerun(p.state, resp)
	p.state = state
	p.applyLocked(effects, &out)
	p.finishLocked(&out)
	p.mu.Unlock()

	metrics.Reruns.WithLabelValues("applied").Inc()
	p.logger.Info().Str("queryId", state.QueryID).Int("items", len(out.snapshot.Items)).Msg("Applied rerun")
	p.emit(out)
	return true, nil
}

// Feedback records a thumbs reaction for one item of the current results
// and posts it to the backend. Delivery is best effort.
func (p *Page) Feedback(ctx context.Context, mediaID string, value backend.FeedbackValue) error {
	switch value {
	case backend.FeedbackLike, backend.FeedbackDislike, backend.FeedbackNone:
	default:
		return ErrInvalidFeedback
	}

	p.mu.Lock()
	if _, ok := p.store.Get(mediaID); !ok {
		p.mu.Unlock()
		return ErrUnknownItem
	}
	if value == backend.FeedbackNone {
		delete(p.feedback, mediaID)
	} else {
		p.feedback[mediaID] = value
	}
	fb := backend.Feedback{
		MediaID:   mediaID,
		MediaType: p.state.MediaType,
		QueryID:   p.state.QueryID,
		Value:     value,
	}
	out := changes{state: true}
	p.finishLocked(&out)
	p.mu.Unlock()

	p.emit(out)

	if err := p.backend.SendFeedback(ctx, fb); err != nil {
		p.logger.Warn().Err(err).Str("mediaId", mediaID).Msg("Failed to send feedback")
	}
	return nil
}

// Snapshot returns the full visible page state.
func (p *Page) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// State returns the page state without items.
func (p *Page) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.clone()
}

// Item returns one result item.
func (p *Page) Item(mediaID string) (results.Item, bool) {
	return p.store.Get(mediaID)
}

func (p *Page) onPrimaryEvent(tok stream.Token, ev sse.Event) {
	pe, ok := DecodePrimary(ev)
	if !ok {
		p.logger.Debug().Str("type", ev.Type).Msg("Ignoring undecodable primary event")
		return
	}

	p.mu.Lock()
	if !p.isCurrent(tok, p.primaryTok) {
		p.mu.Unlock()
		return
	}
	if IsStale(p.state, pe.QueryID) {
		p.mu.Unlock()
		metrics.StaleEventsDropped.Inc()
		p.logger.Debug().Str("queryId", pe.QueryID).Str("type", ev.Type).Msg("Dropping stale primary event")
		return
	}

	out := changes{state: true}
	state, effects := ReducePrimary(p.state, pe)
	p.state = state
	p.applyLocked(effects, &out)
	p.finishLocked(&out)
	p.mu.Unlock()

	if pe.Kind == EventError {
		p.logger.Warn().Str("queryId", state.QueryID).Str("errorId", state.ErrorID).Msg("Primary stream reported an error")
	}
	p.emit(out)
}

func (p *Page) onPrimaryEnd(tok stream.Token, err error) {
	p.mu.Lock()
	if !p.isCurrent(tok, p.primaryTok) {
		p.mu.Unlock()
		return
	}

	out := changes{state: true}
	state, effects := PrimaryEnded(p.state, err)
	p.state = state
	p.applyLocked(effects, &out)
	p.finishLocked(&out)
	p.mu.Unlock()

	p.emit(out)
}

func (p *Page) onExplanationEvent(tok stream.Token, ev sse.Event) {
	ee, ok := DecodeExplanation(ev)
	if !ok {
		p.logger.Debug().Str("type", ev.Type).Msg("Ignoring undecodable explanation event")
		return
	}

	p.mu.Lock()
	if !p.isCurrent(tok, p.whyTok) {
		p.mu.Unlock()
		return
	}
	if IsStale(p.state, ee.QueryID) {
		p.mu.Unlock()
		metrics.StaleEventsDropped.Inc()
		p.logger.Debug().Str("queryId", ee.QueryID).Str("type", ev.Type).Msg("Dropping stale explanation event")
		return
	}

	out := changes{state: ee.Kind != EventWhyDelta}
	state, effects := ReduceExplanation(p.state, ee)
	p.state = state
	p.applyLocked(effects, &out)
	p.finishLocked(&out)
	p.mu.Unlock()

	p.emit(out)
}

func (p *Page) onExplanationEnd(tok stream.Token, err error) {
	p.mu.Lock()
	if !p.isCurrent(tok, p.whyTok) {
		p.mu.Unlock()
		return
	}

	out := changes{state: true}
	state, effects := ExplanationEnded(p.state, err)
	p.state = state
	p.applyLocked(effects, &out)
	p.finishLocked(&out)
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn().Err(err).Str("queryId", state.QueryID).Msg("Explanation stream failed")
	}
	p.emit(out)
}

// isCurrent reports whether tok is the live token of its slot. The aborted
// flag is checked as well as identity, so a late callback of a cancelled
// stream is rejected even before the slot is reassigned.
func (p *Page) isCurrent(tok, current stream.Token) bool {
	return !p.closed && tok != nil && tok == current && !tok.IsCancelled()
}

// abortLocked cancels both streams and any pending rerun call, and bumps the
// epoch so that late results of either are discarded.
func (p *Page) abortLocked() {
	p.primary.Cancel()
	p.why.Cancel()
	p.primaryTok = nil
	p.whyTok = nil
	if p.rerunCancel != nil {
		p.rerunCancel()
		p.rerunCancel = nil
	}
	p.rerun = nil
	p.epoch++
}

// restoreRerunLocked puts back the state a pending rerun cleared.
func (p *Page) restoreRerunLocked() bool {
	snap := p.rerun
	if snap == nil {
		return false
	}
	p.abortLocked()
	p.restoreLocked(snap)
	return true
}

func (p *Page) restoreLocked(snap *rerunSnapshot) {
	p.state = snap.state.clone()
	p.store.Restore(snap.items)
	p.watchlist.Restore(snap.watchlist)
	p.feedback = copyFeedback(snap.feedback)

	// The streams of the snapshot were aborted when the rerun started.
	p.state.Busy = false
	p.state.WhyBusy = false
	if p.state.Status == StatusLoading || p.state.Status == StatusStreaming {
		p.state.Status = StatusCancelled
	}
	p.store.FinalizeAllPending()
}

func (p *Page) startExplanationLocked(url string) {
	p.whyTok = p.why.Start(p.ctx, func(ctx context.Context) (io.ReadCloser, error) {
		return p.backend.OpenExplanationStream(ctx, url)
	}, stream.Handler{
		OnEvent: p.onExplanationEvent,
		OnEnd:   p.onExplanationEnd,
	})
}

func (p *Page) applyLocked(effects []Effect, out *changes) {
	for _, eff := range effects {
		switch e := eff.(type) {
		case ReplaceItems:
			p.store.ReplaceAll(e.Items)
			p.feedback = make(map[string]backend.FeedbackValue)
			out.state = true
		case StartExplanation:
			p.startExplanationLocked(e.URL)
		case CancelExplanation:
			p.why.Cancel()
			p.whyTok = nil
		case LookupWatchlist:
			p.watchlist.Track(e.Items)
		case MergeItem:
			if p.store.MergeByKey(e.MediaID, e.Patch) {
				if item, ok := p.store.Get(e.MediaID); ok {
					out.items = append(out.items, item)
				}
			}
		case FinalizeItems:
			if p.store.FinalizeAllPending() > 0 {
				out.state = true
			}
		case LogShown:
			if p.shown != nil && p.store.Len() > 0 {
				p.shown.LogShown(e.QueryID, p.store.Items())
			}
		}
	}
}

func (p *Page) nextQueryIDLocked() string {
	p.seq++
	return fmt.Sprintf("%s-%d-%d", p.state.SessionID, p.now().UnixMilli(), p.seq)
}

func (p *Page) snapshotLocked() Snapshot {
	return Snapshot{
		State:     p.state.clone(),
		Items:     p.store.Items(),
		Watchlist: p.watchlist.Entries(),
		Feedback:  copyFeedback(p.feedback),
	}
}

// changes collects the notifications of one locked section. They are sent
// after the lock is released.
type changes struct {
	state    bool
	items    []results.Item
	toast    *toast
	snapshot Snapshot
	notifier Notifier
}

type toast struct {
	kind    string
	message string
}

func (p *Page) finishLocked(out *changes) {
	out.notifier = p.notifier
	if out.state {
		out.snapshot = p.snapshotLocked()
	}
}

func (p *Page) emit(out changes) {
	n := out.notifier
	if n == nil {
		return
	}
	if out.state {
		n.StateChanged(out.snapshot)
	} else {
		for _, item := range out.items {
			n.ItemChanged(item)
		}
	}
	if out.toast != nil {
		n.Toast(out.toast.kind, out.toast.message)
	}
}

func copyFeedback(in map[string]backend.FeedbackValue) map[string]backend.FeedbackValue {
	out := make(map[string]backend.FeedbackValue, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type nopNotifier struct{}

func (nopNotifier) StateChanged(Snapshot)    {}
func (nopNotifier) ItemChanged(results.Item) {}
func (nopNotifier) Toast(string, string)     {}
