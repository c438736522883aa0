package explore

import (
	"context"
	"errors"
	"strings"

	"github.com/reelwise/reelwise/internal/backend"
	"github.com/reelwise/reelwise/internal/results"
	"github.com/reelwise/reelwise/internal/stream"
)

const (
	defaultErrorMessage  = "Something went wrong while loading recommendations."
	streamErrorMessage   = "The connection to the recommendation service was interrupted."
	rerunModeRecs        = "RECS"
	explanationFailedMsg = "Explanations are unavailable right now."
)

// Effect is a side effect requested by a reducer and carried out by the page.
type Effect interface {
	isEffect()
}

// ReplaceItems replaces the result collection.
type ReplaceItems struct{ Items []results.Item }

// StartExplanation opens the dependent explanation stream.
type StartExplanation struct{ URL string }

// CancelExplanation aborts the explanation stream.
type CancelExplanation struct{}

// LookupWatchlist resolves the watchlist state of items.
type LookupWatchlist struct{ Items []results.Item }

// MergeItem applies an explanation delta to one item.
type MergeItem struct {
	MediaID string
	Patch   results.Patch
}

// FinalizeItems clears every pending loading flag.
type FinalizeItems struct{}

// LogShown reports the final shown recommendations.
type LogShown struct{ QueryID string }

func (ReplaceItems) isEffect()      {}
func (StartExplanation) isEffect()  {}
func (CancelExplanation) isEffect() {}
func (LookupWatchlist) isEffect()   {}
func (MergeItem) isEffect()         {}
func (FinalizeItems) isEffect()     {}
func (LogShown) isEffect()          {}

// IsStale reports whether an event tagged with queryID belongs to a query
// other than the active one. Untagged events are not stale by themselves.
func IsStale(s State, queryID string) bool {
	return queryID != "" && queryID != s.QueryID
}

// ReducePrimary applies one primary stream event.
func ReducePrimary(s State, ev PrimaryEvent) (State, []Effect) {
	if IsStale(s, ev.QueryID) {
		return s, nil
	}
	s = s.clone()

	switch ev.Kind {
	case EventStarted:
		s.Busy = true
		s.Status = StatusStreaming
		return s, nil

	case EventOpening:
		s.Mode = ModeRecs
		s.Status = StatusStreaming
		if ev.Opening != nil {
			s.OpeningSummary = ev.Opening.OpeningSummary
			s.Filters, s.ServerDefaults = Reconcile(s.Filters, s.ServerDefaults, ev.Opening.ActiveSpec)
		}
		return s, nil

	case EventChat:
		s.Mode = ModeChat
		s.Status = StatusDone
		s.Busy = false
		s.WhyBusy = false
		s.OpeningSummary = ""
		s.CuratorOpening = ""
		if ev.Chat != nil {
			s.ChatMessage = ev.Chat.Message
		}
		return s, []Effect{CancelExplanation{}, ReplaceItems{}}

	case EventRecs:
		if ev.Recs == nil {
			return s, nil
		}
		s.Mode = ModeRecs
		s.Status = StatusStreaming
		s.ChatMessage = ""
		if ev.Recs.CuratorOpening != "" {
			s.CuratorOpening = ev.Recs.CuratorOpening
		}
		return withRecs(s, results.FromRawList(ev.Recs.Items), ev.Recs.StreamURL)

	case EventDone:
		s.Busy = false
		if s.Status == StatusLoading || s.Status == StatusStreaming {
			s.Status = StatusDone
		}
		return s, nil

	case EventError:
		s.Busy = false
		s.WhyBusy = false
		s.Status = StatusError
		s.ErrorMessage = defaultErrorMessage
		s.ErrorID = ""
		if ev.Error != nil {
			if msg := strings.TrimSpace(ev.Error.Message); msg != "" {
				s.ErrorMessage = msg
			}
			s.ErrorID = ev.Error.ErrorID
		}
		return s, []Effect{CancelExplanation{}, FinalizeItems{}}
	}

	return s, nil
}

// withRecs installs a fresh result list: it replaces the collection, starts
// the explanation stream when a URL is known and queues watchlist lookups.
func withRecs(s State, items []results.Item, streamURL string) (State, []Effect) {
	effects := []Effect{ReplaceItems{Items: items}}
	if streamURL != "" && len(items) > 0 {
		s.WhyBusy = true
		effects = append(effects, StartExplanation{URL: streamURL})
	} else {
		s.WhyBusy = false
		effects = append(effects, CancelExplanation{}, FinalizeItems{})
	}
	if len(items) > 0 {
		effects = append(effects, LookupWatchlist{Items: items})
	}
	return s, effects
}

// PrimaryEnded applies the end of the primary stream: nil on a clean end of
// stream, or the transport error.
func PrimaryEnded(s State, err error) (State, []Effect) {
	s = s.clone()
	s.Busy = false

	switch {
	case err == nil:
		if s.Status == StatusLoading || s.Status == StatusStreaming {
			s.Status = StatusDone
		}
		if !s.WhyBusy {
			return s, []Effect{FinalizeItems{}}
		}
		return s, nil

	case isCancellation(err):
		s.WhyBusy = false
		s.Status = StatusCancelled
		return s, []Effect{CancelExplanation{}, FinalizeItems{}}

	case errors.Is(err, backend.ErrUnauthorized):
		s.WhyBusy = false
		s.Status = StatusUnauthorized
		return s, []Effect{CancelExplanation{}, FinalizeItems{}}

	default:
		s.WhyBusy = false
		s.Status = StatusError
		s.ErrorMessage = streamErrorMessage
		s.ErrorID = ""
		return s, []Effect{CancelExplanation{}, FinalizeItems{}}
	}
}

// ReduceExplanation applies one explanation stream event.
func ReduceExplanation(s State, ev ExplanationEvent) (State, []Effect) {
	if IsStale(s, ev.QueryID) {
		return s, nil
	}
	s = s.clone()

	switch ev.Kind {
	case EventStarted:
		s.WhyBusy = true
		return s, nil

	case EventWhyDelta:
		return s, []Effect{MergeItem{MediaID: ev.MediaID, Patch: ev.Patch}}

	case EventDone:
		s.WhyBusy = false
		return s, []Effect{FinalizeItems{}, LogShown{QueryID: s.QueryID}}

	case EventError:
		s.WhyBusy = false
		s.ExplanationError = explanationFailedMsg
		if ev.Error != nil && strings.TrimSpace(ev.Error.Message) != "" {
			s.ExplanationError = ev.Error.Message
		}
		return s, []Effect{FinalizeItems{}}
	}

	return s, nil
}

// ExplanationEnded applies the end of the explanation stream.
func ExplanationEnded(s State, err error) (State, []Effect) {
	s = s.clone()
	wasBusy := s.WhyBusy
	s.WhyBusy = false

	switch {
	case err == nil:
		if wasBusy {
			// The stream closed without a done event; items still get logged.
			return s, []Effect{FinalizeItems{}, LogShown{QueryID: s.QueryID}}
		}
		return s, []Effect{FinalizeItems{}}
	case isCancellation(err):
		return s, []Effect{FinalizeItems{}}
	case errors.Is(err, backend.ErrUnauthorized):
		s.Status = StatusUnauthorized
		return s, []Effect{FinalizeItems{}}
	default:
		s.ExplanationError = explanationFailedMsg
		return s, []Effect{FinalizeItems{}}
	}
}

// ReduceRerun installs a successful rerun response as if it had arrived as
// an opening plus recs pair on a fresh stream.
func ReduceRerun(s State, resp *backend.RerunResponse) (State, []Effect) {
	s = s.clone()
	if resp.QueryID != "" {
		s.QueryID = resp.QueryID
	}
	s.Busy = false
	s.Status = StatusDone
	s.ErrorMessage = ""
	s.ErrorID = ""
	s.ExplanationError = ""
	s.ChatMessage = ""
	if resp.Mode != "" && !strings.EqualFold(resp.Mode, rerunModeRecs) {
		s.Mode = ModeNone
	} else {
		s.Mode = ModeRecs
	}
	if resp.Opening != "" {
		s.OpeningSummary = resp.Opening
	}
	s.Filters, s.ServerDefaults = Reconcile(s.Filters, s.ServerDefaults, resp.ActiveSpec)

	return withRecs(s, results.FromRawList(resp.Items), resp.StreamURL)
}

func isCancellation(err error) bool {
	return errors.Is(err, stream.ErrCancelled) || errors.Is(err, context.Canceled)
}
