package explore

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/reelwise/reelwise/internal/backend"
	"github.com/reelwise/reelwise/internal/ratings"
	"github.com/reelwise/reelwise/internal/results"
	"github.com/reelwise/reelwise/internal/sse"
)

// EventKind is the type of a stream event.
type EventKind string

const (
	EventStarted  EventKind = "started"
	EventOpening  EventKind = "opening"
	EventChat     EventKind = "chat"
	EventRecs     EventKind = "recs"
	EventDone     EventKind = "done"
	EventError    EventKind = "error"
	EventWhyDelta EventKind = "why_delta"
)

// OpeningData is the payload of an opening event.
type OpeningData struct {
	QueryID        string              `json:"query_id"`
	OpeningSummary string              `json:"opening_summary"`
	ActiveSpec     *backend.ActiveSpec `json:"active_spec"`
}

// RecsData is the payload of a recs event.
type RecsData struct {
	QueryID        string            `json:"query_id"`
	Items          []results.RawItem `json:"items"`
	StreamURL      string            `json:"stream_url"`
	CuratorOpening string            `json:"curator_opening"`
}

// ChatData is the payload of a chat event.
type ChatData struct {
	QueryID string `json:"query_id"`
	Message string `json:"message"`
}

// ErrorData is the payload of an error event on either stream.
type ErrorData struct {
	QueryID string `json:"query_id"`
	Message string `json:"message"`
	ErrorID string `json:"error_id"`
}

type whyDeltaData struct {
	QueryID              string          `json:"query_id"`
	MediaID              json.RawMessage `json:"media_id"`
	IMDbRating           json.RawMessage `json:"imdb_rating"`
	RottenTomatoesRating json.RawMessage `json:"rotten_tomatoes_rating"`
	WhyYouMightEnjoyIt   *string         `json:"why_you_might_enjoy_it"`
	WhySource            string          `json:"why_source"`
}

// PrimaryEvent is a decoded event of the primary stream. Exactly one payload
// field is set for opening, chat, recs and error.
type PrimaryEvent struct {
	Kind    EventKind
	QueryID string
	Opening *OpeningData
	Chat    *ChatData
	Recs    *RecsData
	Error   *ErrorData
}

// ExplanationEvent is a decoded event of the explanation stream.
type ExplanationEvent struct {
	Kind    EventKind
	QueryID string
	MediaID string
	Patch   results.Patch
	Error   *ErrorData
}

// DecodePrimary turns a raw frame into a primary event. Unknown types and
// undecodable content payloads are reported as false.
func DecodePrimary(ev sse.Event) (PrimaryEvent, bool) {
	out := PrimaryEvent{Kind: EventKind(ev.Type)}

	switch out.Kind {
	case EventStarted, EventDone:
		var tag struct {
			QueryID string `json:"query_id"`
		}
		_ = ev.Decode(&tag)
		out.QueryID = tag.QueryID
		return out, true

	case EventOpening:
		var data OpeningData
		if err := ev.Decode(&data); err != nil {
			return out, false
		}
		out.Opening = &data
		out.QueryID = data.QueryID
		return out, true

	case EventChat:
		var data ChatData
		if err := ev.Decode(&data); err != nil {
			return out, false
		}
		out.Chat = &data
		out.QueryID = data.QueryID
		return out, true

	case EventRecs:
		var data RecsData
		if err := ev.Decode(&data); err != nil || ev.Data == nil {
			return out, false
		}
		out.Recs = &data
		out.QueryID = data.QueryID
		return out, true

	case EventError:
		out.Error = decodeError(ev)
		out.QueryID = out.Error.QueryID
		return out, true
	}

	return out, false
}

// DecodeExplanation turns a raw frame into an explanation event. Deltas
// without a usable media id are reported as false.
func DecodeExplanation(ev sse.Event) (ExplanationEvent, bool) {
	out := ExplanationEvent{Kind: EventKind(ev.Type)}

	switch out.Kind {
	case EventStarted, EventDone:
		var tag struct {
			QueryID string `json:"query_id"`
		}
		_ = ev.Decode(&tag)
		out.QueryID = tag.QueryID
		return out, true

	case EventWhyDelta:
		var data whyDeltaData
		if err := ev.Decode(&data); err != nil {
			return out, false
		}
		out.MediaID = results.CanonicalMediaID(data.MediaID)
		if out.MediaID == "" {
			return out, false
		}
		out.QueryID = data.QueryID
		out.Patch = results.Patch{
			IMDbRating:           ratings.IMDb(data.IMDbRating),
			RottenTomatoesRating: ratings.RottenTomatoes(data.RottenTomatoesRating),
			WhySource:            results.ParseWhySource(data.WhySource),
		}
		if data.WhyYouMightEnjoyIt != nil && strings.TrimSpace(*data.WhyYouMightEnjoyIt) != "" {
			why := *data.WhyYouMightEnjoyIt
			out.Patch.WhyMarkdown = &why
		}
		return out, true

	case EventError:
		out.Error = decodeError(ev)
		out.QueryID = out.Error.QueryID
		return out, true
	}

	return out, false
}

// decodeError tolerates free-form error payloads.
func decodeError(ev sse.Event) *ErrorData {
	var data ErrorData
	if err := ev.Decode(&data); err != nil {
		var text string
		if ev.Decode(&text) == nil {
			data.Message = text
		}
	}
	return &data
}
