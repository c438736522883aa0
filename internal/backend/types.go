package backend

import (
	"github.com/goccy/go-json"

	"github.com/reelwise/reelwise/internal/results"
)

// DeviceInfo identifies the calling client to the backend.
type DeviceInfo struct {
	Platform   string `json:"platform"`
	AppVersion string `json:"app_version,omitempty"`
}

// YearRange is an inclusive [from, to] release year range.
type YearRange [2]int

// QueryFilters are the filters sent with a fresh query.
type QueryFilters struct {
	Providers []string   `json:"providers,omitempty"`
	YearRange *YearRange `json:"year_range,omitempty"`
}

// PrimaryRequest opens the recommendation stream.
type PrimaryRequest struct {
	MediaType    string       `json:"media_type"`
	QueryText    string       `json:"query_text"`
	QueryFilters QueryFilters `json:"query_filters"`
	SessionID    string       `json:"session_id"`
	QueryID      string       `json:"query_id"`
	DeviceInfo   DeviceInfo   `json:"device_info"`
}

// SpecSource tells who chose a filter value echoed in the active spec.
type SpecSource string

const (
	SourceUser   SpecSource = "user"
	SourceSystem SpecSource = "system"
)

// ProvidersSpec is the providers entry of the active spec envelope.
type ProvidersSpec struct {
	Value  []string   `json:"value"`
	Source SpecSource `json:"source,omitempty"`
}

// YearRangeSpec is the year range entry of the active spec envelope.
type YearRangeSpec struct {
	Value  *YearRange `json:"value"`
	Source SpecSource `json:"source,omitempty"`
}

// ActiveSpec echoes the filters the backend actually applied.
type ActiveSpec struct {
	Providers *ProvidersSpec `json:"providers,omitempty"`
	YearRange *YearRangeSpec `json:"year_range,omitempty"`
}

// RerunPatch carries the full desired filter selection. A nil field is sent
// as null and means "no filter".
type RerunPatch struct {
	Providers []string   `json:"providers"`
	YearRange *YearRange `json:"year_range"`
}

// RerunRequest re-queries the current session with new filters.
type RerunRequest struct {
	SessionID  string     `json:"session_id"`
	QueryID    string     `json:"query_id"`
	DeviceInfo DeviceInfo `json:"device_info"`
	Patch      RerunPatch `json:"patch"`
}

// RerunResponse is the single-shot rerun result.
type RerunResponse struct {
	QueryID    string            `json:"query_id"`
	Mode       string            `json:"mode"`
	Opening    string            `json:"opening,omitempty"`
	Items      []results.RawItem `json:"items"`
	StreamURL  string            `json:"stream_url,omitempty"`
	ActiveSpec *ActiveSpec       `json:"active_spec,omitempty"`
}

// WatchlistStatus is the remote tracking status of a watchlist entry.
type WatchlistStatus string

const (
	StatusWant     WatchlistStatus = "want"
	StatusWatching WatchlistStatus = "watching"
	StatusWatched  WatchlistStatus = "watched"
)

// Valid reports whether s is a known status.
func (s WatchlistStatus) Valid() bool {
	switch s {
	case StatusWant, StatusWatching, StatusWatched:
		return true
	}
	return false
}

// CreateWatchlistRequest adds an item to the remote watchlist.
type CreateWatchlistRequest struct {
	MediaID     string          `json:"media_id"`
	MediaType   string          `json:"media_type"`
	Status      WatchlistStatus `json:"status"`
	Title       string          `json:"title"`
	PosterURL   string          `json:"poster_url,omitempty"`
	ReleaseYear int             `json:"release_year,omitempty"`
	Genres      []string        `json:"genres,omitempty"`
	Source      string          `json:"source"`
}

// WatchlistRecord is the server-confirmed state of an entry.
type WatchlistRecord struct {
	ID     string          `json:"id"`
	Status WatchlistStatus `json:"status"`
	Rating *int            `json:"rating"`
}

// LookupKey identifies one item in a batch existence lookup.
type LookupKey struct {
	MediaID   string `json:"media_id"`
	MediaType string `json:"media_type"`
}

// LookupResult is the existence state of one looked-up item.
type LookupResult struct {
	MediaID json.RawMessage `json:"media_id"`
	Exists  bool            `json:"exists"`
	ID      string          `json:"id,omitempty"`
	Status  WatchlistStatus `json:"status,omitempty"`
	Rating  *int            `json:"rating,omitempty"`
}

// Key returns the canonical media id of the result.
func (r LookupResult) Key() string {
	return results.CanonicalMediaID(r.MediaID)
}

// ShownItem is one recommendation as it was finally displayed.
type ShownItem struct {
	MediaID              string            `json:"media_id"`
	WhyText              string            `json:"why_text,omitempty"`
	IMDbRating           *float64          `json:"imdb_rating"`
	RottenTomatoesRating *float64          `json:"rotten_tomatoes_rating"`
	WhySource            results.WhySource `json:"why_source,omitempty"`
}

// ShownLog is the telemetry record for one query.
type ShownLog struct {
	QueryID string      `json:"query_id"`
	Items   []ShownItem `json:"items"`
}

// FeedbackValue is a thumbs feedback value.
type FeedbackValue string

const (
	FeedbackLike    FeedbackValue = "like"
	FeedbackDislike FeedbackValue = "dislike"
	FeedbackNone    FeedbackValue = "none"
)

// Feedback records a user's thumbs reaction to one recommendation.
type Feedback struct {
	MediaID   string        `json:"media_id"`
	MediaType string        `json:"media_type"`
	QueryID   string        `json:"query_id"`
	Value     FeedbackValue `json:"value"`
}
