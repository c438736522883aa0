package watchlist

import (
	"context"
	"errors"
	"time"

	"github.com/reelwise/reelwise/internal/backend"
)

var (
	ErrMissingID = errors.New("watchlist response carried no id")
)

// State is the resolved membership of an item in the watchlist.
type State string

const (
	StateLoading  State = "loading"
	StateNotAdded State = "not_added"
	StateInList   State = "in_list"
)

// Entry is the local watchlist state of one media item.
type Entry struct {
	MediaID   string                  `json:"mediaId"`
	MediaType string                  `json:"mediaType"`
	State     State                   `json:"state"`
	Status    backend.WatchlistStatus `json:"status,omitempty"`
	Rating    *int                    `json:"rating"`
	ID        string                  `json:"id,omitempty"`
	Busy      bool                    `json:"busy"`
}

func (e Entry) clone() Entry {
	if e.Rating != nil {
		r := *e.Rating
		e.Rating = &r
	}
	return e
}

// Remote is the watchlist resource on the backend.
type Remote interface {
	CreateWatchlist(ctx context.Context, req backend.CreateWatchlistRequest) (*backend.WatchlistRecord, error)
	UpdateWatchlistStatus(ctx context.Context, id string, status backend.WatchlistStatus) (*backend.WatchlistRecord, error)
	UpdateWatchlistRating(ctx context.Context, id string, rating int) (*backend.WatchlistRecord, error)
	DeleteWatchlist(ctx context.Context, id string) error
	LookupWatchlist(ctx context.Context, keys []backend.LookupKey) ([]backend.LookupResult, error)
}

// Listener observes entry changes and failed mutations.
type Listener interface {
	EntryChanged(e Entry)
	MutationFailed(op, mediaID string, err error)
}

// RatingRecorder is told about every successfully saved rating.
type RatingRecorder interface {
	RecordRating(ctx context.Context)
}

// Options tunes the controller.
type Options struct {
	BatchSize      int
	Debounce       time.Duration
	FlushThreshold int
	// MediaType is used for items that carry no media type of their own.
	MediaType string
	// Source is sent with create calls to attribute the add.
	Source string
}

// DefaultOptions returns the batching policy: chunks of 20, a 300ms
// debounce, and an early flush once 12 keys are queued.
func DefaultOptions() Options {
	return Options{
		BatchSize:      20,
		Debounce:       300 * time.Millisecond,
		FlushThreshold: 12,
		MediaType:      "movie",
		Source:         "explore",
	}
}

// Snapshot is a detached copy of all entries.
type Snapshot map[string]Entry

type nopListener struct{}

func (nopListener) EntryChanged(Entry) {}
func (nopListener) MutationFailed(string, string, error) {}
