package api

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/reelwise/reelwise/internal/backend"
	"github.com/reelwise/reelwise/internal/explore"
	"github.com/reelwise/reelwise/internal/results"
	"github.com/reelwise/reelwise/internal/watchlist"
	"github.com/reelwise/reelwise/internal/websocket"
)

// Broadcaster pushes typed messages to connected clients.
type Broadcaster interface {
	Broadcast(msgType string, payload any) error
}

// Toast is a user-facing notification.
type Toast struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

var watchlistFailureMessages = map[string]string{
	"add":        "Couldn't add to your watchlist.",
	"set_status": "Couldn't update the watchlist status.",
	"rate":       "Couldn't save your rating.",
	"remove":     "Couldn't remove from your watchlist.",
}

const sessionExpiredMessage = "Your session has expired. Sign in again to continue."

// PushNotifier forwards explore page and watchlist changes to the view
// over the WebSocket hub. It implements explore.Notifier and
// watchlist.Listener.
type PushNotifier struct {
	hub    Broadcaster
	logger zerolog.Logger
}

// NewPushNotifier creates a notifier publishing through hub.
func NewPushNotifier(hub Broadcaster, logger zerolog.Logger) *PushNotifier {
	return &PushNotifier{hub: hub, logger: logger.With().Str("component", "push").Logger()}
}

func (n *PushNotifier) StateChanged(snap explore.Snapshot) {
	n.send(websocket.TypeExploreState, snap)
}

func (n *PushNotifier) ItemChanged(item results.Item) {
	n.send(websocket.TypeExploreItem, item)
}

func (n *PushNotifier) Toast(kind, message string) {
	n.send(websocket.TypeToast, Toast{Kind: kind, Message: message})
}

func (n *PushNotifier) EntryChanged(e watchlist.Entry) {
	n.send(websocket.TypeWatchlist, e)
}

// MutationFailed turns a rolled back watchlist mutation into an error toast.
func (n *PushNotifier) MutationFailed(op, mediaID string, err error) {
	message, ok := watchlistFailureMessages[op]
	if !ok {
		message = "Couldn't update your watchlist."
	}
	if errors.Is(err, backend.ErrUnauthorized) {
		message = sessionExpiredMessage
	}
	n.logger.Debug().Err(err).Str("op", op).Str("mediaId", mediaID).Msg("Watchlist mutation rolled back")
	n.Toast("error", message)
}

func (n *PushNotifier) send(msgType string, payload any) {
	if err := n.hub.Broadcast(msgType, payload); err != nil {
		n.logger.Warn().Err(err).Str("type", msgType).Msg("Failed to push message")
	}
}
