// Package stream owns cancellable server-sent-event requests, one live
// request per category at a time.
package stream

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/reelwise/reelwise/internal/metrics"
	"github.com/reelwise/reelwise/internal/sse"
)

// ErrCancelled marks an outcome caused by an intentional abort. It is never
// a user-facing error.
var ErrCancelled = errors.New("stream cancelled")

// Category names an independent stream slot.
type Category string

const (
	CategoryPrimary     Category = "primary"
	CategoryExplanation Category = "explanation"
)

// Status is the lifecycle state of the most recently started stream.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusStreaming  Status = "streaming"
	StatusDone       Status = "done"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

// OpenFunc opens the network stream. The context is cancelled on abort.
type OpenFunc func(ctx context.Context) (io.ReadCloser, error)

// Handler receives the frames and the terminal outcome of one stream.
// Callbacks run on the stream goroutine, in arrival order. Neither callback
// is invoked once the token has been cancelled.
type Handler struct {
	OnEvent func(tok Token, ev sse.Event)
	// OnEnd receives nil on a clean end of stream, or the transport error.
	OnEnd func(tok Token, err error)
}

// Controller tracks exactly one outstanding request for its category.
type Controller struct {
	category Category
	logger   zerolog.Logger

	mu      sync.Mutex
	current *cancelToken
	status  Status
	lastErr error
}

// NewController creates a controller for the given category.
func NewController(category Category, logger zerolog.Logger) *Controller {
	return &Controller{
		category: category,
		logger:   logger.With().Str("component", "stream").Str("category", string(category)).Logger(),
		status:   StatusIdle,
	}
}

// Start aborts any live request of this category, then opens a new one and
// feeds its frames to h. It returns the token of the new stream.
func (c *Controller) Start(parent context.Context, open OpenFunc, h Handler) Token {
	c.mu.Lock()
	if c.current != nil {
		if c.status == StatusConnecting || c.status == StatusStreaming {
			metrics.StreamsCancelled.WithLabelValues(string(c.category)).Inc()
		}
		c.current.abort()
	}
	tok := newToken(parent)
	c.current = tok
	c.status = StatusConnecting
	c.lastErr = nil
	c.mu.Unlock()

	metrics.StreamsStarted.WithLabelValues(string(c.category)).Inc()
	go c.run(tok, open, h)
	return tok
}

// Cancel aborts the live request, if any. It reports whether a request was live.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || c.current.IsCancelled() {
		return false
	}
	live := c.status == StatusConnecting || c.status == StatusStreaming
	c.current.abort()
	if live {
		c.status = StatusCancelled
		metrics.StreamsCancelled.WithLabelValues(string(c.category)).Inc()
	}
	return live
}

// Status returns the status of the most recent stream.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Err returns the error that ended the most recent stream, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// IsCurrent reports whether tok belongs to the live, uncancelled stream.
func (c *Controller) IsCurrent(tok Token) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && Token(c.current) == tok && !c.current.IsCancelled()
}

func (c *Controller) run(tok *cancelToken, open OpenFunc, h Handler) {
	defer close(tok.finished)
	defer tok.cancel()

	body, err := open(tok.ctx)
	if err != nil {
		c.finish(tok, h, err)
		return
	}
	defer body.Close()

	if !c.transition(tok, StatusStreaming) {
		return
	}

	reader := sse.NewReader(body)
	for {
		ev, err := reader.Next()
		if tok.IsCancelled() {
			return
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			c.finish(tok, h, err)
			return
		}
		if h.OnEvent != nil {
			h.OnEvent(tok, ev)
		}
	}
}

// transition moves the controller to status when tok is still live.
func (c *Controller) transition(tok *cancelToken, status Status) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tok.IsCancelled() || c.current != tok {
		return false
	}
	c.status = status
	return true
}

func (c *Controller) finish(tok *cancelToken, h Handler, err error) {
	c.mu.Lock()
	if tok.IsCancelled() || c.current != tok {
		c.mu.Unlock()
		c.logger.Debug().Msg("Ignoring completion of aborted stream")
		return
	}
	if err != nil {
		c.status = StatusError
		c.lastErr = err
		metrics.StreamErrors.WithLabelValues(string(c.category)).Inc()
	} else {
		c.status = StatusDone
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn().Err(err).Msg("Stream ended with error")
	} else {
		c.logger.Debug().Msg("Stream completed")
	}

	if h.OnEnd != nil {
		h.OnEnd(tok, err)
	}
}
