// Package telemetry reports the recommendations a user was finally shown.
// Delivery is fire-and-forget: failures are logged and never reach the user.
package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/reelwise/reelwise/internal/backend"
	"github.com/reelwise/reelwise/internal/config"
	"github.com/reelwise/reelwise/internal/metrics"
	"github.com/reelwise/reelwise/internal/results"
)

const (
	breakerName = "telemetry-shown"
	sendTimeout = 10 * time.Second
)

// Sink receives shown-recommendation logs.
type Sink interface {
	LogShown(ctx context.Context, entry backend.ShownLog) error
}

// Logger posts shown recommendations through a circuit breaker so that a
// dead sink stops being called until its open timeout elapses.
type Logger struct {
	sink    Sink
	cb      *gobreaker.CircuitBreaker[struct{}]
	logger  zerolog.Logger
	enabled bool

	mu     sync.Mutex
	logged string
	wg     sync.WaitGroup
}

// NewLogger creates a telemetry logger.
func NewLogger(sink Sink, cfg config.TelemetryConfig, logger zerolog.Logger) *Logger {
	log := logger.With().Str("component", "telemetry").Logger()

	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    time.Duration(cfg.IntervalSecs) * time.Second,
		Timeout:     time.Duration(cfg.OpenTimeoutSecs) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info().Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return &Logger{
		sink:    sink,
		cb:      cb,
		logger:  log,
		enabled: cfg.Enabled,
	}
}

// LogShown sends the shown items of a query in the background. A query is
// logged at most once in a row.
func (l *Logger) LogShown(queryID string, items []results.Item) {
	if !l.enabled || queryID == "" || len(items) == 0 {
		return
	}

	l.mu.Lock()
	if l.logged == queryID {
		l.mu.Unlock()
		return
	}
	l.logged = queryID
	l.mu.Unlock()

	entry := backend.ShownLog{QueryID: queryID, Items: ShownItems(items)}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		if err := l.Send(ctx, entry); err != nil {
			l.logger.Warn().Err(err).Str("queryId", queryID).Msg("Failed to log shown recommendations")
		}
	}()
}

// Send posts one entry through the circuit breaker.
func (l *Logger) Send(ctx context.Context, entry backend.ShownLog) error {
	_, err := l.cb.Execute(func() (struct{}, error) {
		return struct{}{}, l.sink.LogShown(ctx, entry)
	})

	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
	}
	return err
}

// State returns the breaker state.
func (l *Logger) State() gobreaker.State {
	return l.cb.State()
}

// Wait blocks until every background send has returned.
func (l *Logger) Wait() {
	l.wg.Wait()
}

// ShownItems converts result items into their telemetry form.
func ShownItems(items []results.Item) []backend.ShownItem {
	out := make([]backend.ShownItem, 0, len(items))
	for _, it := range items {
		shown := backend.ShownItem{
			MediaID:              it.MediaID,
			IMDbRating:           it.IMDbRating,
			RottenTomatoesRating: it.RottenTomatoesRating,
			WhySource:            it.WhySource,
		}
		if it.WhyMarkdown != nil {
			shown.WhyText = *it.WhyMarkdown
		}
		out = append(out, shown)
	}
	return out
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
