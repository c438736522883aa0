// Package backend is the HTTP client for the remote recommendation service:
// the primary and explanation SSE streams, reruns, the watchlist resource,
// feedback, telemetry and taste rebuilds.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/reelwise/reelwise/internal/auth"
	"github.com/reelwise/reelwise/internal/config"
)

var (
	// ErrUnauthorized is returned for 401/403 responses and when no usable
	// token is available. It is the same value as auth.ErrUnauthorized.
	ErrUnauthorized = auth.ErrUnauthorized
	ErrAPI          = errors.New("backend API error")
	ErrInvalidURL   = errors.New("invalid backend URL")
)

// TokenProvider supplies the bearer token for each call.
type TokenProvider interface {
	Token() (string, error)
}

// Client is a client for the recommendation backend.
type Client struct {
	httpClient   *http.Client
	streamClient *http.Client
	config       config.BackendConfig
	tokens       TokenProvider
	logger       zerolog.Logger
}

// NewClient creates a new backend client.
func NewClient(cfg config.BackendConfig, tokens TokenProvider, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		// Streams stay open for as long as the backend writes; they end by
		// EOF or cancellation.
		streamClient: &http.Client{},
		config:       cfg,
		tokens:       tokens,
		logger:       logger.With().Str("component", "backend").Logger(),
	}
}

// DeviceInfo returns the device descriptor sent with queries and reruns.
func (c *Client) DeviceInfo() DeviceInfo {
	return DeviceInfo{Platform: c.config.Platform, AppVersion: c.config.AppVersion}
}

// MediaType returns the configured default media type.
func (c *Client) MediaType() string {
	return c.config.MediaType
}

// OpenPrimaryStream starts the recommendation stream for a query.
func (c *Client) OpenPrimaryStream(ctx context.Context, req PrimaryRequest) (io.ReadCloser, error) {
	endpoint, err := c.resolve("/api/explore/stream")
	if err != nil {
		return nil, err
	}
	return c.openStream(ctx, http.MethodPost, endpoint, req)
}

// OpenExplanationStream opens the dependent explanation stream. Relative
// URLs are resolved against the configured base URL.
func (c *Client) OpenExplanationStream(ctx context.Context, streamURL string) (io.ReadCloser, error) {
	endpoint, err := c.resolve(streamURL)
	if err != nil {
		return nil, err
	}
	return c.openStream(ctx, http.MethodGet, endpoint, nil)
}

// Rerun re-queries the session with a filter patch.
func (c *Client) Rerun(ctx context.Context, req RerunRequest) (*RerunResponse, error) {
	var resp RerunResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/explore/rerun", req, &resp); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("queryId", resp.QueryID).
		Int("items", len(resp.Items)).
		Msg("Rerun completed")

	return &resp, nil
}

// SendFeedback records a thumbs reaction.
func (c *Client) SendFeedback(ctx context.Context, fb Feedback) error {
	return c.doJSON(ctx, http.MethodPost, "/api/feedback", fb, nil)
}

// LogShown posts the final shown recommendations for a query.
func (c *Client) LogShown(ctx context.Context, entry ShownLog) error {
	return c.doJSON(ctx, http.MethodPost, "/api/telemetry/shown", entry, nil)
}

// RebuildTaste asks the backend to rebuild the user's taste profile.
func (c *Client) RebuildTaste(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/api/taste/rebuild", nil, nil)
}

// resolve turns a path or absolute URL into an absolute endpoint.
func (c *Client) resolve(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrInvalidURL)
	}

	target, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if target.IsAbs() {
		return target.String(), nil
	}

	base, err := url.Parse(strings.TrimRight(c.config.BaseURL, "/") + "/")
	if err != nil || !base.IsAbs() {
		return "", fmt.Errorf("%w: base %q", ErrInvalidURL, c.config.BaseURL)
	}
	return base.ResolveReference(&url.URL{Path: strings.TrimPrefix(target.Path, "/"), RawQuery: target.RawQuery}).String(), nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) openStream(ctx context.Context, method, endpoint string, body any) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	endpoint, err := c.resolve(path)
	if err != nil {
		return err
	}

	req, err := c.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("path", path).Msg("HTTP request failed")
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// checkStatus maps non-2xx responses to ErrUnauthorized or ErrAPI.
func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	}

	if msg := errorMessage(resp.Body); msg != "" {
		return fmt.Errorf("%w: status %d: %s", ErrAPI, resp.StatusCode, msg)
	}
	return fmt.Errorf("%w: status %d", ErrAPI, resp.StatusCode)
}

func errorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	switch {
	case payload.Message != "":
		return payload.Message
	case payload.Error != "":
		return payload.Error
	default:
		return payload.Detail
	}
}
