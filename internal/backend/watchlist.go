package backend

import (
	"context"
	"net/http"
	"net/url"
)

// CreateWatchlist adds an item to the remote watchlist.
func (c *Client) CreateWatchlist(ctx context.Context, req CreateWatchlistRequest) (*WatchlistRecord, error) {
	var rec WatchlistRecord
	if err := c.doJSON(ctx, http.MethodPost, "/api/watchlist", req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateWatchlistStatus changes the status of an entry.
func (c *Client) UpdateWatchlistStatus(ctx context.Context, id string, status WatchlistStatus) (*WatchlistRecord, error) {
	body := struct {
		Status WatchlistStatus `json:"status"`
	}{Status: status}

	var rec WatchlistRecord
	if err := c.doJSON(ctx, http.MethodPatch, "/api/watchlist/"+url.PathEscape(id), body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateWatchlistRating sets the 1-10 rating of an entry.
func (c *Client) UpdateWatchlistRating(ctx context.Context, id string, rating int) (*WatchlistRecord, error) {
	body := struct {
		Rating int `json:"rating"`
	}{Rating: rating}

	var rec WatchlistRecord
	if err := c.doJSON(ctx, http.MethodPatch, "/api/watchlist/"+url.PathEscape(id), body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteWatchlist removes an entry.
func (c *Client) DeleteWatchlist(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/watchlist/"+url.PathEscape(id), nil, nil)
}

// LookupWatchlist resolves the watchlist state of a batch of items.
func (c *Client) LookupWatchlist(ctx context.Context, keys []LookupKey) ([]LookupResult, error) {
	body := struct {
		Items []LookupKey `json:"items"`
	}{Items: keys}

	var out []LookupResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/watchlist/lookup", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}
