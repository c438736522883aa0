package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/reelwise/reelwise/internal/backend"
	"github.com/reelwise/reelwise/internal/explore"
	"github.com/reelwise/reelwise/internal/watchlist"
)

type statusRequest struct {
	Status backend.WatchlistStatus `json:"status"`
}

type ratingRequest struct {
	Rating float64 `json:"rating"`
}

// getWatchlistEntry returns the local watchlist state of an item.
// GET /api/v1/watchlist/:id
func (s *Server) getWatchlistEntry(c echo.Context) error {
	entry, ok := s.svc.Watchlist.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "item not tracked")
	}
	return c.JSON(http.StatusOK, entry)
}

// addToWatchlist adds a result item to the watchlist.
// POST /api/v1/watchlist/:id
func (s *Server) addToWatchlist(c echo.Context) error {
	id := c.Param("id")
	if s.svc.Page == nil {
		return httpError(explore.ErrUnknownItem)
	}
	item, ok := s.svc.Page.Item(id)
	if !ok {
		return httpError(explore.ErrUnknownItem)
	}
	if err := s.svc.Watchlist.Add(c.Request().Context(), item); err != nil {
		return httpError(err)
	}
	return s.respondEntry(c, id)
}

// setWatchlistStatus changes the status of a listed item.
// PUT /api/v1/watchlist/:id/status
func (s *Server) setWatchlistStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if !req.Status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid watchlist status")
	}

	id := c.Param("id")
	if err := s.svc.Watchlist.SetStatus(c.Request().Context(), id, req.Status); err != nil {
		return httpError(err)
	}
	return s.respondEntry(c, id)
}

// setWatchlistRating rates a listed item on the 1-10 scale.
// PUT /api/v1/watchlist/:id/rating
func (s *Server) setWatchlistRating(c echo.Context) error {
	var req ratingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, ok := watchlist.NormalizeRating(req.Rating); !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "rating must be at least 1")
	}

	id := c.Param("id")
	if err := s.svc.Watchlist.Rate(c.Request().Context(), id, req.Rating); err != nil {
		return httpError(err)
	}
	return s.respondEntry(c, id)
}

// removeFromWatchlist deletes a listed item.
// DELETE /api/v1/watchlist/:id
func (s *Server) removeFromWatchlist(c echo.Context) error {
	id := c.Param("id")
	if err := s.svc.Watchlist.Remove(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return s.respondEntry(c, id)
}

func (s *Server) respondEntry(c echo.Context, id string) error {
	entry, ok := s.svc.Watchlist.Get(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "item not tracked")
	}
	return c.JSON(http.StatusOK, entry)
}
