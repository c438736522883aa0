package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/reelwise/reelwise/internal/backend"
	"github.com/reelwise/reelwise/internal/explore"
)

type queryRequest struct {
	MediaType string             `json:"media_type"`
	QueryText string             `json:"query_text"`
	Providers []string           `json:"providers"`
	YearRange *backend.YearRange `json:"year_range"`
}

type rerunRequest struct {
	Providers []string           `json:"providers"`
	YearRange *backend.YearRange `json:"year_range"`
}

type rerunResponse struct {
	Applied bool             `json:"applied"`
	State   explore.Snapshot `json:"state"`
}

type feedbackRequest struct {
	Value backend.FeedbackValue `json:"value"`
}

// startQuery starts a new explore session.
// POST /api/v1/explore/query
func (s *Server) startQuery(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	s.applyQueryDefaults(c.Request().Context(), &req)

	queryID, err := s.svc.Page.Query(explore.QueryRequest{
		MediaType: req.MediaType,
		Text:      req.QueryText,
		Filters:   explore.Filters{Providers: req.Providers, YearRange: req.YearRange},
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"queryId": queryID})
}

// applyQueryDefaults fills an unset media type and provider selection from
// the stored explore preferences.
func (s *Server) applyQueryDefaults(ctx context.Context, req *queryRequest) {
	if s.svc.Preferences == nil || (req.MediaType != "" && req.Providers != nil) {
		return
	}
	prefs, err := s.svc.Preferences.GetExplorePreferences(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load explore preferences")
		return
	}
	if req.MediaType == "" {
		req.MediaType = string(prefs.DefaultMediaType)
	}
	if req.Providers == nil && len(prefs.DefaultProviders) > 0 {
		req.Providers = prefs.DefaultProviders
	}
}

// cancelQuery aborts the live streams and any pending rerun.
// POST /api/v1/explore/cancel
func (s *Server) cancelQuery(c echo.Context) error {
	cancelled := s.svc.Page.Cancel()
	return c.JSON(http.StatusOK, map[string]bool{"cancelled": cancelled})
}

// rerun re-queries the current session with a new filter selection.
// POST /api/v1/explore/rerun
func (s *Server) rerun(c echo.Context) error {
	var req rerunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	applied, err := s.svc.Page.Rerun(c.Request().Context(), explore.Filters{
		Providers: req.Providers,
		YearRange: req.YearRange,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rerunResponse{Applied: applied, State: s.svc.Page.Snapshot()})
}

// getExploreState returns the full page snapshot.
// GET /api/v1/explore/state
func (s *Server) getExploreState(c echo.Context) error {
	return c.JSON(http.StatusOK, s.svc.Page.Snapshot())
}

// getItem returns one item of the current results.
// GET /api/v1/explore/items/:id
func (s *Server) getItem(c echo.Context) error {
	item, ok := s.svc.Page.Item(c.Param("id"))
	if !ok {
		return httpError(explore.ErrUnknownItem)
	}
	return c.JSON(http.StatusOK, item)
}

// setFeedback records like/dislike feedback for an item.
// PUT /api/v1/explore/items/:id/feedback
func (s *Server) setFeedback(c echo.Context) error {
	var req feedbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.svc.Page.Feedback(c.Request().Context(), c.Param("id"), req.Value); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
