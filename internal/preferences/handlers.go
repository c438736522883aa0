package preferences

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	service *Service
}

func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("/explore", h.GetExplorePreferences)
	g.PUT("/explore", h.SetExplorePreferences)
}

// GetExplorePreferences returns the explore preferences
// GET /api/v1/preferences/explore
func (h *Handlers) GetExplorePreferences(c echo.Context) error {
	prefs, err := h.service.GetExplorePreferences(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, prefs)
}

// SetExplorePreferences updates the explore preferences
// PUT /api/v1/preferences/explore
func (h *Handlers) SetExplorePreferences(c echo.Context) error {
	var prefs ExplorePreferences
	if err := c.Bind(&prefs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if !ValidMediaType(string(prefs.DefaultMediaType)) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid default media type")
	}

	if err := h.service.SetExplorePreferences(c.Request().Context(), prefs); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	updated, err := h.service.GetExplorePreferences(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, updated)
}
