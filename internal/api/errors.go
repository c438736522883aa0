package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/reelwise/reelwise/internal/backend"
	"github.com/reelwise/reelwise/internal/explore"
)

// httpError maps domain errors onto HTTP statuses.
func httpError(err error) error {
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, explore.ErrEmptyQuery), errors.Is(err, explore.ErrInvalidFeedback):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, explore.ErrUnknownItem):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, explore.ErrNoSession), errors.Is(err, explore.ErrSuperseded):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, explore.ErrClosed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, backend.ErrAPI):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
