package api

import (
	"net/http"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/reelwise/reelwise/internal/logger"
)

// LogsProvider provides access to the diagnostics channel.
type LogsProvider interface {
	RecentLogs(f logger.Filter) []logger.LogEntry
	GetLogFilePath() string
}

// LogsHandlers serves the diagnostics endpoints.
type LogsHandlers struct {
	provider LogsProvider
}

// NewLogsHandlers creates a new logs handlers instance.
func NewLogsHandlers(provider LogsProvider) *LogsHandlers {
	return &LogsHandlers{provider: provider}
}

// RegisterRoutes registers diagnostics routes on the given group.
func (h *LogsHandlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.GetRecentLogs)
	g.GET("/download", h.DownloadLogFile)
}

// GetRecentLogs returns buffered diagnostic entries. level is a minimum
// severity, limit keeps the newest entries.
// GET /api/v1/diagnostics?level=warn&component=telemetry&limit=50
func (h *LogsHandlers) GetRecentLogs(c echo.Context) error {
	filter := logger.Filter{
		MinLevel:  c.QueryParam("level"),
		Component: c.QueryParam("component"),
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		filter.Limit = limit
	}
	return c.JSON(http.StatusOK, h.provider.RecentLogs(filter))
}

// DownloadLogFile serves the current log file.
// GET /api/v1/diagnostics/download
func (h *LogsHandlers) DownloadLogFile(c echo.Context) error {
	logPath := h.provider.GetLogFilePath()
	if logPath == "" {
		return echo.NewHTTPError(http.StatusNotFound, "no log file configured")
	}

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		return echo.NewHTTPError(http.StatusNotFound, "log file not found")
	}

	return c.Attachment(logPath, "reelwise.log")
}
