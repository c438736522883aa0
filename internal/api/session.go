package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

type tokenRequest struct {
	Token string `json:"token"`
}

type sessionResponse struct {
	Authenticated bool       `json:"authenticated"`
	Subject       string     `json:"subject,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

// getSession reports whether a token is held and when it expires.
// GET /api/v1/session
func (s *Server) getSession(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sessionInfo())
}

// setToken stores the bearer token issued by the auth provider.
// PUT /api/v1/session/token
func (s *Server) setToken(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}

	s.svc.Tokens.Set(token)
	s.logger.Info().Str("subject", s.svc.Tokens.Subject()).Msg("Auth token updated")
	return c.JSON(http.StatusOK, s.sessionInfo())
}

// clearToken forgets the stored token.
// DELETE /api/v1/session/token
func (s *Server) clearToken(c echo.Context) error {
	s.svc.Tokens.Clear()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) sessionInfo() sessionResponse {
	_, err := s.svc.Tokens.Token()
	resp := sessionResponse{
		Authenticated: err == nil,
		Subject:       s.svc.Tokens.Subject(),
	}
	if expires := s.svc.Tokens.ExpiresAt(); !expires.IsZero() {
		resp.ExpiresAt = &expires
	}
	return resp
}
