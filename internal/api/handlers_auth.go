// handlers_auth.go - Login, logout, and profile endpoints
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// demoToken is accepted by the demo backend without a real credential
// exchange, matching its seeded demo account.
const demoToken = "demo-token"

// LoginRequest is the credential payload from the dashboard login form.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the new gateway session and the upstream token.
type LoginResponse struct {
	SessionID   string `json:"session_id"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Username    string `json:"username"`
	Mode        string `json:"mode"`
}

// HandleLogin handles POST /api/auth/login
func (h *Handler) HandleLogin(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return RespondWithError(c, NewBadRequestError("invalid request body", err))
	}
	if req.Username == "" || req.Password == "" {
		return RespondWithError(c, NewValidationError("username"))
	}

	var token string
	if h.cfg.Upstream.DemoMode && req.Username == "demo" && req.Password == "demo" {
		token = demoToken
	} else {
		t, err := h.rest.Login(c.Request().Context(), req.Username, req.Password)
		if err != nil {
			h.logger.Warn("login failed",
				zap.String("username", req.Username),
				zap.Error(err))
			return RespondWithError(c, FromFetchError(err))
		}
		token = t
	}

	st, err := h.sessions.Open(c.Request().Context(), token, req.Username)
	if err != nil {
		return RespondWithError(c, FromFetchError(err))
	}

	h.logger.Info("session opened",
		zap.String("session_id", st.ID),
		zap.String("username", req.Username))

	mode := st.Fetcher.Mode()
	return c.JSON(http.StatusOK, LoginResponse{
		SessionID:   st.ID,
		AccessToken: token,
		TokenType:   "bearer",
		Username:    req.Username,
		Mode:        string(mode),
	})
}

// HandleRestore handles POST /api/auth/restore
//
// Reopens a session from the token persisted in preferences, so a
// gateway restart does not force every dashboard back to the login page.
func (h *Handler) HandleRestore(c echo.Context) error {
	st, ok := h.sessions.Restore(c.Request().Context())
	if !ok {
		return RespondWithError(c, NewUnauthorizedError("no stored session to restore"))
	}

	mode := st.Fetcher.Mode()
	return c.JSON(http.StatusOK, LoginResponse{
		SessionID:   st.ID,
		AccessToken: st.Token(),
		TokenType:   "bearer",
		Username:    st.Username,
		Mode:        string(mode),
	})
}

// HandleLogout handles POST /api/auth/logout
//
// Logout is idempotent: an unknown or already closed session still
// returns 200 so the dashboard can safely retry.
func (h *Handler) HandleLogout(c echo.Context) error {
	id := c.Request().Header.Get(SessionHeader)
	if id != "" {
		h.sessions.Close(id)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "logged_out"})
}

// HandleMe handles GET /api/auth/me
func (h *Handler) HandleMe(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return RespondWithError(c, apiErr)
	}

	profile, err := h.rest.Profile(c.Request().Context(), st.Token())
	if err != nil {
		return RespondWithError(c, FromFetchError(err))
	}
	return c.JSON(http.StatusOK, profile)
}
