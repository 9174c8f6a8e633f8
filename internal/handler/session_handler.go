package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"marketplace-auth/internal/model"
	"marketplace-auth/internal/service"
	"marketplace-auth/internal/token"
	"marketplace-auth/internal/util"

	"go.uber.org/zap"
)

type claimsKey struct{}

// ClaimsFromContext returns the access claims stored by RequireBearer.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*token.Claims)
	return claims, ok
}

// SessionHandler serves user token refresh and the current-user lookup.
type SessionHandler struct {
	sessions *service.SessionService
	responder
}

func NewSessionHandler(sessions *service.SessionService, debugErrors bool, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions:  sessions,
		responder: responder{logger: logger, debug: debugErrors},
	}
}

// Refresh handles POST /api/auth/refresh
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req model.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, badRequest("Refresh token required"))
		return
	}

	resp, err := h.sessions.Refresh(service.WithRemoteAddr(r.Context(), r.RemoteAddr), req)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, resp)
}

// Me handles GET /api/auth/me
func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		h.unauthorized(w, "Access token required")
		return
	}

	resp, err := h.sessions.Me(r.Context(), claims.ID)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, resp)
}

// RequireBearer rejects requests without a valid access token and stores its claims in the context.
func (h *SessionHandler) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || strings.TrimSpace(raw) == "" {
			h.unauthorized(w, "Access token required")
			return
		}
		claims, err := h.sessions.Authenticate(strings.TrimSpace(raw))
		if err != nil {
			h.logger.Debug("Bearer token rejected", util.ErrorField(err))
			h.unauthorized(w, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func (h *SessionHandler) unauthorized(w http.ResponseWriter, message string) {
	h.respondWithJSON(w, http.StatusUnauthorized, model.Envelope{Success: false, Error: message})
}
