package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"marketplace-auth/internal/metrics"
	"marketplace-auth/internal/model"
	"marketplace-auth/internal/service"
	"marketplace-auth/internal/util"

	"go.uber.org/zap"
)

const (
	maxBodyBytes = 1 << 20
	sweepBudget  = 2 * time.Second
)

// actionFunc decodes the raw request body into its typed request and runs the action.
type actionFunc func(ctx context.Context, body []byte) (any, error)

// bind adapts a typed service method to an actionFunc.
func bind[Req, Resp any](call func(context.Context, Req) (Resp, error)) actionFunc {
	return func(ctx context.Context, body []byte) (any, error) {
		var req Req
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, badRequest("Invalid JSON in request body")
		}
		return call(ctx, req)
	}
}

// AuthHandler serves the action-dispatched POST /api/auth endpoint.
type AuthHandler struct {
	auth    *service.AuthService
	actions map[model.Action]actionFunc
	responder
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(auth *service.AuthService, debugErrors bool, logger *zap.Logger) *AuthHandler {
	h := &AuthHandler{
		auth:      auth,
		responder: responder{logger: logger, debug: debugErrors},
	}
	h.actions = map[model.Action]actionFunc{
		model.ActionCheckUser:             bind(auth.CheckUser),
		model.ActionVerifyPassword:        bind(auth.VerifyPassword),
		model.ActionSendEmailOTP:          bind(auth.SendEmailOTP),
		model.ActionVerifyEmailOTP:        bind(auth.VerifyEmailOTP),
		model.ActionSendPhoneOTP:          bind(auth.SendPhoneOTP),
		model.ActionVerifyPhoneOTP:        bind(auth.VerifyPhoneOTP),
		model.ActionRegister:              bind(auth.Register),
		model.ActionVerifyRegistrationOTP: bind(auth.VerifyRegistrationOTP),
		model.ActionLogin:                 bind(auth.Login),
		model.ActionVerifyLoginOTP:        bind(auth.VerifyLoginOTP),
		model.ActionResendOTP:             bind(auth.ResendOTP),
		model.ActionResetPassword:         bind(auth.ResetPassword),
	}
	return h
}

type actionEnvelope struct {
	Action model.Action `json:"action"`
}

// Dispatch handles POST /api/auth
func (h *AuthHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := service.WithRemoteAddr(r.Context(), r.RemoteAddr)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.respondWithError(w, badRequest("Invalid JSON in request body"))
		return
	}
	var env actionEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		h.respondWithError(w, badRequest("Invalid JSON in request body"))
		return
	}
	if env.Action == "" {
		h.respondWithError(w, badRequest("Action is required"))
		return
	}
	run, ok := h.actions[env.Action]
	if !ok {
		h.respondWithError(w, badRequest("Invalid action"))
		return
	}

	h.sweep(ctx)

	resp, err := run(ctx, body)
	status := http.StatusOK
	if err != nil {
		status = getStatusCode(err)
		h.respondWithError(w, err)
	} else {
		h.respondWithJSON(w, status, resp)
	}

	metrics.ActionDuration.WithLabelValues(string(env.Action), strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	h.logger.Info("Auth action handled",
		util.String("action", string(env.Action)),
		util.String("method", r.Method),
		util.Int("status", status),
		util.Duration("duration", time.Since(start)),
	)
}

// sweep removes expired OTP rows before the action runs. Failures never block the request.
func (h *AuthHandler) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sweepBudget)
	defer cancel()
	if _, err := h.auth.Sweep(ctx); err != nil {
		h.logger.Warn("Request sweep failed", util.ErrorField(err))
	}
}
