package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"marketplace-auth/internal/model"
	"marketplace-auth/internal/service"
	"marketplace-auth/internal/util"

	"go.uber.org/zap"
)

const genericFailure = "Something went wrong. Please try again."

// responder writes JSON envelopes and maps service errors to status codes.
type responder struct {
	logger *zap.Logger
	debug  bool
}

func (rs responder) respondWithJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		rs.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error envelope. Only *service.Error messages reach the client.
func (rs responder) respondWithError(w http.ResponseWriter, err error) {
	statusCode := getStatusCode(err)
	body := model.Envelope{Success: false, Error: genericFailure}

	var svcErr *service.Error
	if errors.As(err, &svcErr) && (statusCode != http.StatusInternalServerError || errors.Is(err, service.ErrDeliveryFailed)) {
		body.Error = svcErr.Message
		body.Details = svcErr.Details
	}
	if statusCode == http.StatusInternalServerError {
		rs.logger.Error("HTTP error response", util.ErrorField(err), util.Int("status_code", statusCode))
		if rs.debug {
			body.Debug = err.Error()
		}
	} else {
		rs.logger.Warn("HTTP error response",
			util.ErrorField(err),
			util.Int("status_code", statusCode),
			util.String("message", body.Error),
		)
	}
	rs.respondWithJSON(w, statusCode, body)
}

// getStatusCode determines the appropriate HTTP status code for an error
func getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrAlreadyRegistered),
		errors.Is(err, service.ErrOTPRejected):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(message string) *service.Error {
	return &service.Error{Kind: service.ErrInvalidInput, Message: message}
}
