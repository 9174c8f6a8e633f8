package handler

import (
	"encoding/json"
	"net/http"

	"marketplace-auth/internal/model"
	"marketplace-auth/internal/service"

	"go.uber.org/zap"
)

// VendorHandler serves the cab vendor login and refresh routes.
type VendorHandler struct {
	vendors *service.VendorService
	responder
}

func NewVendorHandler(vendors *service.VendorService, debugErrors bool, logger *zap.Logger) *VendorHandler {
	return &VendorHandler{
		vendors:   vendors,
		responder: responder{logger: logger, debug: debugErrors},
	}
}

// Login handles POST /api/cab_vendor/login
func (h *VendorHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.VendorLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, badRequest("Invalid JSON in request body"))
		return
	}

	resp, err := h.vendors.Login(service.WithRemoteAddr(r.Context(), r.RemoteAddr), req)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, resp)
}

// Refresh handles POST /api/cab_vendor/refresh
func (h *VendorHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req model.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, badRequest("Refresh token missing"))
		return
	}

	resp, err := h.vendors.Refresh(service.WithRemoteAddr(r.Context(), r.RemoteAddr), req)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, resp)
}
