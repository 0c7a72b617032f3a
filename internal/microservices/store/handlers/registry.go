package handlers

import (
	"errors"
	"net/http"

	"coffee-shop-system/internal/domain"
	"coffee-shop-system/internal/microservices/store/service"
)

func (h *Handler) ValidateBranch(w http.ResponseWriter, r *http.Request) {
	var req domain.ValidateBranchRequest
	if err := h.decode(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	resp, err := h.registry.ValidateBranch(r.Context(), param(r, "id"), req)
	if errors.Is(err, service.ErrBranchNotFound) {
		writeProblem(w, http.StatusNotFound, "branch_not_found", err.Error())
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterDeviceRequest
	if err := h.decode(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	err := h.registry.RegisterDevice(r.Context(), req)
	if errors.Is(err, service.ErrBranchNotFound) {
		writeProblem(w, http.StatusNotFound, "branch_not_found", err.Error())
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device_id": req.DeviceID, "branch_id": req.BranchID, "registered": true})
}

func (h *Handler) AdminUnlock(w http.ResponseWriter, r *http.Request) {
	var req domain.AdminUnlockRequest
	if err := h.decode(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	err := h.registry.AdminUnlock(r.Context(), req)
	if errors.Is(err, service.ErrBadCredentials) {
		writeProblem(w, http.StatusForbidden, "forbidden", "bad admin credentials")
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device_id": req.DeviceID, "unlocked": true})
}

func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req domain.RefreshTokenRequest
	if err := h.decode(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	resp, err := h.registry.RefreshToken(r.Context(), req)
	if errors.Is(err, service.ErrDeviceNotRegistered) {
		writeProblem(w, http.StatusUnauthorized, "device_not_registered", err.Error())
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "token_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
