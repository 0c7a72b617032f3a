package handlers

import (
	"errors"
	"net/http"

	"coffee-shop-system/internal/domain"
	"coffee-shop-system/internal/microservices/store/service"
)

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateOrderRequest
	if err := h.decode(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	order, err := h.orders.Create(r.Context(), req)
	if errors.Is(err, service.ErrBranchNotFound) {
		writeProblem(w, http.StatusNotFound, "branch_not_found", err.Error())
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) ListBranchOrders(w http.ResponseWriter, r *http.Request) {
	h.listOrders(w, r, param(r, "branch_id"))
}

// ListOrdersQuery is the query-parameter fallback (GET /orders?branch_id=)
// kept for clients that cannot use the path form.
func (h *Handler) ListOrdersQuery(w http.ResponseWriter, r *http.Request) {
	branchID := r.URL.Query().Get("branch_id")
	if branchID == "" {
		writeProblem(w, http.StatusBadRequest, "bad_request", "branch_id is required")
		return
	}
	h.listOrders(w, r, branchID)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request, branchID string) {
	orders, err := h.orders.ListBranch(r.Context(), branchID, r.URL.Query().Get("status"))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"branch_id": branchID, "orders": orders})
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateOrderStatusRequest
	if err := h.decode(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	order, err := h.orders.UpdateStatus(r.Context(), param(r, "id"), req.Status)
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		writeProblem(w, http.StatusNotFound, "not_found", "order not found")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeProblem(w, http.StatusUnprocessableEntity, "invalid_transition", err.Error())
	case err != nil:
		writeProblem(w, http.StatusInternalServerError, "db_error", err.Error())
	default:
		writeJSON(w, http.StatusOK, order)
	}
}
