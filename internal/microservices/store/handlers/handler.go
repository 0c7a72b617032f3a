package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"coffee-shop-system/internal/microservices/store/service"
)

type Handler struct {
	orders   service.OrderServiceInterface
	registry service.RegistryServiceInterface
	validate *validator.Validate
}

func New(orders service.OrderServiceInterface, registry service.RegistryServiceInterface) *Handler {
	return &Handler{
		orders:   orders,
		registry: registry,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeProblem emits the shared error shape (simplified RFC7807).
func writeProblem(w http.ResponseWriter, code int, typ, detail string) {
	writeJSON(w, code, map[string]any{
		"type":   typ,
		"title":  http.StatusText(code),
		"status": code,
		"detail": detail,
	})
}

// param pulls {name} from the route (Go 1.22 ServeMux patterns).
func param(r *http.Request, key string) string {
	return r.PathValue(key)
}
