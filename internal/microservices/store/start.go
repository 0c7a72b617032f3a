package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"coffee-shop-system/internal/auth"
	"coffee-shop-system/internal/config"
	"coffee-shop-system/internal/connections/rabbitmq"
	"coffee-shop-system/internal/logger"
	"coffee-shop-system/internal/microservices/store/handlers"
	"coffee-shop-system/internal/microservices/store/repository"
	"coffee-shop-system/internal/microservices/store/service"
)

// Run wires the store service and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, db *sql.DB, rmq *rabbitmq.Client, lg *logger.Logger) error {
	if err := rmq.DeclareTopology(""); err != nil {
		return fmt.Errorf("declare topology: %w", err)
	}

	orderRepo := repository.NewOrderRepository(db)
	registryRepo := repository.NewRegistryRepository(db)
	tokens := auth.NewManager(cfg.Auth.Secret, cfg.Auth.TokenTTL)

	orderSvc := service.NewOrderService(orderRepo, registryRepo, rmq, lg)
	registrySvc := service.NewRegistryService(registryRepo, tokens, cfg.Auth.AdminPassword, lg)
	h := handlers.New(orderSvc, registrySvc)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Store.Port),
		Handler: Router(h),
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("store_listening", map[string]any{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	}
}

func Router(h *handlers.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", h.CreateOrder)
	mux.HandleFunc("GET /orders/branch/{branch_id}", h.ListBranchOrders)
	mux.HandleFunc("GET /orders", h.ListOrdersQuery)
	mux.HandleFunc("PATCH /orders/{id}", h.UpdateOrderStatus)
	mux.HandleFunc("POST /branches/{id}/validate", h.ValidateBranch)
	mux.HandleFunc("POST /devices/register", h.RegisterDevice)
	mux.HandleFunc("POST /admin/unlock", h.AdminUnlock)
	mux.HandleFunc("POST /auth/refresh", h.RefreshToken)
	mux.HandleFunc("GET /healthz", h.Healthz)
	return mux
}
