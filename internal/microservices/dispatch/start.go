package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"coffee-shop-system/internal/auth"
	"coffee-shop-system/internal/config"
	"coffee-shop-system/internal/connections/rabbitmq"
	"coffee-shop-system/internal/logger"
)

func Run(ctx context.Context, cfg *config.Config, rmq *rabbitmq.Client, lg *logger.Logger) error {
	hub := NewHub(lg)
	tokens := auth.NewManager(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	ws := NewServer(hub, tokens, lg)
	consumer := NewConsumer(rmq, hub, lg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", ws.ServeWS)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Dispatch.Port), Handler: mux}

	errCh := make(chan error, 2)
	go func() {
		lg.Info("dispatch_listening", map[string]any{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
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
