// Package console wires the device-side subsystem together: binding workflow,
// credential refresh, the dispatch session and the order view.
package console

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"coffee-shop-system/internal/barista/binding"
	"coffee-shop-system/internal/barista/credentials"
	"coffee-shop-system/internal/barista/devicebind"
	"coffee-shop-system/internal/barista/orders"
	"coffee-shop-system/internal/barista/session"
	"coffee-shop-system/internal/barista/storeapi"
	"coffee-shop-system/internal/config"
	"coffee-shop-system/internal/logger"
)

type Options struct {
	BranchHint string // one-time provisioning parameter, overrides the stored binding
}

func Run(ctx context.Context, cfg *config.Config, opts Options, lg *logger.Logger) error {
	bindStore, err := devicebind.Open(cfg.Console.StateDir)
	if err != nil {
		return err
	}
	credStore, err := credentials.Open(cfg.Console.StateDir)
	if err != nil {
		return err
	}
	api := storeapi.New(cfg.Console.StoreURL)
	hintPath := filepath.Join(cfg.Console.StateDir, "provision")
	workflow := binding.NewWorkflow(bindStore, api, hintPath, lg)

	branchID, err := workflow.Initialize(ctx, opts.BranchHint)
	if errors.Is(err, binding.ErrBranchNotConfigured) {
		return fmt.Errorf("%w: provision the device with --branch or a provision file", err)
	}
	if err != nil {
		return err
	}
	deviceID, err := bindStore.DeviceID()
	if err != nil {
		return err
	}
	lg.Info("console_starting", map[string]any{"device_id": deviceID, "branch_id": branchID})

	token, err := refreshCredentials(ctx, api, credStore, deviceID)
	if err != nil {
		return fmt.Errorf("initial token refresh: %w", err)
	}

	mgr := session.NewManager(session.Config{URL: cfg.Console.DispatchURL}, lg)
	defer mgr.Disconnect()
	if err := mgr.Connect(branchID, token); err != nil {
		return err
	}

	vm := orders.NewViewModel(api)

	// SIGUSR1 stands in for the host's "app became visible" signal on a
	// headless console.
	visible := make(chan os.Signal, 1)
	signal.Notify(visible, syscall.SIGUSR1)
	defer signal.Stop(visible)

	refresh := time.NewTicker(cfg.Console.RefreshEvery)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-visible:
			mgr.SignalVisible()
		case <-refresh.C:
			// The scheduler never retries on its own; the next tick is the
			// next attempt.
			tok, err := refreshCredentials(ctx, api, credStore, deviceID)
			if err != nil {
				lg.Error("token_refresh_failed", session.ErrSessionExpired, map[string]any{"cause": err.Error()})
				continue
			}
			if err := mgr.RefreshToken(tok); err != nil {
				lg.Error("session_reauth_failed", err, nil)
			}
		case ev := <-mgr.Events():
			handleEvent(ctx, ev, vm, api, branchID, lg)
		}
	}
}

// handleEvent applies one session event to the view. Reconnects are a
// loss/duplication boundary, so every EventConnected triggers a full refetch
// of the branch's active orders.
func handleEvent(ctx context.Context, ev session.Event, vm *orders.ViewModel, api *storeapi.Client, branchID string, lg *logger.Logger) {
	switch ev.Kind {
	case session.EventConnected:
		list, err := api.BranchOrders(ctx, branchID, "")
		if err != nil {
			lg.Error("order_resync_failed", err, map[string]any{"branch_id": branchID})
			return
		}
		vm.Replace(list)
		lg.Info("orders_resynced", map[string]any{"count": len(list)})
	case session.EventDisconnected:
		lg.Warn("session_lost", nil)
	case session.EventNewOrder:
		vm.AddOrder(*ev.Order)
		lg.Info("order_received", map[string]any{"order_id": ev.Order.ID, "active": vm.Len()})
	case session.EventStatusChanged:
		if err := vm.ApplyPush(*ev.Change); err != nil {
			lg.Warn("push_rejected", map[string]any{"order_id": ev.Change.OrderID, "error": err.Error()})
			return
		}
		lg.Info("order_updated", map[string]any{"order_id": ev.Change.OrderID, "status": string(ev.Change.Status)})
	case session.EventError:
		lg.Error("session_error", ev.Err, nil)
	}
}

func refreshCredentials(ctx context.Context, api *storeapi.Client, store *credentials.Store, deviceID string) (string, error) {
	resp, err := api.RefreshToken(ctx, deviceID)
	if err != nil {
		return "", err
	}
	err = store.Set(credentials.Credentials{
		Token:     resp.Token,
		ExpiresAt: resp.ExpiresAt,
		DeviceID:  deviceID,
		BranchID:  resp.BranchID,
		Role:      resp.Role,
	})
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}
