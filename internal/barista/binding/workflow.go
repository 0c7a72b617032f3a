// Package binding runs the one-time provisioning flow that ties a console
// device to a branch.
package binding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"coffee-shop-system/internal/barista/devicebind"
	"coffee-shop-system/internal/barista/storeapi"
	"coffee-shop-system/internal/domain"
	"coffee-shop-system/internal/logger"
)

var (
	// ErrBranchNotConfigured is a control-flow signal, not a failure: the
	// device has no binding and no hint, so setup has to run.
	ErrBranchNotConfigured = errors.New("no branch configured for this device")
	ErrInvalidBranch       = errors.New("branch rejected")
	ErrRegistrationFailed  = errors.New("device registration failed")
)

// StoreAPI is the slice of the store client the workflow needs.
type StoreAPI interface {
	ValidateBranch(ctx context.Context, branchID, deviceID string) (domain.Branch, error)
	RegisterDevice(ctx context.Context, deviceID, branchID string) error
	AdminUnlock(ctx context.Context, deviceID, password string) error
}

type Workflow struct {
	store    *devicebind.Store
	api      StoreAPI
	hintPath string // provisioning file, consumed once
	lg       *logger.Logger
}

func NewWorkflow(store *devicebind.Store, api StoreAPI, hintPath string, lg *logger.Logger) *Workflow {
	return &Workflow{store: store, api: api, hintPath: hintPath, lg: lg}
}

// Initialize resolves the effective branch for this run. An explicit hint
// (flag or provisioning file) wins over the stored binding and triggers a
// rebind when they differ. No hint and no binding means setup is required.
func (w *Workflow) Initialize(ctx context.Context, hint string) (string, error) {
	if hint == "" {
		hint = w.readHintFile()
	}
	stored := w.store.BoundBranch()

	switch {
	case hint != "" && hint != stored:
		if err := w.Bind(ctx, hint); err != nil {
			return "", err
		}
		return hint, nil
	case stored != "":
		if hint == stored {
			// Already bound to the hinted branch; just consume the hint.
			w.clearHint()
		}
		return stored, nil
	default:
		return "", ErrBranchNotConfigured
	}
}

// Bind validates the branch, registers the device against it and locks the
// binding. Bind itself does not check the lock flag: the lock gates the setup
// flow in the caller, which keeps this path usable right after an admin
// unlock. Registration is not retried; re-invoke on failure.
func (w *Workflow) Bind(ctx context.Context, branchID string) error {
	deviceID, err := w.store.DeviceID()
	if err != nil {
		return err
	}

	// Transport failures stay distinct from a rejected branch: the first
	// means retry later, the second means the binding is wrong.
	branch, err := w.api.ValidateBranch(ctx, branchID, deviceID)
	if errors.Is(err, storeapi.ErrNetwork) {
		return fmt.Errorf("validate branch %s: %w", branchID, err)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBranch, err)
	}

	if err := w.api.RegisterDevice(ctx, deviceID, branch.ID); err != nil {
		if errors.Is(err, storeapi.ErrNetwork) {
			return fmt.Errorf("register device: %w", err)
		}
		return fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}

	if err := w.store.SetBoundBranch(branch.ID); err != nil {
		return err
	}
	if err := w.store.SetRegistered(true); err != nil {
		return err
	}
	if err := w.store.Lock(); err != nil {
		return err
	}

	w.clearHint()
	w.lg.Info("device_bound", map[string]any{"device_id": deviceID, "branch_id": branch.ID})
	return nil
}

// AdminUnlock clears the whole binding on success. Every failure, wrong
// password and network errors alike, comes back as false so the caller can
// simply re-prompt.
func (w *Workflow) AdminUnlock(ctx context.Context, password string) bool {
	deviceID, err := w.store.DeviceID()
	if err != nil {
		return false
	}
	if err := w.api.AdminUnlock(ctx, deviceID, password); err != nil {
		w.lg.Warn("admin_unlock_failed", map[string]any{"device_id": deviceID})
		return false
	}
	if err := w.store.Clear(); err != nil {
		w.lg.Error("binding_clear_failed", err, map[string]any{"device_id": deviceID})
		return false
	}
	w.lg.Info("device_unbound", map[string]any{"device_id": deviceID})
	return true
}

func (w *Workflow) readHintFile() string {
	if w.hintPath == "" {
		return ""
	}
	raw, err := os.ReadFile(w.hintPath)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// clearHint removes the provisioning file so a hint is never replayed.
func (w *Workflow) clearHint() {
	if w.hintPath == "" {
		return
	}
	_ = os.Remove(w.hintPath)
}
