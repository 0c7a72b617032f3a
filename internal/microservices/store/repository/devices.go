package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"coffee-shop-system/internal/domain"
)

type RegistryRepository struct {
	db *sql.DB
}

func NewRegistryRepository(db *sql.DB) RegistryRepositoryInterface {
	return &RegistryRepository{db: db}
}

func (rr *RegistryRepository) GetBranch(ctx context.Context, id string) (domain.Branch, bool, error) {
	var b domain.Branch
	err := rr.db.QueryRowContext(ctx, `
		SELECT id, name, address, is_active FROM branches WHERE id = $1
	`, id).Scan(&b.ID, &b.Name, &b.Address, &b.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Branch{}, false, nil
	}
	if err != nil {
		return domain.Branch{}, false, fmt.Errorf("failed to get branch: %w", err)
	}
	return b, true, nil
}

// UpsertDevice keeps one row per device; re-registering moves the device to
// the new branch.
func (rr *RegistryRepository) UpsertDevice(ctx context.Context, deviceID, branchID string) error {
	_, err := rr.db.ExecContext(ctx, `
		INSERT INTO devices (id, branch_id, registered_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET branch_id = EXCLUDED.branch_id, registered_at = NOW()
	`, deviceID, branchID)
	if err != nil {
		return fmt.Errorf("failed to upsert device: %w", err)
	}
	return nil
}

func (rr *RegistryRepository) GetDevice(ctx context.Context, deviceID string) (domain.Device, bool, error) {
	var d domain.Device
	err := rr.db.QueryRowContext(ctx, `
		SELECT id, branch_id, registered_at FROM devices WHERE id = $1
	`, deviceID).Scan(&d.ID, &d.BranchID, &d.RegisteredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Device{}, false, nil
	}
	if err != nil {
		return domain.Device{}, false, fmt.Errorf("failed to get device: %w", err)
	}
	return d, true, nil
}

func (rr *RegistryRepository) DeleteDevice(ctx context.Context, deviceID string) error {
	if _, err := rr.db.ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, deviceID); err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	return nil
}

// Customizations are stored as a comma-joined text column.
func joinCustomizations(cs []string) *string {
	if len(cs) == 0 {
		return nil
	}
	joined := strings.Join(cs, ",")
	return &joined
}

func splitCustomizations(col sql.NullString) []string {
	if !col.Valid || col.String == "" {
		return nil
	}
	return strings.Split(col.String, ",")
}
