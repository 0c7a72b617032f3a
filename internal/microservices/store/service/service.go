package service

import (
	"context"
	"errors"

	"coffee-shop-system/internal/domain"
)

var (
	ErrBranchNotFound      = errors.New("branch not found or inactive")
	ErrOrderNotFound       = errors.New("order not found")
	ErrDeviceNotRegistered = errors.New("device not registered")
	ErrBadCredentials      = errors.New("bad admin credentials")
)

type OrderServiceInterface interface {
	Create(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error)
	ListBranch(ctx context.Context, branchID string, status string) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, orderID string, to domain.OrderStatus) (domain.Order, error)
}

type RegistryServiceInterface interface {
	ValidateBranch(ctx context.Context, branchID string, req domain.ValidateBranchRequest) (domain.ValidateBranchResponse, error)
	RegisterDevice(ctx context.Context, req domain.RegisterDeviceRequest) error
	AdminUnlock(ctx context.Context, req domain.AdminUnlockRequest) error
	RefreshToken(ctx context.Context, req domain.RefreshTokenRequest) (domain.RefreshTokenResponse, error)
}
