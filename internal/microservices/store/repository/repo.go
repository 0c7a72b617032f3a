package repository

import (
	"context"

	"coffee-shop-system/internal/domain"
)

type OrderRepositoryInterface interface {
	CreateOrder(ctx context.Context, order domain.Order) error
	GetOrder(ctx context.Context, id string) (domain.Order, bool, error)
	ListBranchOrders(ctx context.Context, branchID string, status *domain.OrderStatus) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus) (domain.Order, error)
}

type RegistryRepositoryInterface interface {
	GetBranch(ctx context.Context, id string) (domain.Branch, bool, error)
	UpsertDevice(ctx context.Context, deviceID, branchID string) error
	GetDevice(ctx context.Context, deviceID string) (domain.Device, bool, error)
	DeleteDevice(ctx context.Context, deviceID string) error
}
