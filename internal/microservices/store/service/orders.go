package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"coffee-shop-system/internal/connections/rabbitmq"
	"coffee-shop-system/internal/domain"
	"coffee-shop-system/internal/logger"
	"coffee-shop-system/internal/microservices/store/repository"
)

type OrderService struct {
	orders   repository.OrderRepositoryInterface
	registry repository.RegistryRepositoryInterface
	rmq      *rabbitmq.Client
	lg       *logger.Logger
}

func NewOrderService(orders repository.OrderRepositoryInterface, registry repository.RegistryRepositoryInterface, rmq *rabbitmq.Client, lg *logger.Logger) OrderServiceInterface {
	return &OrderService{orders: orders, registry: registry, rmq: rmq, lg: lg}
}

func (s *OrderService) Create(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	branch, ok, err := s.registry.GetBranch(ctx, req.BranchID)
	if err != nil {
		return domain.Order{}, err
	}
	if !ok || !branch.IsActive {
		return domain.Order{}, ErrBranchNotFound
	}

	total := 0.0
	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		total += float64(it.Quantity) * it.Price
		items = append(items, domain.OrderItem{
			ProductID:      it.ProductID,
			Quantity:       it.Quantity,
			Price:          it.Price,
			Customizations: it.Customizations,
		})
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:          uuid.NewString(),
		BranchID:    req.BranchID,
		Status:      domain.StatusPending,
		Total:       total,
		Items:       items,
		CustomerRef: req.CustomerRef,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("failed to save order: %w", err)
	}

	s.publish(ctx, domain.EventNewOrder, order.BranchID, order)
	return order, nil
}

func (s *OrderService) ListBranch(ctx context.Context, branchID string, status string) ([]domain.Order, error) {
	var filter *domain.OrderStatus
	if status != "" {
		st := domain.OrderStatus(status)
		if !domain.ValidStatus(st) {
			return nil, fmt.Errorf("unknown status %q", status)
		}
		filter = &st
	}
	return s.orders.ListBranchOrders(ctx, branchID, filter)
}

func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, to domain.OrderStatus) (domain.Order, error) {
	current, ok, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !ok {
		return domain.Order{}, ErrOrderNotFound
	}
	if err := domain.ValidateTransition(current.Status, to); err != nil {
		return domain.Order{}, err
	}

	updated, err := s.orders.UpdateOrderStatus(ctx, orderID, current.Status, to)
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		return domain.Order{}, ErrOrderNotFound
	case errors.Is(err, repository.ErrStatusChanged):
		// Another writer moved the order after our read; the validated
		// transition no longer applies.
		return domain.Order{}, fmt.Errorf("%w: order %s is no longer %s", domain.ErrInvalidTransition, orderID, current.Status)
	case err != nil:
		return domain.Order{}, err
	}

	s.publish(ctx, domain.EventStatusChanged, updated.BranchID, domain.StatusChange{
		OrderID: updated.ID,
		Status:  updated.Status,
	})
	return updated, nil
}

// publish is best-effort: the row is already committed, a broker hiccup must
// not fail the request. Consoles resynchronize on reconnect.
func (s *OrderService) publish(ctx context.Context, event, branchID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.lg.Error("event_marshal_failed", err, map[string]any{"event": event})
		return
	}
	body, err := json.Marshal(domain.BranchEvent{Event: event, BranchID: branchID, Data: data})
	if err != nil {
		s.lg.Error("event_marshal_failed", err, map[string]any{"event": event})
		return
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.rmq.Publish(pctx, rabbitmq.OrdersExchange, rabbitmq.BranchRoutingKey(branchID), body); err != nil {
		s.lg.Error("event_publish_failed", err, map[string]any{"event": event, "branch_id": branchID})
		return
	}
	s.lg.Debug("event_published", map[string]any{"event": event, "branch_id": branchID})
}
