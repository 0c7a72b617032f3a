package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coffee-shop-system/internal/domain"
	"coffee-shop-system/internal/logger"
	"coffee-shop-system/internal/microservices/store/repository"
)

type fakeOrderRepo struct {
	orders map[string]domain.Order

	// afterGet runs once the read snapshot is taken, standing in for a
	// writer that commits between the service's read and its update.
	afterGet func()
}

func (f *fakeOrderRepo) CreateOrder(_ context.Context, order domain.Order) error {
	f.orders[order.ID] = order
	return nil
}

func (f *fakeOrderRepo) GetOrder(_ context.Context, id string) (domain.Order, bool, error) {
	o, ok := f.orders[id]
	if ok && f.afterGet != nil {
		f.afterGet()
	}
	return o, ok, nil
}

func (f *fakeOrderRepo) ListBranchOrders(_ context.Context, branchID string, status *domain.OrderStatus) ([]domain.Order, error) {
	out := []domain.Order{}
	for _, o := range f.orders {
		if o.BranchID != branchID {
			continue
		}
		if status != nil && o.Status != *status {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// UpdateOrderStatus mirrors the real repository's predicate: the update only
// lands when the row still holds the status the caller validated against.
func (f *fakeOrderRepo) UpdateOrderStatus(_ context.Context, id string, from, to domain.OrderStatus) (domain.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return domain.Order{}, repository.ErrOrderNotFound
	}
	if o.Status != from {
		return domain.Order{}, repository.ErrStatusChanged
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	f.orders[id] = o
	return o, nil
}

type fakeRegistryRepo struct{}

func (fakeRegistryRepo) GetBranch(_ context.Context, id string) (domain.Branch, bool, error) {
	if id != "main" {
		return domain.Branch{}, false, nil
	}
	return domain.Branch{ID: id, IsActive: true}, true, nil
}

func (fakeRegistryRepo) UpsertDevice(context.Context, string, string) error { return nil }

func (fakeRegistryRepo) GetDevice(context.Context, string) (domain.Device, bool, error) {
	return domain.Device{}, false, nil
}

func (fakeRegistryRepo) DeleteDevice(context.Context, string) error { return nil }

func newOrderService(repo *fakeOrderRepo) OrderServiceInterface {
	return NewOrderService(repo, fakeRegistryRepo{}, nil, logger.New("service-test"))
}

func TestUpdateStatusUnknownOrder(t *testing.T) {
	repo := &fakeOrderRepo{orders: map[string]domain.Order{}}
	svc := newOrderService(repo)

	_, err := svc.UpdateStatus(context.Background(), "ghost", domain.StatusConfirmed)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	repo := &fakeOrderRepo{orders: map[string]domain.Order{
		"o-1": {ID: "o-1", BranchID: "main", Status: domain.StatusReady},
	}}
	svc := newOrderService(repo)

	_, err := svc.UpdateStatus(context.Background(), "o-1", domain.StatusPending)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.StatusReady, repo.orders["o-1"].Status)
}

// Two writers both read the same status; only the first may commit. The loser
// fails at the update predicate even though its snapshot validated cleanly.
func TestUpdateStatusLosesRaceToConcurrentWriter(t *testing.T) {
	repo := &fakeOrderRepo{orders: map[string]domain.Order{
		"o-1": {ID: "o-1", BranchID: "main", Status: domain.StatusPreparing},
	}}
	repo.afterGet = func() {
		repo.afterGet = nil
		o := repo.orders["o-1"]
		o.Status = domain.StatusCancelled
		repo.orders["o-1"] = o
	}
	svc := newOrderService(repo)

	_, err := svc.UpdateStatus(context.Background(), "o-1", domain.StatusReady)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.StatusCancelled, repo.orders["o-1"].Status, "the interleaved cancel must stand")
}
