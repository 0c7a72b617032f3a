// Package orders keeps the console's in-memory view of the branch's active
// orders consistent under interleaved push events and barista actions.
package orders

import (
	"context"
	"fmt"
	"sync"

	"coffee-shop-system/internal/domain"
)

// StoreClient is the slice of the store API the view model needs for
// locally-initiated status changes.
type StoreClient interface {
	UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, error)
}

type ViewModel struct {
	api StoreClient

	mu   sync.Mutex
	list []string // order ids, newest first
	byID map[string]*domain.Order
}

func NewViewModel(api StoreClient) *ViewModel {
	return &ViewModel{api: api, byID: make(map[string]*domain.Order)}
}

// AddOrder prepends the order. A duplicate id is a no-op, which makes
// at-least-once delivery of new-order pushes harmless.
func (vm *ViewModel) AddOrder(order domain.Order) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if _, ok := vm.byID[order.ID]; ok {
		return
	}
	o := order
	vm.byID[o.ID] = &o
	vm.list = append([]string{o.ID}, vm.list...)
}

// ApplyPush applies a server-pushed status change. Unknown ids are ignored
// (the update may race with a refetch); transitions outside the table are
// rejected so a stale push can never corrupt the view.
func (vm *ViewModel) ApplyPush(change domain.StatusChange) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	o, ok := vm.byID[change.OrderID]
	if !ok {
		return nil
	}
	if err := domain.ValidateTransition(o.Status, change.Status); err != nil {
		return err
	}
	o.Status = change.Status
	return nil
}

// Merge replaces the stored order's mutable fields with what the store
// returned. No-op when the id is unknown.
func (vm *ViewModel) Merge(updated domain.Order) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	o, ok := vm.byID[updated.ID]
	if !ok {
		return
	}
	o.Status = updated.Status
	o.Total = updated.Total
	o.UpdatedAt = updated.UpdatedAt
	if len(updated.Items) > 0 {
		o.Items = updated.Items
	}
}

// AdvanceStatus moves the order one step along the happy path. The store is
// asked first; the local view only changes after the store confirmed, so a
// failed request never leaves the console ahead of reality.
func (vm *ViewModel) AdvanceStatus(ctx context.Context, orderID string) error {
	vm.mu.Lock()
	o, ok := vm.byID[orderID]
	if !ok {
		vm.mu.Unlock()
		return fmt.Errorf("order %s not in view", orderID)
	}
	status := o.Status
	vm.mu.Unlock()
	next, can := domain.NextStatus(status)
	if !can {
		return fmt.Errorf("%w: %s has no successor", domain.ErrInvalidTransition, status)
	}

	updated, err := vm.api.UpdateOrderStatus(ctx, orderID, next)
	if err != nil {
		return err
	}
	vm.Merge(updated)
	return nil
}

// Cancel cancels the order through the store, same confirm-then-merge rule as
// AdvanceStatus.
func (vm *ViewModel) Cancel(ctx context.Context, orderID string) error {
	vm.mu.Lock()
	o, ok := vm.byID[orderID]
	if !ok {
		vm.mu.Unlock()
		return fmt.Errorf("order %s not in view", orderID)
	}
	status := o.Status
	vm.mu.Unlock()
	if !domain.CanCancel(status) {
		return fmt.Errorf("%w: cannot cancel from %s", domain.ErrInvalidTransition, status)
	}

	updated, err := vm.api.UpdateOrderStatus(ctx, orderID, domain.StatusCancelled)
	if err != nil {
		return err
	}
	vm.Merge(updated)
	return nil
}

// Replace swaps the whole collection, used to resynchronize after a
// reconnect gap.
func (vm *ViewModel) Replace(orders []domain.Order) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.list = vm.list[:0]
	vm.byID = make(map[string]*domain.Order, len(orders))
	for i := range orders {
		o := orders[i]
		if _, ok := vm.byID[o.ID]; ok {
			continue
		}
		vm.byID[o.ID] = &o
		vm.list = append(vm.list, o.ID)
	}
}

// Orders returns a snapshot, newest first.
func (vm *ViewModel) Orders() []domain.Order {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	out := make([]domain.Order, 0, len(vm.list))
	for _, id := range vm.list {
		out = append(out, *vm.byID[id])
	}
	return out
}

// Get returns the order by id.
func (vm *ViewModel) Get(orderID string) (domain.Order, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	o, ok := vm.byID[orderID]
	if !ok {
		return domain.Order{}, false
	}
	return *o, true
}

func (vm *ViewModel) Len() int {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return len(vm.list)
}
