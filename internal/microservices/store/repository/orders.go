package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"coffee-shop-system/internal/domain"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrStatusChanged means the row's status no longer matches what the
	// caller validated against; the caller has to re-read and re-decide.
	ErrStatusChanged = errors.New("order status changed concurrently")
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) OrderRepositoryInterface {
	return &OrderRepository{db: db}
}

func (or *OrderRepository) CreateOrder(ctx context.Context, order domain.Order) error {
	tx, err := or.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, branch_id, status, total, customer_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, order.ID, order.BranchID, order.Status, order.Total, order.CustomerRef, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, price, customizations)
			VALUES ($1, $2, $3, $4, $5)
		`, order.ID, item.ProductID, item.Quantity, item.Price, joinCustomizations(item.Customizations))
		if err != nil {
			return fmt.Errorf("failed to insert order item %s: %w", item.ProductID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

func (or *OrderRepository) GetOrder(ctx context.Context, id string) (domain.Order, bool, error) {
	var o domain.Order
	err := or.db.QueryRowContext(ctx, `
		SELECT id, branch_id, status, total, customer_ref, created_at, updated_at
		FROM orders WHERE id = $1
	`, id).Scan(&o.ID, &o.BranchID, &o.Status, &o.Total, &o.CustomerRef, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, false, nil
	}
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("failed to get order: %w", err)
	}
	if o.Items, err = or.loadItems(ctx, o.ID); err != nil {
		return domain.Order{}, false, err
	}
	return o, true, nil
}

func (or *OrderRepository) ListBranchOrders(ctx context.Context, branchID string, status *domain.OrderStatus) ([]domain.Order, error) {
	query := `
		SELECT id, branch_id, status, total, customer_ref, created_at, updated_at
		FROM orders
		WHERE branch_id = $1 AND status NOT IN ('completed', 'cancelled')
		ORDER BY created_at DESC`
	args := []any{branchID}
	if status != nil {
		query = `
		SELECT id, branch_id, status, total, customer_ref, created_at, updated_at
		FROM orders
		WHERE branch_id = $1 AND status = $2
		ORDER BY created_at DESC`
		args = append(args, *status)
	}

	rows, err := or.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.BranchID, &o.Status, &o.Total, &o.CustomerRef, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	for i := range orders {
		if orders[i].Items, err = or.loadItems(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// UpdateOrderStatus moves the order from one status to another in a single
// statement. The current status is part of the predicate, so a transition
// validated against a stale read cannot commit.
func (or *OrderRepository) UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus) (domain.Order, error) {
	var o domain.Order
	err := or.db.QueryRowContext(ctx, `
		UPDATE orders SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING id, branch_id, status, total, customer_ref, created_at, updated_at
	`, id, from, to).Scan(&o.ID, &o.BranchID, &o.Status, &o.Total, &o.CustomerRef, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := or.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
			return domain.Order{}, fmt.Errorf("failed to update order status: %w", err)
		}
		if !exists {
			return domain.Order{}, ErrOrderNotFound
		}
		return domain.Order{}, ErrStatusChanged
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("failed to update order status: %w", err)
	}
	if o.Items, err = or.loadItems(ctx, o.ID); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (or *OrderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := or.db.QueryContext(ctx, `
		SELECT product_id, quantity, price, customizations
		FROM order_items WHERE order_id = $1 ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	items := []domain.OrderItem{}
	for rows.Next() {
		var it domain.OrderItem
		var customizations sql.NullString
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.Price, &customizations); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		it.Customizations = splitCustomizations(customizations)
		items = append(items, it)
	}
	return items, rows.Err()
}
