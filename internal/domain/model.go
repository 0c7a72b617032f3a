package domain

import "time"

type Branch struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	IsActive bool   `json:"is_active"`
}

type Order struct {
	ID          string      `json:"id"`
	BranchID    string      `json:"branch_id"`
	Status      OrderStatus `json:"status"`
	Total       float64     `json:"total"`
	Items       []OrderItem `json:"items"`
	CustomerRef *string     `json:"customer_ref,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type OrderItem struct {
	ProductID      string   `json:"product_id"`
	Quantity       int      `json:"quantity"`
	Price          float64  `json:"price"`
	Customizations []string `json:"customizations,omitempty"`
}

type Device struct {
	ID           string    `json:"id"`
	BranchID     string    `json:"branch_id"`
	RegisteredAt time.Time `json:"registered_at"`
}
