package domain

// Request/response bodies for the store service HTTP API. Validation tags are
// enforced by the store handlers before anything touches the database.

type CreateOrderItem struct {
	ProductID      string   `json:"product_id" validate:"required"`
	Quantity       int      `json:"quantity" validate:"gt=0"`
	Price          float64  `json:"price" validate:"gt=0"`
	Customizations []string `json:"customizations,omitempty"`
}

type CreateOrderRequest struct {
	BranchID    string            `json:"branch_id" validate:"required"`
	CustomerRef *string           `json:"customer_ref,omitempty"`
	Items       []CreateOrderItem `json:"items" validate:"min=1,dive"`
}

type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status" validate:"required"`
}

type ValidateBranchRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
	Nonce    int64  `json:"nonce" validate:"required"`
}

type ValidateBranchResponse struct {
	Branch Branch `json:"branch"`
	Nonce  int64  `json:"nonce"`
}

type RegisterDeviceRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
	BranchID string `json:"branch_id" validate:"required"`
}

type AdminUnlockRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RefreshTokenRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
}

type RefreshTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
	BranchID  string `json:"branch_id"`
	Role      string `json:"role"`
}
