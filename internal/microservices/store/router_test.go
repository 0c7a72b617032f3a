package store

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coffee-shop-system/internal/domain"
	"coffee-shop-system/internal/microservices/store/handlers"
	"coffee-shop-system/internal/microservices/store/service"
)

type fakeOrders struct {
	byID map[string]domain.Order
}

func (f *fakeOrders) Create(_ context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	if req.BranchID != "main" {
		return domain.Order{}, service.ErrBranchNotFound
	}
	total := 0.0
	for _, it := range req.Items {
		total += float64(it.Quantity) * it.Price
	}
	o := domain.Order{ID: "o-new", BranchID: req.BranchID, Status: domain.StatusPending, Total: total, CreatedAt: time.Now().UTC()}
	f.byID[o.ID] = o
	return o, nil
}

func (f *fakeOrders) ListBranch(_ context.Context, branchID, _ string) ([]domain.Order, error) {
	out := []domain.Order{}
	for _, o := range f.byID {
		if o.BranchID == branchID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, orderID string, to domain.OrderStatus) (domain.Order, error) {
	o, ok := f.byID[orderID]
	if !ok {
		return domain.Order{}, service.ErrOrderNotFound
	}
	if err := domain.ValidateTransition(o.Status, to); err != nil {
		return domain.Order{}, err
	}
	o.Status = to
	f.byID[orderID] = o
	return o, nil
}

type fakeRegistry struct{}

func (fakeRegistry) ValidateBranch(_ context.Context, branchID string, req domain.ValidateBranchRequest) (domain.ValidateBranchResponse, error) {
	if branchID != "main" {
		return domain.ValidateBranchResponse{}, service.ErrBranchNotFound
	}
	return domain.ValidateBranchResponse{Branch: domain.Branch{ID: branchID, IsActive: true}, Nonce: req.Nonce}, nil
}

func (fakeRegistry) RegisterDevice(context.Context, domain.RegisterDeviceRequest) error { return nil }

func (fakeRegistry) AdminUnlock(_ context.Context, req domain.AdminUnlockRequest) error {
	if req.Password != "correct-pw" {
		return service.ErrBadCredentials
	}
	return nil
}

func (fakeRegistry) RefreshToken(_ context.Context, req domain.RefreshTokenRequest) (domain.RefreshTokenResponse, error) {
	if req.DeviceID != "dev-1" {
		return domain.RefreshTokenResponse{}, service.ErrDeviceNotRegistered
	}
	return domain.RefreshTokenResponse{Token: "tok", BranchID: "main", Role: "barista"}, nil
}

func newTestRouter(t *testing.T) (*httptest.Server, *fakeOrders) {
	t.Helper()
	orders := &fakeOrders{byID: map[string]domain.Order{
		"o-1": {ID: "o-1", BranchID: "main", Status: domain.StatusReady},
	}}
	srv := httptest.NewServer(Router(handlers.New(orders, fakeRegistry{})))
	t.Cleanup(srv.Close)
	return srv, orders
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func patch(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPatch, url, bytes.NewReader(raw))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestCreateOrderValidation(t *testing.T) {
	srv, _ := newTestRouter(t)

	// No items: rejected before the service runs.
	resp := post(t, srv.URL+"/orders", domain.CreateOrderRequest{BranchID: "main"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, srv.URL+"/orders", domain.CreateOrderRequest{
		BranchID: "main",
		Items:    []domain.CreateOrderItem{{ProductID: "flat-white", Quantity: 2, Price: 4.5}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created domain.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, 9.0, created.Total)
	assert.Equal(t, domain.StatusPending, created.Status)
}

func TestPatchOrderStatus(t *testing.T) {
	srv, orders := newTestRouter(t)

	resp := patch(t, srv.URL+"/orders/o-1", domain.UpdateOrderStatusRequest{Status: domain.StatusCompleted})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.StatusCompleted, orders.byID["o-1"].Status)
}

func TestPatchOrderInvalidTransitionIs422(t *testing.T) {
	srv, orders := newTestRouter(t)

	resp := patch(t, srv.URL+"/orders/o-1", domain.UpdateOrderStatusRequest{Status: domain.StatusPending})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, domain.StatusReady, orders.byID["o-1"].Status, "rejected transition must not apply")

	var p map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	assert.Equal(t, "invalid_transition", p["type"])
}

func TestSecondPatchAgainstMovedOrderIs422(t *testing.T) {
	srv, orders := newTestRouter(t)

	// Both callers saw "ready"; the first commits, the second's transition
	// no longer applies.
	resp := patch(t, srv.URL+"/orders/o-1", domain.UpdateOrderStatusRequest{Status: domain.StatusCompleted})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = patch(t, srv.URL+"/orders/o-1", domain.UpdateOrderStatusRequest{Status: domain.StatusCancelled})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, domain.StatusCompleted, orders.byID["o-1"].Status)
}

func TestPatchUnknownOrderIs404(t *testing.T) {
	srv, _ := newTestRouter(t)
	resp := patch(t, srv.URL+"/orders/ghost", domain.UpdateOrderStatusRequest{Status: domain.StatusConfirmed})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListBranchOrdersBothForms(t *testing.T) {
	srv, _ := newTestRouter(t)

	for _, url := range []string{
		srv.URL + "/orders/branch/main",
		srv.URL + "/orders?branch_id=main",
	} {
		resp, err := http.Get(url)
		require.NoError(t, err)
		var body struct {
			BranchID string         `json:"branch_id"`
			Orders   []domain.Order `json:"orders"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		_ = resp.Body.Close()
		assert.Equal(t, "main", body.BranchID, url)
		assert.Len(t, body.Orders, 1, url)
	}
}

func TestValidateBranchEchoesNonce(t *testing.T) {
	srv, _ := newTestRouter(t)

	nonce := time.Now().UnixNano()
	resp := post(t, srv.URL+"/branches/main/validate", domain.ValidateBranchRequest{DeviceID: "dev-1", Nonce: nonce})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body domain.ValidateBranchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, nonce, body.Nonce)

	resp = post(t, srv.URL+"/branches/nowhere/validate", domain.ValidateBranchRequest{DeviceID: "dev-1", Nonce: 1})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminUnlockStatusCodes(t *testing.T) {
	srv, _ := newTestRouter(t)

	resp := post(t, srv.URL+"/admin/unlock", domain.AdminUnlockRequest{DeviceID: "dev-1", Password: "wrong"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = post(t, srv.URL+"/admin/unlock", domain.AdminUnlockRequest{DeviceID: "dev-1", Password: "correct-pw"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRefreshTokenUnregisteredDevice(t *testing.T) {
	srv, _ := newTestRouter(t)

	resp := post(t, srv.URL+"/auth/refresh", domain.RefreshTokenRequest{DeviceID: "ghost"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = post(t, srv.URL+"/auth/refresh", domain.RefreshTokenRequest{DeviceID: "dev-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body domain.RefreshTokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "tok", body.Token)
}
