// Package storeapi is the console's HTTP client for the shared order store.
package storeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"coffee-shop-system/internal/domain"
)

var (
	// ErrNetwork wraps transport-level failures so callers can tell them
	// apart from store rejections.
	ErrNetwork        = errors.New("network failure")
	ErrBranchRejected = errors.New("branch rejected by store")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not found")
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) ValidateBranch(ctx context.Context, branchID, deviceID string) (domain.Branch, error) {
	req := domain.ValidateBranchRequest{DeviceID: deviceID, Nonce: time.Now().UnixNano()}
	var resp domain.ValidateBranchResponse
	err := c.do(ctx, http.MethodPost, "/branches/"+url.PathEscape(branchID)+"/validate", req, &resp)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.Branch{}, fmt.Errorf("%w: %s", ErrBranchRejected, branchID)
		}
		return domain.Branch{}, err
	}
	return resp.Branch, nil
}

func (c *Client) RegisterDevice(ctx context.Context, deviceID, branchID string) error {
	return c.do(ctx, http.MethodPost, "/devices/register", domain.RegisterDeviceRequest{
		DeviceID: deviceID,
		BranchID: branchID,
	}, nil)
}

func (c *Client) AdminUnlock(ctx context.Context, deviceID, password string) error {
	return c.do(ctx, http.MethodPost, "/admin/unlock", domain.AdminUnlockRequest{
		DeviceID: deviceID,
		Password: password,
	}, nil)
}

func (c *Client) RefreshToken(ctx context.Context, deviceID string) (domain.RefreshTokenResponse, error) {
	var resp domain.RefreshTokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/refresh", domain.RefreshTokenRequest{DeviceID: deviceID}, &resp)
	return resp, err
}

type ordersResponse struct {
	BranchID string         `json:"branch_id"`
	Orders   []domain.Order `json:"orders"`
}

// BranchOrders fetches the branch's active orders. Older store deployments
// only expose the query-parameter form, so a 404 on the path form falls back
// to GET /orders?branch_id=.
func (c *Client) BranchOrders(ctx context.Context, branchID, status string) ([]domain.Order, error) {
	query := ""
	if status != "" {
		query = "?status=" + url.QueryEscape(status)
	}
	var resp ordersResponse
	err := c.do(ctx, http.MethodGet, "/orders/branch/"+url.PathEscape(branchID)+query, nil, &resp)
	if errors.Is(err, ErrNotFound) {
		fallback := "/orders?branch_id=" + url.QueryEscape(branchID)
		if status != "" {
			fallback += "&status=" + url.QueryEscape(status)
		}
		err = c.do(ctx, http.MethodGet, fallback, nil, &resp)
	}
	if err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, error) {
	var order domain.Order
	err := c.do(ctx, http.MethodPatch, "/orders/"+url.PathEscape(orderID), domain.UpdateOrderStatusRequest{Status: status}, &order)
	return order, err
}

type problem struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}

	var p problem
	_ = json.NewDecoder(resp.Body).Decode(&p)
	detail := p.Detail
	if detail == "" {
		detail = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, detail)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, detail)
	case resp.StatusCode == http.StatusUnprocessableEntity && p.Type == "invalid_transition":
		return fmt.Errorf("%w: %s", domain.ErrInvalidTransition, detail)
	default:
		return fmt.Errorf("store returned %d (%s): %s", resp.StatusCode, p.Type, detail)
	}
}
