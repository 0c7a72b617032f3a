package service

import (
	"context"
	"crypto/subtle"
	"fmt"

	"coffee-shop-system/internal/auth"
	"coffee-shop-system/internal/domain"
	"coffee-shop-system/internal/logger"
	"coffee-shop-system/internal/microservices/store/repository"
)

// RegistryService owns the device side of the store API: branch validation,
// device registration, the privileged unlock and token refresh.
type RegistryService struct {
	registry      repository.RegistryRepositoryInterface
	tokens        *auth.Manager
	adminPassword string
	lg            *logger.Logger
}

func NewRegistryService(registry repository.RegistryRepositoryInterface, tokens *auth.Manager, adminPassword string, lg *logger.Logger) RegistryServiceInterface {
	return &RegistryService{registry: registry, tokens: tokens, adminPassword: adminPassword, lg: lg}
}

func (s *RegistryService) ValidateBranch(ctx context.Context, branchID string, req domain.ValidateBranchRequest) (domain.ValidateBranchResponse, error) {
	branch, ok, err := s.registry.GetBranch(ctx, branchID)
	if err != nil {
		return domain.ValidateBranchResponse{}, err
	}
	if !ok || !branch.IsActive {
		return domain.ValidateBranchResponse{}, ErrBranchNotFound
	}
	// The nonce is echoed back so the device can tie the response to its
	// handshake attempt.
	return domain.ValidateBranchResponse{Branch: branch, Nonce: req.Nonce}, nil
}

func (s *RegistryService) RegisterDevice(ctx context.Context, req domain.RegisterDeviceRequest) error {
	branch, ok, err := s.registry.GetBranch(ctx, req.BranchID)
	if err != nil {
		return err
	}
	if !ok || !branch.IsActive {
		return ErrBranchNotFound
	}
	if err := s.registry.UpsertDevice(ctx, req.DeviceID, req.BranchID); err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	s.lg.Info("device_registered", map[string]any{"device_id": req.DeviceID, "branch_id": req.BranchID})
	return nil
}

func (s *RegistryService) AdminUnlock(ctx context.Context, req domain.AdminUnlockRequest) error {
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.adminPassword)) != 1 {
		s.lg.Warn("admin_unlock_denied", map[string]any{"device_id": req.DeviceID})
		return ErrBadCredentials
	}
	if err := s.registry.DeleteDevice(ctx, req.DeviceID); err != nil {
		return err
	}
	s.lg.Info("device_unlocked", map[string]any{"device_id": req.DeviceID})
	return nil
}

func (s *RegistryService) RefreshToken(ctx context.Context, req domain.RefreshTokenRequest) (domain.RefreshTokenResponse, error) {
	device, ok, err := s.registry.GetDevice(ctx, req.DeviceID)
	if err != nil {
		return domain.RefreshTokenResponse{}, err
	}
	if !ok {
		return domain.RefreshTokenResponse{}, ErrDeviceNotRegistered
	}
	token, expires, err := s.tokens.Mint(device.ID, device.BranchID, auth.RoleBarista)
	if err != nil {
		return domain.RefreshTokenResponse{}, err
	}
	return domain.RefreshTokenResponse{
		Token:     token,
		ExpiresAt: expires.Unix(),
		BranchID:  device.BranchID,
		Role:      auth.RoleBarista,
	}, nil
}
