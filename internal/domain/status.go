package domain

import (
	"errors"
	"fmt"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusPreparing OrderStatus = "preparing"
	StatusReady     OrderStatus = "ready"
	StatusCompleted OrderStatus = "completed"
	StatusCancelled OrderStatus = "cancelled"
)

var ErrInvalidTransition = errors.New("invalid order status transition")

// successor holds the single happy-path step for each status. Terminal
// statuses have no entry.
var successor = map[OrderStatus]OrderStatus{
	StatusPending:   StatusConfirmed,
	StatusConfirmed: StatusPreparing,
	StatusPreparing: StatusReady,
	StatusReady:     StatusCompleted,
}

var cancellable = map[OrderStatus]bool{
	StatusPending:   true,
	StatusConfirmed: true,
	StatusPreparing: true,
}

func ValidStatus(s OrderStatus) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// NextStatus returns the happy-path successor of the given status and false
// when the status is terminal or unknown.
func NextStatus(s OrderStatus) (OrderStatus, bool) {
	next, ok := successor[s]
	return next, ok
}

func CanAdvance(s OrderStatus) bool {
	_, ok := successor[s]
	return ok
}

func CanCancel(s OrderStatus) bool {
	return cancellable[s]
}

func IsTerminal(s OrderStatus) bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ValidateTransition rejects every (from, to) pair that is not in the
// transition table. Both the store service and the console apply it, so a
// stale or out-of-order push can never move an order backwards.
func ValidateTransition(from, to OrderStatus) error {
	if to == StatusCancelled {
		if cancellable[from] {
			return nil
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if next, ok := successor[from]; ok && next == to {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
