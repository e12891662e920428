package models

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrConfigNotFound         = errors.New("exchange config not found")
	ErrInvalidTransition      = errors.New("invalid order status transition")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrConcurrentUpdate       = errors.New("order was modified concurrently")
	ErrContractAlreadyClaimed = errors.New("contract already claimed by another order")
)

// CandidateLookupError means the contract snapshot source could not be read.
// The order is skipped for this pass and keeps its prior state.
type CandidateLookupError struct {
	OrderId int
	Err     error
}

func (e *CandidateLookupError) Error() string {
	return fmt.Sprintf("candidate lookup failed for order %d: %v", e.OrderId, e.Err)
}

func (e *CandidateLookupError) Unwrap() error { return e.Err }

// IdentityResolutionError means the owner's character ids could not be resolved,
// or the owner has no linked characters at all.
type IdentityResolutionError struct {
	OrderId int
	OwnerId int
	Err     error
}

func (e *IdentityResolutionError) Error() string {
	return fmt.Sprintf("identity resolution failed for order %d (owner %d): %v", e.OrderId, e.OwnerId, e.Err)
}

func (e *IdentityResolutionError) Unwrap() error { return e.Err }

// ErrNoLinkedIdentity is wrapped by IdentityResolutionError when the owner has no characters.
var ErrNoLinkedIdentity = errors.New("owner has no linked characters")

// LedgerUnderflowError is returned when a stock adjustment would drive a quantity below zero.
type LedgerUnderflowError struct {
	ConfigId  int
	TypeId    int
	Available int64
	Requested int64
}

func (e *LedgerUnderflowError) Error() string {
	return fmt.Sprintf("stock underflow for type %d in config %d: available %d, requested %d",
		e.TypeId, e.ConfigId, e.Available, e.Requested)
}

func (e *LedgerUnderflowError) Unwrap() error { return ErrInsufficientStock }

// NotificationDeliveryError is logged and swallowed by callers; it never affects order state.
type NotificationDeliveryError struct {
	RecipientId int
	Title       string
	Err         error
}

func (e *NotificationDeliveryError) Error() string {
	return fmt.Sprintf("notification %q to %d failed: %v", e.Title, e.RecipientId, e.Err)
}

func (e *NotificationDeliveryError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed commit. It is the only error class a pass surfaces.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
