package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAlreadyExists   = errors.New("entity already exists")

	// Entitlement / payment errors
	ErrAlreadyOwned             = errors.New("entitlement already owned")
	ErrProductMismatch          = errors.New("receipt product does not match requested product")
	ErrSignatureInvalid         = errors.New("payment signature invalid")
	ErrRemoteVerificationFailed = errors.New("remote authority rejected the receipt")
	ErrRemoteUnavailable        = errors.New("remote authority unavailable")
	ErrUnsupportedReceiptFormat = errors.New("unsupported receipt format")
	ErrPaymentRequired          = errors.New("payment required before fulfillment")
	ErrProofMismatch            = errors.New("payment proof does not belong to this entry")
	ErrTransactionConsumed      = errors.New("remote transaction already consumed")

	// Infra-boundary errors surfaced by repositories
	ErrOperationFailed    = errors.New("operation failed")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Locking
	ErrLockNotAcquired = errors.New("could not acquire lock")
)
