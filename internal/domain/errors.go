package domain

import (
	"errors"
	"fmt"
)

// Order-level: recoverable by skipping when revertIfIncomplete is false.
var (
	ErrOrderCancelled = errors.New("order cancelled")
	ErrOrderExpired   = errors.New("order expired")
	ErrOrderFilled    = errors.New("order already filled")
	ErrBadOrderSig    = errors.New("order signature invalid")
	ErrBadPayment     = errors.New("order payment mismatch")
	ErrNotOwner       = errors.New("maker does not own the asset")
)

// Batch-level: fatal to the containing call.
var (
	ErrIncomplete            = errors.New("batch incomplete")
	ErrInsufficientValue     = errors.New("insufficient value")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrFeeTransfer           = errors.New("fee transfer failed")
	ErrReentrant             = errors.New("reentrant call")
	ErrUnknownMethod         = errors.New("unknown method")
	ErrNoCode                = errors.New("call to account without code")
)

// Swap-level.
var (
	ErrSlippage = errors.New("slippage exceeded")
	ErrNoRoute  = errors.New("no liquidity route")
)

// Permit-level: detected before any asset moves.
var (
	ErrPermitExpired = errors.New("permit expired")
	ErrNonceUsed     = errors.New("permit nonce already used")
	ErrBadSignature  = errors.New("permit signature mismatch")
)

// Planner-level: surfaced before any transaction exists.
var (
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
	ErrUnsupportedCurrency = errors.New("unsupported protocol/currency pairing")
	ErrUnresolvableSwap    = errors.New("swap cannot be sized")
	ErrNoViableGrouping    = errors.New("no viable grouping under transaction ceiling")
	ErrInvalidOrder        = errors.New("invalid order detail")
)

// RevertError is an on-chain call failure, annotated with where it happened.
type RevertError struct {
	Contract string
	Method   string
	Cause    error
}

func (e *RevertError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("%s reverted: %v", e.Contract, e.Cause)
	}
	return fmt.Sprintf("%s.%s reverted: %v", e.Contract, e.Method, e.Cause)
}

func (e *RevertError) Unwrap() error {
	return e.Cause
}

// ErrorClass classifies an error into the propagation classes the engine uses.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, ErrIncomplete):
		return "batch"

	case errors.Is(err, ErrOrderCancelled),
		errors.Is(err, ErrOrderExpired),
		errors.Is(err, ErrOrderFilled),
		errors.Is(err, ErrBadOrderSig),
		errors.Is(err, ErrBadPayment),
		errors.Is(err, ErrNotOwner):
		return "order"

	case errors.Is(err, ErrSlippage),
		errors.Is(err, ErrNoRoute):
		return "swap"

	case errors.Is(err, ErrPermitExpired),
		errors.Is(err, ErrNonceUsed),
		errors.Is(err, ErrBadSignature):
		return "permit"

	case errors.Is(err, ErrUnsupportedProtocol),
		errors.Is(err, ErrUnsupportedCurrency),
		errors.Is(err, ErrUnresolvableSwap),
		errors.Is(err, ErrNoViableGrouping),
		errors.Is(err, ErrInvalidOrder):
		return "planner"

	default:
		return "batch"
	}
}

// IsOrderLevel reports whether err is a per-order failure a module may skip.
func IsOrderLevel(err error) bool {
	return ErrorClass(err) == "order"
}
