package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownExchange     = errors.New("unknown exchange")
	ErrUnknownSymbol       = errors.New("unknown symbol")
	ErrSnapshotUnavailable = errors.New("snapshot unavailable")
	ErrGatewayUnavailable  = errors.New("gateway unavailable")
	ErrAuthentication      = errors.New("authentication failed")
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrSettlementFailed    = errors.New("settlement failed")
	ErrLockHeld            = errors.New("lock already held")
)

// GatewayError is returned by exchange adapters. Kind is one of
// ErrGatewayUnavailable, ErrAuthentication, ErrValidation or ErrNotFound so
// callers can branch with errors.Is without knowing the adapter.
type GatewayError struct {
	Exchange ExchangeID
	Op       string
	Kind     error
	Err      error
}

func (e *GatewayError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s: %v", e.Exchange, e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v: %v", e.Exchange, e.Op, e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsRetriable reports whether a status query that failed with err should simply
// be asked again on the next tick.
func (e *GatewayError) IsRetriable() bool {
	return errors.Is(e.Kind, ErrGatewayUnavailable) || errors.Is(e.Kind, ErrNotFound)
}

// NewGatewayError builds a GatewayError.
func NewGatewayError(ex ExchangeID, op string, kind, err error) *GatewayError {
	return &GatewayError{Exchange: ex, Op: op, Kind: kind, Err: err}
}

// RetriableError is implemented by errors that know whether retrying helps.
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable. Errors that do not implement
// RetriableError are treated as transient unless they wrap ErrAuthentication
// or ErrValidation.
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return !errors.Is(err, ErrAuthentication) && !errors.Is(err, ErrValidation)
}
