package game

import (
	"errors"
	"fmt"
)

// ErrNotConnected rejects any operation while the socket is not open.
var ErrNotConnected = errors.New("game: not connected")

// ErrStopped settles pending work when the client is torn down.
var ErrStopped = errors.New("game: client stopped")

// ValidationError is a precondition failure. It never reaches the network
// and carries a user-facing reason.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "game: " + e.Reason
}

// InsufficientBalanceError is always computed against a freshly fetched
// balance, never a cached one.
type InsufficientBalanceError struct {
	Balance float64
	Stake   float64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("game: insufficient balance: stake %.2f exceeds balance %.2f", e.Stake, e.Balance)
}

// CorrelationTimeoutError means the server never answered a cashout request
// within the timeout. Distinct from a server-rejected cashout.
type CorrelationTimeoutError struct {
	RequestID string
}

func (e *CorrelationTimeoutError) Error() string {
	return "game: cashout request " + e.RequestID + " timed out"
}

// ServerRejectionError wraps a bet_error/cashout_error message, passed
// through verbatim to the user.
type ServerRejectionError struct {
	Message     string
	ServerCrash bool
}

func (e *ServerRejectionError) Error() string {
	return "game: server rejected: " + e.Message
}
