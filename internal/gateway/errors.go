package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRequired is returned when the gateway rejects a call for a
	// missing or expired session. It is never retried.
	ErrAuthRequired = errors.New("authentication required")

	// ErrNotFound is returned for unknown entities (product, cart item).
	ErrNotFound = errors.New("not found")
)

// RemoteError carries a gateway-reported failure: either a non-2xx status
// or a success=false envelope.
type RemoteError struct {
	Op      string
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway %s failed (status %d): %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("gateway %s failed (status %d)", e.Op, e.Status)
}
