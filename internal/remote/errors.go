package remote

import "fmt"

// TransportError wraps a network-level failure talking to the remote. It
// aborts the whole push, unlike a ConflictError or ValidationError.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string  { return fmt.Sprintf("transport: %v", e.Err) }
func (e *TransportError) Unwrap() error  { return e.Err }

// AuthError indicates a credential/authorization failure. Like
// TransportError, it aborts the whole push.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("auth: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// ConflictError indicates the server rejected a write with a precondition
// failure (412/409); it carries the server's authoritative version and, if
// returned, the server's current item. A conflict is recorded per-op and
// does not abort the push.
type ConflictError struct {
	ServerVersion int
	ServerItem    map[string]any
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: server version %d", e.ServerVersion)
}

// PreconditionFailedError is a 412 response without a version payload
// (e.g. ETag validation failure on a field the client didn't send).
type PreconditionFailedError struct {
	Message string
}

func (e *PreconditionFailedError) Error() string {
	return fmt.Sprintf("precondition failed: %s", e.Message)
}

// ValidationError indicates the server rejected the item's shape/content.
// Like ConflictError, it is recorded per-op and does not abort the push.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s", e.Message)
}

// EpochMismatchError indicates the remote's tenant epoch advanced past the
// client's cached value (e.g. another device force-purged).
type EpochMismatchError struct {
	ServerEpoch int
}

func (e *EpochMismatchError) Error() string {
	return fmt.Sprintf("epoch mismatch: server is now at epoch %d", e.ServerEpoch)
}

// RateLimitedError indicates the remote asked the client to back off.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %ds", e.RetryAfterSeconds)
}
