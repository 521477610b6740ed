package synccontext

import (
	"fmt"

	"github.com/erauner12/syncengine-go/internal/model"
)

// InvalidParameterError is returned for malformed queries, forbidden field
// combinations, or a queryId that fails the allowed grammar.
type InvalidParameterError struct {
	Message string
}

func (e *InvalidParameterError) Error() string { return "invalid parameter: " + e.Message }

// InvalidActionError is returned when condensation rejects a local mutation
// outright because it would contradict the operation already pending for
// the same item (e.g. updating an item whose delete is already queued).
type InvalidActionError struct {
	TableName string
	ItemID    string
	Action    model.OperationType
}

func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("invalid action: %s not supported for %s/%s", e.Action, e.TableName, e.ItemID)
}

// MissingDataSourceError is returned when a SyncContext is used without a
// DataSource wired in.
type MissingDataSourceError struct{}

func (e *MissingDataSourceError) Error() string { return "sync context has no DataSource configured" }

// PushAbortedError is the single aggregate error PushRunner's completion
// carries whenever at least one operation failed to drain. Cause is nil when
// every failure was a per-op conflict/validation (the push ran to
// completion but left errored ops behind); Cause is non-nil when a
// transport/auth failure stopped the push early, before every op drained.
type PushAbortedError struct {
	Cause       error
	PerOpErrors []*model.OpError
}

func (e *PushAbortedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("push aborted: %v (%d prior per-op errors)", e.Cause, len(e.PerOpErrors))
	}
	return fmt.Sprintf("push completed with %d per-op error(s)", len(e.PerOpErrors))
}

func (e *PushAbortedError) Unwrap() error { return e.Cause }

// PushCancelledError is returned when a push is cancelled via its Handle.
type PushCancelledError struct{}

func (e *PushCancelledError) Error() string { return "push cancelled" }

// PullAbortedError wraps the underlying cause of a failed pull (transport,
// store, or validation).
type PullAbortedError struct {
	Cause error
}

func (e *PullAbortedError) Error() string { return fmt.Sprintf("pull aborted: %v", e.Cause) }
func (e *PullAbortedError) Unwrap() error { return e.Cause }

// PullCancelledError is returned when a pull is cancelled via its Handle.
type PullCancelledError struct{}

func (e *PullCancelledError) Error() string { return "pull cancelled" }

// PurgeAbortedError is returned when pending operations block an unforced
// or filtered purge; a forced purge with no predicate wipes them along with
// the table.
type PurgeAbortedError struct {
	TableName string
}

func (e *PurgeAbortedError) Error() string {
	return fmt.Sprintf("purge aborted: pending operations exist for table %s", e.TableName)
}

// StoreInconsistentError is returned when a local mutation's store write
// succeeded but the matching operation-queue write then failed. The item
// sits in the local store with no corresponding pending operation, so it
// will not be pushed until the caller reconciles it — re-issuing the same
// mutation is always a safe fix, since condensation treats it as a fresh
// AddNew.
type StoreInconsistentError struct {
	TableName string
	ItemID    string
	Cause     error
}

func (e *StoreInconsistentError) Error() string {
	return fmt.Sprintf("store write for %s/%s succeeded but queue write failed: %v", e.TableName, e.ItemID, e.Cause)
}

func (e *StoreInconsistentError) Unwrap() error { return e.Cause }
