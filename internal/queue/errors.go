package queue

import "fmt"

// ConflictError is returned by Add when a pending operation already exists
// for the target (table, itemId).
type ConflictError struct {
	TableName string
	ItemID    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("queue conflict: pending operation already exists for %s/%s", e.TableName, e.ItemID)
}

// UnavailableError wraps a DataSource failure encountered while reading or
// writing the operation table.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("operation store unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }
