package model

// CondenseAction is the decision the queue makes when a new local mutation
// targets an (table, itemId) that already has a pending operation.
type CondenseAction int

const (
	// AddNew creates a fresh operation with the next id and appends it.
	AddNew CondenseAction = iota
	// Keep retains the existing operation unchanged; the local store is
	// still updated with the new value.
	Keep
	// ToDelete rewrites the existing operation's type to Delete in place,
	// preserving its OperationID.
	ToDelete
	// ToDeleteAsDiscard cancels an Insert+Delete pair; the existing
	// operation is removed entirely without ever reaching the server.
	ToDeleteAsDiscard
	// NotSupported rejects the mutation outright.
	NotSupported
)

// Decide implements the condensation table: how a new local mutation
// combines with whatever operation is already pending for the same
// (table, itemId). existing is nil when there is no pending operation for
// the target identity.
func Decide(existing *Operation, newAction OperationType) CondenseAction {
	if existing == nil {
		return AddNew
	}

	switch existing.Type {
	case Insert:
		switch newAction {
		case Insert:
			return NotSupported
		case Update:
			return Keep
		case Delete:
			return ToDeleteAsDiscard
		}
	case Update:
		switch newAction {
		case Insert:
			return NotSupported
		case Update:
			return Keep
		case Delete:
			return ToDelete
		}
	case Delete:
		return NotSupported
	}
	return NotSupported
}
