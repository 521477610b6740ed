package synccontext

import (
	"context"
	"errors"
	"fmt"

	"github.com/erauner12/syncengine-go/internal/model"
	"github.com/erauner12/syncengine-go/internal/remote"
)

var (
	errMissingRemoteClient  = fmt.Errorf("no RemoteClient configured")
	errUnknownOperationType = fmt.Errorf("unknown operation type")
)

// Push drains the operation queue to the remote. It returns immediately
// with a Handle; completion is delivered on the callback executor with nil
// (every op drained), a *PushAbortedError, a *PushCancelledError when the
// Handle is cancelled between operations, or the queue's own error when the
// queue cannot be loaded.
func (sc *SyncContext) Push(ctx context.Context, completion func(error)) *Handle {
	lctx, cancel := context.WithCancel(ctx)
	sc.lane.post(func() {
		err := sc.runPush(lctx)
		if completion != nil {
			sc.callbacks.submit(func() { completion(err) })
		}
	})
	return &Handle{cancel: cancel}
}

func (sc *SyncContext) runPush(ctx context.Context) error {
	ops, err := sc.q.All(ctx)
	if err != nil {
		sc.log.Error().Err(err).Msg("failed to load operation queue")
		return err
	}

	var perOpErrors []*model.OpError
	for _, op := range ops {
		if ctx.Err() != nil {
			return &PushCancelledError{}
		}

		result, pushErr := sc.pushOne(ctx, op)
		switch {
		case pushErr == nil:
			if err := sc.persistPushResult(ctx, op, result); err != nil {
				sc.log.Error().Err(err).Str("table", op.TableName).Str("itemId", op.ItemID).
					Msg("failed to persist push result, aborting push")
				return &PushAbortedError{Cause: err, PerOpErrors: perOpErrors}
			}
		case isPerOpError(pushErr):
			opErr := toOpError(pushErr)
			sc.log.Warn().Err(pushErr).Str("table", op.TableName).Str("itemId", op.ItemID).
				Msg("push operation rejected, recording per-op error")
			op.Error = opErr
			if err := sc.inWriter(ctx, func(ctx context.Context) error {
				return sc.q.Update(ctx, op)
			}); err != nil {
				sc.log.Error().Err(err).Str("table", op.TableName).Str("itemId", op.ItemID).
					Msg("failed to record per-op error, aborting push")
				return &PushAbortedError{Cause: err, PerOpErrors: perOpErrors}
			}
			perOpErrors = append(perOpErrors, opErr)
		default:
			sc.log.Error().Err(pushErr).Str("table", op.TableName).Str("itemId", op.ItemID).
				Msg("push transport failure, aborting push")
			return &PushAbortedError{Cause: pushErr, PerOpErrors: perOpErrors}
		}
	}

	if len(perOpErrors) > 0 {
		return &PushAbortedError{PerOpErrors: perOpErrors}
	}
	return nil
}

// pushOne serializes op's payload and invokes the user push handler or the
// default RemoteClient call matching op.Type.
func (sc *SyncContext) pushOne(ctx context.Context, op *model.Operation) (model.Item, error) {
	if sc.rc == nil && sc.pushHandler == nil {
		return nil, &remote.TransportError{Err: errMissingRemoteClient}
	}

	var item model.Item
	if op.Type == model.Delete {
		item = op.Item
	} else {
		stored, ok, err := sc.ds.Read(ctx, op.TableName, op.ItemID)
		if err != nil {
			return nil, err
		}
		if ok {
			item = stored
		} else {
			item = model.Item{"id": op.ItemID}
		}
	}

	if sc.pushHandler != nil {
		return sc.pushHandler(ctx, op, sc.rc)
	}

	switch op.Type {
	case model.Insert:
		return sc.rc.TableInsert(ctx, op.TableName, item, nil)
	case model.Update:
		return sc.rc.TableUpdate(ctx, op.TableName, item, nil)
	case model.Delete:
		return nil, sc.rc.TableDelete(ctx, op.TableName, item, nil)
	default:
		return nil, &remote.TransportError{Err: errUnknownOperationType}
	}
}

// persistPushResult removes op from the queue and, for Insert/Update,
// writes the server-returned item back to the local store — but only if op
// is still exactly the pending operation it was when the push read it.
// op.Version increments every time an operation is condensed in place
// (ToDelete, mutate.go), so comparing OperationID and Version here catches
// both ways a concurrent local mutation can invalidate this result: the
// operation was condensed in place (same id, bumped version — e.g. the
// push was for an Update that a racing local Delete has since rewritten to
// a pending Delete, which must not be clobbered by the stale Update
// response) or discarded outright (ToDeleteAsDiscard removes it entirely,
// so no current op is found at all). In either case the server's response
// describes a local state that no longer exists and must not be written
// back, and the (now different or absent) pending operation must not be
// removed out from under the mutation that superseded it.
func (sc *SyncContext) persistPushResult(ctx context.Context, op *model.Operation, serverItem model.Item) error {
	return sc.inWriter(ctx, func(ctx context.Context) error {
		itemID := op.ItemID
		current, err := sc.q.GetOperationsForTable(ctx, op.TableName, &itemID)
		if err != nil {
			return err
		}

		superseded := true
		if len(current) == 1 && current[0].OperationID == op.OperationID && current[0].Version == op.Version {
			superseded = false
		}
		if superseded {
			return nil
		}

		if err := sc.q.Remove(ctx, op); err != nil {
			return err
		}
		if op.Type == model.Delete || serverItem == nil {
			return nil
		}
		return sc.ds.Upsert(ctx, op.TableName, []model.Item{serverItem})
	})
}

// isPerOpError reports whether err is a conflict/validation failure that
// should be recorded per-op rather than abort the whole push.
func isPerOpError(err error) bool {
	var conflict *remote.ConflictError
	var precondition *remote.PreconditionFailedError
	var validation *remote.ValidationError
	return errors.As(err, &conflict) || errors.As(err, &precondition) || errors.As(err, &validation)
}

func toOpError(err error) *model.OpError {
	var conflict *remote.ConflictError
	if errors.As(err, &conflict) {
		return &model.OpError{Kind: "conflict", Message: err.Error(), ServerItem: conflict.ServerItem}
	}
	var precondition *remote.PreconditionFailedError
	if errors.As(err, &precondition) {
		return &model.OpError{Kind: "conflict", Message: err.Error()}
	}
	var validation *remote.ValidationError
	if errors.As(err, &validation) {
		return &model.OpError{Kind: "validation", Message: err.Error()}
	}
	return &model.OpError{Kind: "unknown", Message: err.Error()}
}
