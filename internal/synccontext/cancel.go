package synccontext

import (
	"context"

	"github.com/erauner12/syncengine-go/internal/itemmeta"
	"github.com/erauner12/syncengine-go/internal/model"
)

// CancelKeepItem cancels the pending operation for (table, itemId),
// replacing the local row with correctedItem (stripped of every system
// property except __version) before removing the op.
func (sc *SyncContext) CancelKeepItem(ctx context.Context, table, itemID string, correctedItem model.Item, completion func(error)) {
	go func() {
		err := sc.inWriter(ctx, func(ctx context.Context) error {
			op, err := sc.findPendingOp(ctx, table, itemID)
			if err != nil {
				return err
			}
			cleaned := itemmeta.StripExceptVersion(correctedItem)
			if cleaned.ID() == "" {
				cleaned["id"] = itemID
			}
			if err := sc.ds.Upsert(ctx, table, []model.Item{cleaned}); err != nil {
				return err
			}
			return sc.q.Remove(ctx, op)
		})
		if completion != nil {
			sc.callbacks.submit(func() { completion(err) })
		}
	}()
}

// CancelDiscardItem cancels the pending operation for (table, itemId),
// deleting the local row before removing the op.
func (sc *SyncContext) CancelDiscardItem(ctx context.Context, table, itemID string, completion func(error)) {
	go func() {
		err := sc.inWriter(ctx, func(ctx context.Context) error {
			op, err := sc.findPendingOp(ctx, table, itemID)
			if err != nil {
				return err
			}
			if err := sc.ds.Delete(ctx, table, []string{itemID}); err != nil {
				return err
			}
			return sc.q.Remove(ctx, op)
		})
		if completion != nil {
			sc.callbacks.submit(func() { completion(err) })
		}
	}()
}

func (sc *SyncContext) findPendingOp(ctx context.Context, table, itemID string) (*model.Operation, error) {
	ops, err := sc.q.GetOperationsForTable(ctx, table, &itemID)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		sc.log.Warn().Str("table", table).Str("itemId", itemID).Msg("cancel requested with no pending operation")
		return nil, &InvalidParameterError{Message: "no pending operation for " + table + "/" + itemID}
	}
	return ops[0], nil
}
