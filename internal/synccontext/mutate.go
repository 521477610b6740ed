package synccontext

import (
	"context"

	"github.com/erauner12/syncengine-go/internal/model"
	"github.com/google/uuid"
)

// applyLocalMutation writes a local insert/update/delete to the store and
// condenses it against whatever operation is already pending for the same
// item. It must run inside the writer domain; callers go through
// Insert/Update/Delete, which submit it there.
func (sc *SyncContext) applyLocalMutation(ctx context.Context, table string, item model.Item, action model.OperationType) (model.Item, error) {
	item = item.Clone()
	if action == model.Insert && item.ID() == "" {
		item["id"] = uuid.New().String()
	}
	itemID := item.ID()
	if itemID == "" {
		return nil, &InvalidParameterError{Message: "item must carry a non-empty id"}
	}

	existingOps, err := sc.q.GetOperationsForTable(ctx, table, &itemID)
	if err != nil {
		return nil, err
	}
	var existing *model.Operation
	if len(existingOps) > 0 {
		existing = existingOps[0]
	}

	caction := model.Decide(existing, action)
	if caction == model.NotSupported {
		return nil, &InvalidActionError{TableName: table, ItemID: itemID, Action: action}
	}

	var preDelete model.Item
	var resultItem model.Item
	switch action {
	case model.Insert, model.Update:
		if err := sc.ds.Upsert(ctx, table, []model.Item{item}); err != nil {
			return nil, err
		}
		resultItem = item
	case model.Delete:
		if snap, ok, err := sc.ds.Read(ctx, table, itemID); err != nil {
			return nil, err
		} else if ok {
			preDelete = snap
		}
		if err := sc.ds.Delete(ctx, table, []string{itemID}); err != nil {
			return nil, err
		}
	}

	switch caction {
	case model.AddNew:
		op := &model.Operation{TableName: table, ItemID: itemID, Type: action}
		if action == model.Delete {
			op.Item = preDelete
		}
		if err := sc.q.Add(ctx, op); err != nil {
			sc.log.Error().Err(err).Str("table", table).Str("itemId", itemID).
				Msg("store and queue diverged adding operation")
			return resultItem, &StoreInconsistentError{TableName: table, ItemID: itemID, Cause: err}
		}
	case model.Keep:
		// local store already updated above; queue entry stands as-is.
	case model.ToDelete:
		existing.Type = model.Delete
		existing.Version++
		existing.Item = preDelete
		if err := sc.q.Update(ctx, existing); err != nil {
			sc.log.Error().Err(err).Str("table", table).Str("itemId", itemID).
				Msg("store and queue diverged updating operation to delete")
			return resultItem, &StoreInconsistentError{TableName: table, ItemID: itemID, Cause: err}
		}
	case model.ToDeleteAsDiscard:
		if err := sc.q.Remove(ctx, existing); err != nil {
			sc.log.Error().Err(err).Str("table", table).Str("itemId", itemID).
				Msg("store and queue diverged discarding operation")
			return resultItem, &StoreInconsistentError{TableName: table, ItemID: itemID, Cause: err}
		}
	}

	return resultItem, nil
}

// Insert records a local insert, assigning a fresh UUID-v4 id when item
// lacks one, and delivers completion on the callback executor.
func (sc *SyncContext) Insert(ctx context.Context, table string, item model.Item, completion func(model.Item, error)) {
	sc.submitMutation(ctx, table, item, model.Insert, completion)
}

// Update records a local update.
func (sc *SyncContext) Update(ctx context.Context, table string, item model.Item, completion func(model.Item, error)) {
	sc.submitMutation(ctx, table, item, model.Update, completion)
}

// Delete records a local delete.
func (sc *SyncContext) Delete(ctx context.Context, table string, item model.Item, completion func(error)) {
	sc.submitMutation(ctx, table, item, model.Delete, func(_ model.Item, err error) {
		completion(err)
	})
}

// submitMutation enqueues the mutation onto the writer domain directly
// from the caller's goroutine, not from a spawned one: §5 guarantees two
// local mutations submitted sequentially become two queue entries in that
// order, which only holds if the enqueue itself (not just execution)
// happens in call order. A goroutine racing the channel send could let a
// later call's post win the race and land first. Local mutations are not
// cancellable (§5), so the task runs unconditionally once dequeued.
func (sc *SyncContext) submitMutation(ctx context.Context, table string, item model.Item, action model.OperationType, completion func(model.Item, error)) {
	sc.writer.post(func() {
		result, err := sc.applyLocalMutation(ctx, table, item, action)
		if completion != nil {
			sc.callbacks.submit(func() { completion(result, err) })
		}
	})
}

// applyLocalMutationSync submits applyLocalMutation to the writer domain
// and blocks until it completes; used by in-package synchronous callers
// (the tests).
func (sc *SyncContext) applyLocalMutationSync(ctx context.Context, table string, item model.Item, action model.OperationType) (model.Item, error) {
	var result model.Item
	err := sc.inWriter(ctx, func(ctx context.Context) error {
		r, err := sc.applyLocalMutation(ctx, table, item, action)
		result = r
		return err
	})
	return result, err
}
