// Package queue implements the durable, ordered operation queue: one
// pending operation per (table, itemId), strictly increasing operation
// ids, and the persistence half of condensation (the decision itself
// lives in package model).
package queue

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/erauner12/syncengine-go/internal/datasource"
	"github.com/erauner12/syncengine-go/internal/model"
)

// Queue is the durable ordered collection of pending operations, indexed by
// (table, itemId). All mutating methods are safe for concurrent use, though
// in practice the sync coordinator only ever calls them from the writer
// domain.
type Queue struct {
	ds datasource.DataSource

	mu     sync.Mutex
	nextID int64
	byKey  map[model.Key]int64 // itemID index -> operationID, mirrors persisted state
}

// New loads existing operations from ds (if any) and computes the next
// operation id as max(existing)+1, so ids stay strictly increasing across
// process restarts.
func New(ctx context.Context, ds datasource.DataSource) (*Queue, error) {
	q := &Queue{ds: ds, byKey: make(map[model.Key]int64)}

	res, err := ds.ReadByQuery(ctx, datasource.Query{TableName: datasource.OperationTableName})
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}

	var maxID int64
	for _, raw := range res.Items {
		op, err := itemToOperation(raw)
		if err != nil {
			continue
		}
		q.byKey[op.Key()] = op.OperationID
		if op.OperationID > maxID {
			maxID = op.OperationID
		}
	}
	q.nextID = maxID + 1
	return q, nil
}

// NextOperationID returns the id that would be assigned to the next Add
// call, without consuming it.
func (q *Queue) NextOperationID() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.nextID
}

// GetOperationsForTable returns the pending operation for (table, *itemID)
// if itemID is non-nil, or every pending operation for table in enqueue
// order otherwise.
func (q *Queue) GetOperationsForTable(ctx context.Context, table string, itemID *string) ([]*model.Operation, error) {
	res, err := q.ds.ReadByQuery(ctx, datasource.Query{TableName: datasource.OperationTableName})
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}

	var out []*model.Operation
	for _, raw := range res.Items {
		op, err := itemToOperation(raw)
		if err != nil {
			continue
		}
		if op.TableName != table {
			continue
		}
		if itemID != nil && op.ItemID != *itemID {
			continue
		}
		out = append(out, op)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].OperationID < out[j].OperationID })

	if itemID != nil && len(out) > 1 {
		// Invariant 1: at most one pending op per (table, itemId). If
		// storage somehow disagrees, the most recently enqueued wins.
		out = out[len(out)-1:]
	}
	return out, nil
}

// Add allocates the next operation id, assigns it to op, and persists it.
// It fails with ConflictError if a pending operation already exists for
// (op.TableName, op.ItemID).
func (q *Queue) Add(ctx context.Context, op *model.Operation) error {
	q.mu.Lock()
	key := op.Key()
	if _, exists := q.byKey[key]; exists {
		q.mu.Unlock()
		return &ConflictError{TableName: op.TableName, ItemID: op.ItemID}
	}
	op.OperationID = q.nextID
	q.nextID++
	q.mu.Unlock()

	if err := q.ds.Upsert(ctx, datasource.OperationTableName, []model.Item{operationToItem(op)}); err != nil {
		q.mu.Lock()
		delete(q.byKey, key)
		q.mu.Unlock()
		return &UnavailableError{Err: err}
	}

	q.mu.Lock()
	q.byKey[key] = op.OperationID
	q.mu.Unlock()
	return nil
}

// Update rewrites the stored form of an already-persisted operation, used
// after condensation (ToDelete) rewrites its type in place.
func (q *Queue) Update(ctx context.Context, op *model.Operation) error {
	if err := q.ds.Upsert(ctx, datasource.OperationTableName, []model.Item{operationToItem(op)}); err != nil {
		return &UnavailableError{Err: err}
	}
	return nil
}

// Remove idempotently deletes an operation by OperationID; any recorded
// per-op error is removed along with it since it lives on the same row.
func (q *Queue) Remove(ctx context.Context, op *model.Operation) error {
	id := strconv.FormatInt(op.OperationID, 10)
	if err := q.ds.Delete(ctx, datasource.OperationTableName, []string{id}); err != nil {
		return &UnavailableError{Err: err}
	}
	q.mu.Lock()
	if q.byKey[op.Key()] == op.OperationID {
		delete(q.byKey, op.Key())
	}
	q.mu.Unlock()
	return nil
}

// Count returns the number of pending operations across every table.
func (q *Queue) Count(ctx context.Context) (int, error) {
	res, err := q.ds.ReadByQuery(ctx, datasource.Query{TableName: datasource.OperationTableName})
	if err != nil {
		return 0, &UnavailableError{Err: err}
	}
	return len(res.Items), nil
}

// All returns every pending operation across every table, in operationId
// (enqueue) order. Used by PushRunner to snapshot the queue.
func (q *Queue) All(ctx context.Context) ([]*model.Operation, error) {
	res, err := q.ds.ReadByQuery(ctx, datasource.Query{TableName: datasource.OperationTableName})
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	var out []*model.Operation
	for _, raw := range res.Items {
		op, err := itemToOperation(raw)
		if err != nil {
			continue
		}
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OperationID < out[j].OperationID })
	return out, nil
}
