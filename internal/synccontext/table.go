package synccontext

import (
	"context"

	"github.com/erauner12/syncengine-go/internal/datasource"
	"github.com/erauner12/syncengine-go/internal/model"
)

// Table is the thin, per-table-name handle applications hold; it forwards
// mutations to its owning SyncContext and passes reads straight through to
// the local store.
type Table struct {
	sc   *SyncContext
	name string
}

// Table returns a handle bound to tableName. SyncContext itself never
// tracks which tables exist; every call just threads the table name through.
func (sc *SyncContext) Table(tableName string) *Table {
	return &Table{sc: sc, name: tableName}
}

func (t *Table) Insert(ctx context.Context, item model.Item, completion func(model.Item, error)) {
	t.sc.Insert(ctx, t.name, item, completion)
}

func (t *Table) Update(ctx context.Context, item model.Item, completion func(model.Item, error)) {
	t.sc.Update(ctx, t.name, item, completion)
}

func (t *Table) Delete(ctx context.Context, item model.Item, completion func(error)) {
	t.sc.Delete(ctx, t.name, item, completion)
}

// ReadWithID passes straight through to the local store.
func (t *Table) ReadWithID(ctx context.Context, id string) (model.Item, bool, error) {
	return t.sc.ds.Read(ctx, t.name, id)
}

// ReadWithPredicate passes straight through to the local store.
func (t *Table) ReadWithPredicate(ctx context.Context, predicate func(model.Item) bool) ([]model.Item, error) {
	res, err := t.sc.ds.ReadByQuery(ctx, datasource.Query{TableName: t.name, Predicate: predicate})
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

// ReadAll returns every row currently in the local store for this table.
func (t *Table) ReadAll(ctx context.Context) ([]model.Item, error) {
	return t.ReadWithPredicate(ctx, nil)
}

// Pull runs an incremental or plain pull against this table.
func (t *Table) Pull(ctx context.Context, query datasource.Query, queryID string, completion func(error)) *Handle {
	query.TableName = t.name
	return t.sc.Pull(ctx, PullRequest{Query: query, QueryID: queryID}, completion)
}

// Purge deletes local rows for this table.
func (t *Table) Purge(ctx context.Context, query datasource.Query, queryID string, force bool, completion func(error)) {
	query.TableName = t.name
	t.sc.Purge(ctx, PurgeRequest{Query: query, QueryID: queryID, Force: force}, completion)
}
