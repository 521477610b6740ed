package synccontext

import (
	"context"

	"github.com/erauner12/syncengine-go/internal/datasource"
	"github.com/erauner12/syncengine-go/internal/model"
)

// PurgeRequest names what to purge: the rows of Query.TableName matching
// Query.Predicate, or the whole table when the predicate is nil. QueryID
// only selects which delta token to drop.
type PurgeRequest struct {
	Query   datasource.Query // nil Predicate means "entire table"
	QueryID string           // "" means no delta token to drop
	Force   bool
}

// Purge deletes local rows matching req.Query, dropping the associated
// delta token first. If the table has pending operations it proceeds only
// when Force is set and the query has no predicate (the pending operations
// are then removed); otherwise it fails with PurgeAbortedError.
// Runs entirely in the writer domain.
func (sc *SyncContext) Purge(ctx context.Context, req PurgeRequest, completion func(error)) {
	go func() {
		err := sc.inWriter(ctx, func(ctx context.Context) error {
			return sc.runPurge(ctx, req)
		})
		if completion != nil {
			sc.callbacks.submit(func() { completion(err) })
		}
	}()
}

func (sc *SyncContext) runPurge(ctx context.Context, req PurgeRequest) error {
	table := req.Query.TableName

	if req.QueryID != "" {
		ids := []string{
			model.DeltaTokenID(table, req.QueryID),
			model.DeltaTokenOffsetID(table, req.QueryID),
		}
		if err := sc.ds.Delete(ctx, datasource.ConfigTableName, ids); err != nil {
			return err
		}
	}

	pending, err := sc.q.GetOperationsForTable(ctx, table, nil)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		if req.Query.Predicate != nil || !req.Force {
			sc.log.Warn().Str("table", table).Int("pending", len(pending)).
				Msg("purge aborted, pending operations block an unforced or filtered purge")
			return &PurgeAbortedError{TableName: table}
		}
		for _, op := range pending {
			if err := sc.q.Remove(ctx, op); err != nil {
				sc.log.Error().Err(err).Str("table", table).Str("itemId", op.ItemID).
					Msg("failed to remove pending operation during forced purge")
				return err
			}
		}
	}

	return sc.ds.DeleteByQuery(ctx, req.Query)
}
