package synccontext

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/erauner12/syncengine-go/internal/datasource"
	"github.com/erauner12/syncengine-go/internal/itemmeta"
	"github.com/erauner12/syncengine-go/internal/model"
	"github.com/erauner12/syncengine-go/internal/remote"
)

// PullRequest names the remote query and, optionally, the incremental
// stream it belongs to.
type PullRequest struct {
	Query   datasource.Query
	QueryID string // "" means no incremental tracking
}

// Pull runs pre-flight validation, then pre-pull pushdown, then either
// incremental or plain paging. It returns immediately with a Handle;
// completion is delivered on the callback executor.
func (sc *SyncContext) Pull(ctx context.Context, req PullRequest, completion func(error)) *Handle {
	lctx, cancel := context.WithCancel(ctx)
	sc.lane.post(func() {
		err := sc.runPull(lctx, req)
		if completion != nil {
			sc.callbacks.submit(func() { completion(err) })
		}
	})
	return &Handle{cancel: cancel}
}

func validatePullRequest(req PullRequest) error {
	q := req.Query
	if len(q.SelectFields) > 0 {
		return &InvalidParameterError{Message: "selectFields must be empty for pull"}
	}
	if q.IncludeTotalCount {
		return &InvalidParameterError{Message: "includeTotalCount must be false for pull"}
	}
	if req.QueryID != "" && (q.OrderBy != "" || q.FetchOffset != 0) {
		return &InvalidParameterError{Message: "queryId cannot be combined with explicit ordering or fetch offset"}
	}
	if !validQueryID(req.QueryID) {
		return &InvalidParameterError{Message: "queryId fails grammar ^[A-Za-z][A-Za-z0-9_-]{0,24}$"}
	}
	for k, v := range q.Parameters {
		if strings.EqualFold(k, "__systemProperties") {
			return &InvalidParameterError{Message: "__systemProperties is forbidden in pull query parameters"}
		}
		if strings.EqualFold(k, "__includeDeleted") && v == "false" {
			return &InvalidParameterError{Message: "__includeDeleted=false is forbidden for pull"}
		}
	}
	return nil
}

func (sc *SyncContext) runPull(ctx context.Context, req PullRequest) error {
	if err := validatePullRequest(req); err != nil {
		return err
	}
	if sc.rc == nil {
		return &PullAbortedError{Cause: &remote.TransportError{Err: errMissingRemoteClient}}
	}

	q := req.Query.Clone()
	if q.Parameters == nil {
		q.Parameters = make(map[string]string)
	}
	q.Parameters["__includeDeleted"] = "true"

	table := q.TableName
	incremental := req.QueryID != ""

	if err := sc.pushdownPendingOps(ctx, table); err != nil {
		sc.log.Error().Err(err).Str("table", table).Msg("pre-pull pushdown failed, aborting pull")
		return &PullAbortedError{Cause: err}
	}

	if incremental {
		return sc.runIncrementalPull(ctx, table, req.QueryID, q)
	}
	return sc.runPlainPull(ctx, table, q)
}

// pushdownPendingOps pushes first if the table is dirty, then rechecks,
// since condensed writes may land while the push is in flight.
func (sc *SyncContext) pushdownPendingOps(ctx context.Context, table string) error {
	for {
		before, err := sc.q.GetOperationsForTable(ctx, table, nil)
		if err != nil {
			return err
		}
		if len(before) == 0 {
			return nil
		}
		if err := sc.runPush(ctx); err != nil {
			return err
		}
		after, err := sc.q.GetOperationsForTable(ctx, table, nil)
		if err != nil {
			return err
		}
		if len(after) == 0 || len(after) == len(before) {
			// Either fully drained, or the push made no progress (every
			// remaining op is a recorded per-op conflict/validation error).
			// Proceeding here trades strict re-looping for forward progress;
			// see DESIGN.md.
			return nil
		}
	}
}

func (sc *SyncContext) runPlainPull(ctx context.Context, table string, q datasource.Query) error {
	pageSize := q.Top
	if pageSize <= 0 {
		pageSize = sc.defaultPageSize
	}
	offset := q.FetchOffset

	for {
		if ctx.Err() != nil {
			return &PullCancelledError{}
		}
		pageQuery := q
		pageQuery.Top = pageSize
		pageQuery.FetchOffset = offset

		page, err := sc.rc.TableRead(ctx, pageQuery, nil)
		if err != nil {
			sc.log.Error().Err(err).Str("table", table).Msg("plain pull page read failed, aborting pull")
			return &PullAbortedError{Cause: err}
		}
		if len(page.Items) == 0 {
			return nil
		}
		if err := sc.mergePage(ctx, table, page.Items); err != nil {
			sc.log.Error().Err(err).Str("table", table).Msg("plain pull page merge failed, aborting pull")
			return &PullAbortedError{Cause: err}
		}
		offset += len(page.Items)
	}
}

func (sc *SyncContext) runIncrementalPull(ctx context.Context, table, queryID string, q datasource.Query) error {
	deltaToken, recordsProcessed, err := sc.loadDeltaState(ctx, table, queryID)
	if err != nil {
		sc.log.Error().Err(err).Str("table", table).Str("queryId", queryID).Msg("failed to load delta token, aborting pull")
		return &PullAbortedError{Cause: err}
	}

	pageSize := q.Top
	if pageSize <= 0 {
		pageSize = sc.defaultPageSize
	}
	// offset counts only records already ingested at the CURRENT boundary
	// timestamp (recordsProcessed), not an absolute page cursor: the
	// predicate below is inclusive (>= deltaToken), so re-requesting from
	// this offset resumes exactly where the last page covering this
	// boundary left off, whether that page was read in this call or a
	// previous one.
	offset := recordsProcessed

	for {
		if ctx.Err() != nil {
			return &PullCancelledError{}
		}

		pageQuery := q
		pageQuery.OrderBy = itemmeta.FieldUpdatedAt
		pageQuery.OrderDesc = false
		pageQuery.Top = pageSize
		pageQuery.FetchOffset = offset
		pageQuery.Parameters = cloneParams(q.Parameters)
		// Inclusive, not strictly greater-than: rows exactly at the
		// high-water mark may not all fit on the page that advanced the
		// token to that mark, so later pages must still be able to see
		// them. recordsProcessed (persisted alongside the token) tracks
		// how many of those boundary rows are already ingested so this
		// predicate doesn't re-serve them forever (see DESIGN.md).
		pageQuery.Parameters["updatedAtGte"] = itemmeta.FormatISO(deltaToken)

		page, err := sc.rc.TableRead(ctx, pageQuery, nil)
		if err != nil {
			sc.log.Error().Err(err).Str("table", table).Str("queryId", queryID).Msg("incremental pull page read failed, aborting pull")
			return &PullAbortedError{Cause: err}
		}
		if len(page.Items) == 0 {
			return nil
		}

		maxUpdated := deltaToken
		for _, it := range page.Items {
			if ts, ok := itemmeta.UpdatedAt(it); ok && ts.After(maxUpdated) {
				maxUpdated = ts
			}
		}

		if err := sc.mergePage(ctx, table, page.Items); err != nil {
			sc.log.Error().Err(err).Str("table", table).Str("queryId", queryID).Msg("incremental pull page merge failed, aborting pull")
			return &PullAbortedError{Cause: err}
		}

		if maxUpdated.After(deltaToken) {
			// The boundary moved: recordsProcessed resets to just the rows
			// in this page that sit exactly at the new boundary, since
			// rows strictly before it are covered by the inclusive
			// predicate advancing past them.
			atBoundary := 0
			for _, it := range page.Items {
				if ts, ok := itemmeta.UpdatedAt(it); ok && ts.Equal(maxUpdated) {
					atBoundary++
				}
			}
			deltaToken = maxUpdated
			recordsProcessed = atBoundary
		} else {
			recordsProcessed += len(page.Items)
		}
		if err := sc.saveDeltaState(ctx, table, queryID, deltaToken, recordsProcessed); err != nil {
			sc.log.Error().Err(err).Str("table", table).Str("queryId", queryID).Msg("failed to save delta token, aborting pull")
			return &PullAbortedError{Cause: err}
		}
		offset = recordsProcessed
	}
}

// mergePage merges one page of pulled items into the local store: items
// with a pending local op are discarded so an in-flight local edit is never
// clobbered by a stale server copy, and the remainder is partitioned by
// __deleted and applied. Runs in the writer domain.
func (sc *SyncContext) mergePage(ctx context.Context, table string, items []model.Item) error {
	return sc.inWriter(ctx, func(ctx context.Context) error {
		var toUpsert []model.Item
		var toDeleteIDs []string

		for _, it := range items {
			id := it.ID()
			pending, err := sc.q.GetOperationsForTable(ctx, table, &id)
			if err != nil {
				return err
			}
			if len(pending) > 0 {
				continue
			}
			if itemmeta.Deleted(it) {
				toDeleteIDs = append(toDeleteIDs, id)
			} else {
				toUpsert = append(toUpsert, it)
			}
		}

		if len(toDeleteIDs) > 0 {
			if err := sc.ds.Delete(ctx, table, toDeleteIDs); err != nil {
				return err
			}
		}
		if len(toUpsert) > 0 {
			if err := sc.ds.Upsert(ctx, table, toUpsert); err != nil {
				return err
			}
		}
		return nil
	})
}

// loadDeltaToken returns just the delta-token timestamp, for callers (and
// tests) that don't need the boundary offset alongside it.
func (sc *SyncContext) loadDeltaToken(ctx context.Context, table, queryID string) (time.Time, error) {
	token, _, err := sc.loadDeltaState(ctx, table, queryID)
	return token, err
}

// loadDeltaState returns the delta token and how many records at that
// token's own __updatedAt boundary have already been ingested, defaulting
// to (epoch, 0) when neither has been persisted yet.
func (sc *SyncContext) loadDeltaState(ctx context.Context, table, queryID string) (time.Time, int, error) {
	tokenID := model.DeltaTokenID(table, queryID)
	offsetID := model.DeltaTokenOffsetID(table, queryID)
	var token time.Time
	var recordsProcessed int
	err := sc.inWriter(ctx, func(ctx context.Context) error {
		token = itemmeta.Epoch()
		if it, ok, err := sc.ds.Read(ctx, datasource.ConfigTableName, tokenID); err != nil {
			return err
		} else if ok {
			if cv, err := model.ConfigValueFromItem(it); err == nil {
				if parsed, err := itemmeta.ParseISO(cv.Value); err == nil {
					token = parsed
				}
			}
		}

		recordsProcessed = 0
		if it, ok, err := sc.ds.Read(ctx, datasource.ConfigTableName, offsetID); err != nil {
			return err
		} else if ok {
			if cv, err := model.ConfigValueFromItem(it); err == nil {
				if n, err := strconv.Atoi(cv.Value); err == nil {
					recordsProcessed = n
				}
			}
		}
		return nil
	})
	return token, recordsProcessed, err
}

// saveDeltaState persists the delta token and its boundary offset together
// so a later pull call resumes from exactly the same position rather than
// re-requesting (or permanently skipping) rows tied at the token's
// timestamp.
func (sc *SyncContext) saveDeltaState(ctx context.Context, table, queryID string, t time.Time, recordsProcessed int) error {
	tokenCV := model.NewDeltaTokenConfig(table, queryID, itemmeta.FormatISO(t))
	offsetCV := model.NewDeltaTokenOffsetConfig(table, queryID, recordsProcessed)
	return sc.inWriter(ctx, func(ctx context.Context) error {
		return sc.ds.Upsert(ctx, datasource.ConfigTableName, []model.Item{tokenCV.ToItem(), offsetCV.ToItem()})
	})
}

func cloneParams(m map[string]string) map[string]string {
	out := make(map[string]string, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
