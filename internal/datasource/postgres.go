package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erauner12/syncengine-go/internal/db"
	"github.com/erauner12/syncengine-go/internal/itemmeta"
	"github.com/erauner12/syncengine-go/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a pgx-pool-backed DataSource. Every table the engine writes —
// application tables, the operation queue, and the config table — lives in
// one physical `sync_rows` table, keyed by (table_name, item_id), rather
// than one physical table per logical table name.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool via db.Open and ensures the backing
// schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := db.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}

	p := &Postgres{pool: pool}
	if err := p.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sync_rows (
			table_name  TEXT NOT NULL,
			item_id     TEXT NOT NULL,
			payload_json JSONB NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted     BOOLEAN NOT NULL DEFAULT false,
			PRIMARY KEY (table_name, item_id)
		)
	`)
	return err
}

// Close releases the underlying pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Upsert(ctx context.Context, tableName string, items []model.Item) error {
	for _, it := range items {
		id := it.ID()
		if id == "" {
			return Wrap("upsert", errMissingID)
		}
		payload, err := json.Marshal(it)
		if err != nil {
			return Wrap("upsert", err)
		}
		updatedAt := time.Now()
		if ts, ok := itemmeta.UpdatedAt(it); ok {
			updatedAt = ts
		}
		_, err = p.pool.Exec(ctx, `
			INSERT INTO sync_rows (table_name, item_id, payload_json, updated_at, deleted)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (table_name, item_id) DO UPDATE SET
				payload_json = EXCLUDED.payload_json,
				updated_at   = EXCLUDED.updated_at,
				deleted      = EXCLUDED.deleted
		`, tableName, id, payload, updatedAt, itemmeta.Deleted(it))
		if err != nil {
			return Wrap("upsert", err)
		}
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, tableName string, ids []string) error {
	_, err := p.pool.Exec(ctx, `
		DELETE FROM sync_rows WHERE table_name = $1 AND item_id = ANY($2)
	`, tableName, ids)
	return Wrap("delete", err)
}

func (p *Postgres) DeleteByQuery(ctx context.Context, q Query) error {
	rows, err := p.pool.Query(ctx, `
		SELECT item_id, payload_json FROM sync_rows WHERE table_name = $1
	`, q.TableName)
	if err != nil {
		return Wrap("deleteByQuery", err)
	}
	var toDelete []string
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return Wrap("deleteByQuery", err)
		}
		if q.Predicate != nil {
			var it model.Item
			if err := json.Unmarshal(raw, &it); err != nil {
				continue
			}
			if !q.Predicate(it) {
				continue
			}
		}
		toDelete = append(toDelete, id)
	}
	rows.Close()
	if rows.Err() != nil {
		return Wrap("deleteByQuery", rows.Err())
	}
	if len(toDelete) == 0 {
		return nil
	}
	return p.Delete(ctx, q.TableName, toDelete)
}

func (p *Postgres) Read(ctx context.Context, tableName, itemID string) (model.Item, bool, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx, `
		SELECT payload_json FROM sync_rows WHERE table_name = $1 AND item_id = $2
	`, tableName, itemID).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, Wrap("read", err)
	}
	var it model.Item
	if err := json.Unmarshal(raw, &it); err != nil {
		return nil, false, Wrap("read", err)
	}
	return it, true, nil
}

func (p *Postgres) ReadByQuery(ctx context.Context, q Query) (ReadResult, error) {
	dir := "ASC"
	if q.OrderDesc {
		dir = "DESC"
	}

	// updated_at is the only queryable column sync_rows stores outside the
	// JSON payload (Upsert fills it from the item's __updatedAt, or the write
	// time when that is absent), so it's the sort key regardless of q.OrderBy (the
	// engine only ever orders pulls by __updatedAt). item_id is always the
	// secondary key, matching Memory.sortItems: rows sharing one updated_at
	// value still come out in a stable, repeatable order, so a page
	// boundary landing mid-tie never skips or re-serves rows across
	// successive paged reads.
	sqlText := fmt.Sprintf(`
		SELECT payload_json FROM sync_rows WHERE table_name = $1
		ORDER BY updated_at %s, item_id ASC
	`, dir)

	rows, err := p.pool.Query(ctx, sqlText, q.TableName)
	if err != nil {
		return ReadResult{}, Wrap("readByQuery", err)
	}
	defer rows.Close()

	var all []model.Item
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return ReadResult{}, Wrap("readByQuery", err)
		}
		var it model.Item
		if err := json.Unmarshal(raw, &it); err != nil {
			return ReadResult{}, Wrap("readByQuery", err)
		}
		if q.Predicate == nil || q.Predicate(it) {
			all = append(all, it)
		}
	}
	if rows.Err() != nil {
		return ReadResult{}, Wrap("readByQuery", rows.Err())
	}

	total := len(all)
	start := q.FetchOffset
	if start > len(all) {
		start = len(all)
	}
	end := len(all)
	if q.Top > 0 && start+q.Top < end {
		end = start + q.Top
	}

	result := ReadResult{Items: all[start:end]}
	if q.IncludeTotalCount {
		result.TotalCount = total
	}
	return result, nil
}

func (p *Postgres) SystemPropertiesForTable(tableName string) itemmeta.SystemPropertySet {
	return itemmeta.DefaultSet().WithUpdatedAt().WithDeleted()
}
