// Package datasource defines the local-store interface the core engine
// consumes and ships two concrete adapters: an in-memory one used by unit
// tests and embedders without persistence, and a pgx-backed one for
// deployments that keep local state in Postgres.
package datasource

import (
	"context"

	"github.com/erauner12/syncengine-go/internal/itemmeta"
	"github.com/erauner12/syncengine-go/internal/model"
)

// Reserved table names identifying the operation queue and config rows.
const (
	OperationTableName = "__operations"
	ConfigTableName     = "__config"
)

// DataSource is the interface the core calls to read/write the local store
// and the config table.
type DataSource interface {
	Upsert(ctx context.Context, tableName string, items []model.Item) error
	Delete(ctx context.Context, tableName string, ids []string) error
	DeleteByQuery(ctx context.Context, q Query) error
	Read(ctx context.Context, tableName, itemID string) (model.Item, bool, error)
	ReadByQuery(ctx context.Context, q Query) (ReadResult, error)

	// SystemPropertiesForTable returns which system properties a table
	// tracks. itemmeta.DefaultSet() ({version}) is the baseline; both
	// adapters in this package return it extended with updatedAt and deleted.
	SystemPropertiesForTable(tableName string) itemmeta.SystemPropertySet
}
