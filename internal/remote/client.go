// Package remote defines the RemoteClient interface the core pull/push
// runners consume and ships an authenticated, retrying HTTP implementation
// of it.
package remote

import (
	"context"

	"github.com/erauner12/syncengine-go/internal/datasource"
	"github.com/erauner12/syncengine-go/internal/model"
)

// Features carries opaque per-call request metadata (e.g. client feature
// flags); the core never interprets its contents.
type Features map[string]string

// Page is the result of a TableRead call: the matched items plus whatever
// pagination state the caller needs to fetch the next page.
type Page struct {
	Items      []model.Item
	TotalCount int
}

// RemoteClient is the interface for server-side table CRUD and query,
// consumed by PushRunner and PullRunner. Implementations translate their
// transport's failures into the typed errors in errors.go so the runners'
// result dispatch can classify them into abort-the-push vs. per-op.
type RemoteClient interface {
	TableInsert(ctx context.Context, tableName string, item model.Item, features Features) (model.Item, error)
	TableUpdate(ctx context.Context, tableName string, item model.Item, features Features) (model.Item, error)
	TableDelete(ctx context.Context, tableName string, item model.Item, features Features) error
	TableRead(ctx context.Context, q datasource.Query, features Features) (Page, error)
}
