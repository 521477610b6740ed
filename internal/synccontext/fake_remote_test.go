package synccontext

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/erauner12/syncengine-go/internal/datasource"
	"github.com/erauner12/syncengine-go/internal/itemmeta"
	"github.com/erauner12/syncengine-go/internal/model"
	"github.com/erauner12/syncengine-go/internal/remote"
)

// fakeRemote is a minimal in-process RemoteClient standing in for
// synctest.Server in unit tests that don't need a real HTTP round trip. It
// implements the same version/updatedAt/deleted bump-on-write semantics as
// the wire protocol.
type fakeRemote struct {
	mu     sync.Mutex
	tables map[string]map[string]model.Item
	calls  []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{tables: make(map[string]map[string]model.Item)}
}

func (f *fakeRemote) table(name string) map[string]model.Item {
	t, ok := f.tables[name]
	if !ok {
		t = make(map[string]model.Item)
		f.tables[name] = t
	}
	return t
}

func (f *fakeRemote) TableInsert(ctx context.Context, tableName string, item model.Item, _ remote.Features) (model.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "insert:"+tableName+":"+item.ID())

	out := item.Clone()
	out[itemmeta.FieldVersion] = 1
	out[itemmeta.FieldUpdatedAt] = itemmeta.FormatISO(time.Now())
	out[itemmeta.FieldCreatedAt] = out[itemmeta.FieldUpdatedAt]
	out[itemmeta.FieldDeleted] = false
	f.table(tableName)[item.ID()] = out
	return out.Clone(), nil
}

func (f *fakeRemote) TableUpdate(ctx context.Context, tableName string, item model.Item, _ remote.Features) (model.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "update:"+tableName+":"+item.ID())

	t := f.table(tableName)
	current, ok := t[item.ID()]
	if ok {
		clientVersion := itemmeta.Version(item)
		serverVersion := itemmeta.Version(current)
		if clientVersion != 0 && clientVersion != serverVersion {
			return nil, &remote.ConflictError{ServerVersion: serverVersion, ServerItem: current}
		}
	}

	out := item.Clone()
	out[itemmeta.FieldVersion] = itemmeta.Version(current) + 1
	out[itemmeta.FieldUpdatedAt] = itemmeta.FormatISO(time.Now())
	out[itemmeta.FieldDeleted] = false
	t[item.ID()] = out
	return out.Clone(), nil
}

func (f *fakeRemote) TableDelete(ctx context.Context, tableName string, item model.Item, _ remote.Features) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete:"+tableName+":"+item.ID())

	t := f.table(tableName)
	current, ok := t[item.ID()]
	if !ok {
		current = item.Clone()
	}
	current[itemmeta.FieldDeleted] = true
	current[itemmeta.FieldVersion] = itemmeta.Version(current) + 1
	current[itemmeta.FieldUpdatedAt] = itemmeta.FormatISO(time.Now())
	t[item.ID()] = current
	return nil
}

func (f *fakeRemote) TableRead(ctx context.Context, q datasource.Query, _ remote.Features) (remote.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := f.tables[q.TableName]
	items := make([]model.Item, 0, len(t))
	for _, it := range t {
		items = append(items, it.Clone())
	}

	if gte, ok := q.Parameters["updatedAtGte"]; ok {
		threshold, err := itemmeta.ParseISO(gte)
		if err == nil {
			filtered := items[:0]
			for _, it := range items {
				ts, ok := itemmeta.UpdatedAt(it)
				if ok && !ts.Before(threshold) {
					filtered = append(filtered, it)
				}
			}
			items = filtered
		}
	}

	sort.Slice(items, func(i, j int) bool {
		ti, _ := itemmeta.UpdatedAt(items[i])
		tj, _ := itemmeta.UpdatedAt(items[j])
		if ti.Equal(tj) {
			return items[i].ID() < items[j].ID()
		}
		return ti.Before(tj)
	})

	start := q.FetchOffset
	if start > len(items) {
		start = len(items)
	}
	end := len(items)
	if q.Top > 0 && start+q.Top < end {
		end = start + q.Top
	}
	return remote.Page{Items: items[start:end]}, nil
}
