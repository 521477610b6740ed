package datasource

import (
	"context"
	"sort"
	"sync"

	"github.com/erauner12/syncengine-go/internal/itemmeta"
	"github.com/erauner12/syncengine-go/internal/model"
)

// Memory is an in-process DataSource backed by a mutex-guarded map of
// tables: one lock, one map per table, clone-on-read/write. It is the
// default for tests and for embedders that don't need durability across
// process restarts.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]map[string]model.Item
}

// NewMemory returns an empty in-memory data source.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]map[string]model.Item)}
}

func (m *Memory) tableLocked(name string) map[string]model.Item {
	t, ok := m.tables[name]
	if !ok {
		t = make(map[string]model.Item)
		m.tables[name] = t
	}
	return t
}

func (m *Memory) Upsert(ctx context.Context, tableName string, items []model.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tableLocked(tableName)
	for _, it := range items {
		id := it.ID()
		if id == "" {
			return Wrap("upsert", errMissingID)
		}
		t[id] = it.Clone()
	}
	return nil
}

func (m *Memory) Delete(ctx context.Context, tableName string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tableLocked(tableName)
	for _, id := range ids {
		delete(t, id)
	}
	return nil
}

func (m *Memory) DeleteByQuery(ctx context.Context, q Query) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tableLocked(q.TableName)
	for id, item := range t {
		if q.Predicate == nil || q.Predicate(item) {
			delete(t, id)
		}
	}
	return nil
}

func (m *Memory) Read(ctx context.Context, tableName, itemID string) (model.Item, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[tableName]
	if !ok {
		return nil, false, nil
	}
	it, ok := t[itemID]
	if !ok {
		return nil, false, nil
	}
	return it.Clone(), true, nil
}

func (m *Memory) ReadByQuery(ctx context.Context, q Query) (ReadResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t := m.tables[q.TableName]

	matched := make([]model.Item, 0, len(t))
	for _, item := range t {
		if q.Predicate == nil || q.Predicate(item) {
			matched = append(matched, item.Clone())
		}
	}

	sortItems(matched, q.OrderBy, q.OrderDesc)

	total := len(matched)

	start := q.FetchOffset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if q.Top > 0 && start+q.Top < end {
		end = start + q.Top
	}

	result := ReadResult{Items: matched[start:end]}
	if q.IncludeTotalCount {
		result.TotalCount = total
	}
	return result, nil
}

func (m *Memory) SystemPropertiesForTable(tableName string) itemmeta.SystemPropertySet {
	return itemmeta.DefaultSet().WithUpdatedAt().WithDeleted()
}

// sortItems orders items by orderBy, breaking ties on item id (ascending)
// so that rows sharing one orderBy value (e.g. the same __updatedAt
// timestamp) still come out in a stable, repeatable order. Without this,
// a page boundary landing in the middle of a tied group could skip or
// re-serve rows across successive paged reads.
func sortItems(items []model.Item, orderBy string, desc bool) {
	if orderBy == "" {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		c := compareField(items[i], items[j], orderBy)
		if c == 0 {
			return items[i].ID() < items[j].ID()
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

// compareField returns -1/0/1 comparing a and b's orderBy field. Missing or
// differently-typed values compare equal, deferring to the id tie-break.
func compareField(a, b model.Item, field string) int {
	av, aok := a[field]
	bv, bok := b[field]
	if !aok || !bok {
		return 0
	}
	if as, aIsStr := av.(string); aIsStr {
		if bs, bIsStr := bv.(string); bIsStr {
			switch {
			case as < bs:
				return -1
			case as > bs:
				return 1
			default:
				return 0
			}
		}
	}
	if af, aIsF := av.(float64); aIsF {
		if bf, bIsF := bv.(float64); bIsF {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	return 0
}

type memError string

func (e memError) Error() string { return string(e) }

const errMissingID = memError("item missing id field")
