package datasource

import (
	"context"
	"testing"

	"github.com/erauner12/syncengine-go/internal/model"
)

func TestMemoryUpsertReadDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.Upsert(ctx, "todo", []model.Item{{"id": "a", "text": "hi"}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	item, ok, err := m.Read(ctx, "todo", "a")
	if err != nil || !ok {
		t.Fatalf("expected item a, err=%v ok=%v", err, ok)
	}
	if item["text"] != "hi" {
		t.Errorf("unexpected item: %v", item)
	}

	if err := m.Delete(ctx, "todo", []string{"a"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, ok, err = m.Read(ctx, "todo", "a")
	if err != nil || ok {
		t.Fatalf("expected item gone, ok=%v err=%v", ok, err)
	}
}

func TestMemoryUpsertRejectsMissingID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Upsert(ctx, "todo", []model.Item{{"text": "no id"}}); err == nil {
		t.Error("expected error for missing id")
	}
}

func TestMemoryReadByQueryPaginatesAndOrders(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, it := range []model.Item{
		{"id": "1", "__updatedAt": "2024-01-01T00:00:00Z"},
		{"id": "2", "__updatedAt": "2024-01-02T00:00:00Z"},
		{"id": "3", "__updatedAt": "2024-01-03T00:00:00Z"},
	} {
		if err := m.Upsert(ctx, "todo", []model.Item{it}); err != nil {
			t.Fatal(err)
		}
	}

	res, err := m.ReadByQuery(ctx, Query{TableName: "todo", OrderBy: "__updatedAt", Top: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 2 || res.Items[0]["id"] != "1" || res.Items[1]["id"] != "2" {
		t.Errorf("unexpected page: %+v", res.Items)
	}

	res2, err := m.ReadByQuery(ctx, Query{TableName: "todo", OrderBy: "__updatedAt", Top: 2, FetchOffset: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(res2.Items) != 1 || res2.Items[0]["id"] != "3" {
		t.Errorf("unexpected second page: %+v", res2.Items)
	}
}

func TestMemoryReadByQueryBreaksTimestampTiesByID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, id := range []string{"c", "a", "b"} {
		if err := m.Upsert(ctx, "todo", []model.Item{{"id": id, "__updatedAt": "2024-01-01T00:00:00Z"}}); err != nil {
			t.Fatal(err)
		}
	}

	first, err := m.ReadByQuery(ctx, Query{TableName: "todo", OrderBy: "__updatedAt", Top: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Items) != 2 || first.Items[0]["id"] != "a" || first.Items[1]["id"] != "b" {
		t.Fatalf("expected id tie-break to order [a b] first, got %+v", first.Items)
	}

	second, err := m.ReadByQuery(ctx, Query{TableName: "todo", OrderBy: "__updatedAt", Top: 2, FetchOffset: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Items) != 1 || second.Items[0]["id"] != "c" {
		t.Fatalf("expected second page to be [c], got %+v", second.Items)
	}
}

func TestMemoryDeleteByQuery(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, id := range []string{"a", "b", "c"} {
		if err := m.Upsert(ctx, "todo", []model.Item{{"id": id}}); err != nil {
			t.Fatal(err)
		}
	}
	err := m.DeleteByQuery(ctx, Query{TableName: "todo", Predicate: func(it model.Item) bool {
		return it["id"] == "b"
	}})
	if err != nil {
		t.Fatal(err)
	}
	res, _ := m.ReadByQuery(ctx, Query{TableName: "todo"})
	if len(res.Items) != 2 {
		t.Errorf("expected 2 remaining, got %d", len(res.Items))
	}
}
