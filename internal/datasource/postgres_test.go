package datasource

import (
	"context"
	"os"
	"testing"

	"github.com/erauner12/syncengine-go/internal/model"
)

func getTestPostgres(t *testing.T) *Postgres {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping postgres integration tests")
	}

	p, err := OpenPostgres(context.Background(), dsn)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	t.Cleanup(p.Close)

	if _, err := p.pool.Exec(context.Background(), "DELETE FROM sync_rows"); err != nil {
		t.Fatalf("clean sync_rows: %v", err)
	}
	return p
}

func TestPostgresUpsertReadDelete(t *testing.T) {
	ctx := context.Background()
	p := getTestPostgres(t)

	if err := p.Upsert(ctx, "todo", []model.Item{{"id": "a", "text": "hi"}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	item, ok, err := p.Read(ctx, "todo", "a")
	if err != nil || !ok {
		t.Fatalf("expected item a, err=%v ok=%v", err, ok)
	}
	if item["text"] != "hi" {
		t.Errorf("unexpected item: %v", item)
	}

	if err := p.Delete(ctx, "todo", []string{"a"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, ok, err = p.Read(ctx, "todo", "a")
	if err != nil || ok {
		t.Fatalf("expected item gone, ok=%v err=%v", ok, err)
	}
}

func TestPostgresReadByQueryBreaksTimestampTiesByID(t *testing.T) {
	ctx := context.Background()
	p := getTestPostgres(t)

	for _, id := range []string{"c", "a", "b"} {
		if err := p.Upsert(ctx, "todo", []model.Item{{"id": id, "__updatedAt": "2024-01-01T00:00:00Z"}}); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}

	first, err := p.ReadByQuery(ctx, Query{TableName: "todo", OrderBy: "__updatedAt", Top: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Items) != 2 || first.Items[0]["id"] != "a" || first.Items[1]["id"] != "b" {
		t.Fatalf("expected id tie-break to order [a b] first, got %+v", first.Items)
	}

	second, err := p.ReadByQuery(ctx, Query{TableName: "todo", OrderBy: "__updatedAt", Top: 2, FetchOffset: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Items) != 1 || second.Items[0]["id"] != "c" {
		t.Fatalf("expected second page to be [c], got %+v", second.Items)
	}
}

func TestPostgresDeleteByQuery(t *testing.T) {
	ctx := context.Background()
	p := getTestPostgres(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := p.Upsert(ctx, "todo", []model.Item{{"id": id}}); err != nil {
			t.Fatal(err)
		}
	}
	err := p.DeleteByQuery(ctx, Query{TableName: "todo", Predicate: func(it model.Item) bool {
		return it["id"] == "b"
	}})
	if err != nil {
		t.Fatal(err)
	}
	res, err := p.ReadByQuery(ctx, Query{TableName: "todo"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 2 {
		t.Errorf("expected 2 remaining, got %d", len(res.Items))
	}
}
