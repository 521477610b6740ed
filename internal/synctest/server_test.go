package synctest

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erauner12/syncengine-go/internal/datasource"
	"github.com/erauner12/syncengine-go/internal/model"
	"github.com/erauner12/syncengine-go/internal/remote"
	"github.com/erauner12/syncengine-go/internal/synccontext"
)

func newTestServer(t *testing.T) (*httptest.Server, *remote.HTTPClient, *remote.SessionManager) {
	t.Helper()
	s := NewServer("test-secret")
	httpSrv := httptest.NewServer(s)
	t.Cleanup(httpSrv.Close)

	sm := remote.NewDevSessionManager(httpSrv.URL, "user-1")
	client := remote.NewDevHTTPClient(httpSrv.URL, sm, "user-1")
	return httpSrv, client, sm
}

func TestSynctest_InsertReadRoundTrip(t *testing.T) {
	_, client, _ := newTestServer(t)
	ctx := t.Context()

	inserted, err := client.TableInsert(ctx, "notes", model.Item{"id": "n1", "title": "hello"}, nil)
	if err != nil {
		t.Fatalf("TableInsert: %v", err)
	}
	if inserted["__version"].(float64) != 1 {
		t.Fatalf("expected version 1, got %v", inserted["__version"])
	}

	page, err := client.TableRead(ctx, datasource.Query{TableName: "notes"}, nil)
	if err != nil {
		t.Fatalf("TableRead: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID() != "n1" {
		t.Fatalf("expected one item n1, got %+v", page.Items)
	}
}

func TestSynctest_UpdateVersionConflict(t *testing.T) {
	_, client, _ := newTestServer(t)
	ctx := t.Context()

	inserted, err := client.TableInsert(ctx, "notes", model.Item{"id": "n1", "title": "v1"}, nil)
	if err != nil {
		t.Fatalf("TableInsert: %v", err)
	}

	stale := inserted.Clone()
	stale["__version"] = float64(99)
	stale["title"] = "stale-write"
	if _, err := client.TableUpdate(ctx, "notes", stale, nil); err == nil {
		t.Fatal("expected conflict error on stale version")
	} else if _, ok := err.(*remote.ConflictError); !ok {
		t.Fatalf("expected *remote.ConflictError, got %T: %v", err, err)
	}
}

func TestSynctest_DeleteMarksTombstone(t *testing.T) {
	_, client, _ := newTestServer(t)
	ctx := t.Context()

	inserted, err := client.TableInsert(ctx, "notes", model.Item{"id": "n1"}, nil)
	if err != nil {
		t.Fatalf("TableInsert: %v", err)
	}
	if err := client.TableDelete(ctx, "notes", inserted, nil); err != nil {
		t.Fatalf("TableDelete: %v", err)
	}

	page, err := client.TableRead(ctx, datasource.Query{TableName: "notes"}, nil)
	if err != nil {
		t.Fatalf("TableRead: %v", err)
	}
	if len(page.Items) != 1 || !page.Items[0]["__deleted"].(bool) {
		t.Fatalf("expected one tombstoned item, got %+v", page.Items)
	}
}

func TestSynctest_WipeBumpsEpochAndRejectsStaleSession(t *testing.T) {
	httpSrv, client, sm := newTestServer(t)
	ctx := t.Context()

	// Establish a session before the wipe.
	if _, err := client.TableInsert(ctx, "notes", model.Item{"id": "n1"}, nil); err != nil {
		t.Fatalf("TableInsert: %v", err)
	}

	wipeReq, err := http.NewRequestWithContext(ctx, http.MethodPost, httpSrv.URL+"/v1/tables/notes/_wipe", nil)
	if err != nil {
		t.Fatalf("build wipe request: %v", err)
	}
	wipeReq.Header.Set("X-Debug-Sub", "user-1")
	sess, err := sm.EnsureSession(ctx)
	if err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	wipeReq.Header.Set("X-Sync-Session", sess.ID)
	wipeReq.Header.Set("X-Sync-Epoch", "0")

	resp, err := httpSrv.Client().Do(wipeReq)
	if err != nil {
		t.Fatalf("wipe request: %v", err)
	}
	resp.Body.Close()

	// The session manager's cached session now carries a stale epoch; the
	// transport's automatic epoch-mismatch retry should transparently
	// refresh it and the read should still succeed.
	page, err := client.TableRead(ctx, datasource.Query{TableName: "notes"}, nil)
	if err != nil {
		t.Fatalf("TableRead after wipe: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("expected table to be empty after wipe, got %+v", page.Items)
	}
}

// TestSynctest_IncrementalPullSpansTiedTimestampPage seeds more rows sharing
// one __updatedAt value than fit in a single page and drives a real
// synccontext incremental pull against this server's Memory-backed
// ReadByQuery (the production sort path, not the test-only fakeRemote).
// The pull resumes inside the tied group by offset at an inclusive
// (>= delta token) threshold, which only works because the (__updatedAt, id)
// secondary sort keeps the order of tied rows the same on every page read.
func TestSynctest_IncrementalPullSpansTiedTimestampPage(t *testing.T) {
	s := NewServer("test-secret")
	httpSrv := httptest.NewServer(s)
	t.Cleanup(httpSrv.Close)

	ctx := t.Context()
	const tied = "2024-01-01T00:00:00Z"
	ids := []string{"z", "y", "x", "w", "v"}
	for _, id := range ids {
		if err := s.ds.Upsert(ctx, "notes", []model.Item{{
			"id": id, "__version": 1, "__updatedAt": tied, "__deleted": false,
		}}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	sm := remote.NewDevSessionManager(httpSrv.URL, "user-1")
	client := remote.NewDevHTTPClient(httpSrv.URL, sm, "user-1")

	sc, err := synccontext.New(ctx, datasource.NewMemory(), client, synccontext.WithPullPageSize(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(sc.Close)

	done := make(chan error, 1)
	sc.Table("notes").Pull(ctx, datasource.Query{}, "notes-stream", func(err error) { done <- err })
	if err := <-done; err != nil {
		t.Fatalf("pull: %v", err)
	}

	items, err := sc.Table("notes").ReadAll(ctx)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(items) != len(ids) {
		t.Fatalf("expected all %d tied-timestamp rows ingested across pages, got %d: %+v", len(ids), len(items), items)
	}
}
