package store_test

import (
	"context"
	"errors"
	"testing"

	"facilityfix/internal/migrate"
	"facilityfix/internal/store"
)

func newTestStore(t *testing.T) *store.SQLite {
	t.Helper()
	conn, err := store.Open(store.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.NewSQLite(conn)
}

func TestCreateAndGet(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id, err := st.Create(ctx, "things", "t-1", map[string]any{"id": "t-1", "name": "one"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "t-1" {
		t.Fatalf("id = %s", id)
	}

	doc, err := st.Get(ctx, "things", "t-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc["name"] != "one" {
		t.Fatalf("doc = %+v", doc)
	}
	if doc[store.DocIDField] != "t-1" {
		t.Fatalf("missing injected doc id: %+v", doc)
	}
	if v, ok := doc[store.VersionField].(int64); !ok || v != 1 {
		t.Fatalf("expected version 1, got %+v", doc[store.VersionField])
	}

	if _, err := st.Get(ctx, "things", "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := st.Get(ctx, "other", "t-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("collections must be isolated, got %v", err)
	}
}

func TestCreateGeneratesIDAndRejectsDuplicates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id, err := st.Create(ctx, "things", "", map[string]any{"name": "auto"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}

	if _, err := st.Create(ctx, "things", id, map[string]any{"name": "dup"}); !errors.Is(err, store.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestQueryByField(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for _, doc := range []map[string]any{
		{"id": "a", "status": "open", "owner": "x"},
		{"id": "b", "status": "open", "owner": "y"},
		{"id": "c", "status": "done", "owner": "x"},
	} {
		if _, err := st.Create(ctx, "things", doc["id"].(string), doc); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	open, err := st.Query(ctx, "things", []store.Filter{store.Eq("status", "open")})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("open = %d docs", len(open))
	}

	both, err := st.Query(ctx, "things", []store.Filter{store.Eq("status", "open"), store.Eq("owner", "x")})
	if err != nil {
		t.Fatalf("query two filters: %v", err)
	}
	if len(both) != 1 || both[0]["id"] != "a" {
		t.Fatalf("both = %+v", both)
	}

	none, err := st.Query(ctx, "things", []store.Filter{store.Eq("status", "archived")})
	if err != nil {
		t.Fatalf("empty query must not error: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("none = %+v", none)
	}

	if _, err := st.Query(ctx, "things", []store.Filter{{Field: "status; DROP TABLE documents", Op: "==", Value: 1}}); err == nil {
		t.Fatal("expected invalid field name error")
	}
	if _, err := st.Query(ctx, "things", []store.Filter{{Field: "status", Op: ">", Value: 1}}); err == nil {
		t.Fatal("expected unsupported operator error")
	}
}

func TestUpdateMergesPartial(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := st.Create(ctx, "things", "t-1", map[string]any{"id": "t-1", "a": "1", "b": "2"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.Update(ctx, "things", "t-1", map[string]any{"b": "changed", "c": "new"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	doc, err := st.Get(ctx, "things", "t-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc["a"] != "1" || doc["b"] != "changed" || doc["c"] != "new" {
		t.Fatalf("merge wrong: %+v", doc)
	}
	if v := doc[store.VersionField].(int64); v != 2 {
		t.Fatalf("version = %d, want 2", v)
	}

	if err := st.Update(ctx, "things", "missing", map[string]any{"a": "1"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateCheckedConflicts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := st.Create(ctx, "things", "t-1", map[string]any{"id": "t-1", "n": "0"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.UpdateChecked(ctx, "things", "t-1", map[string]any{"n": "1"}, 1); err != nil {
		t.Fatalf("checked update at right version: %v", err)
	}
	// stale writer loses
	if err := st.UpdateChecked(ctx, "things", "t-1", map[string]any{"n": "2"}, 1); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	doc, err := st.Get(ctx, "things", "t-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc["n"] != "1" {
		t.Fatalf("stale write applied: %+v", doc)
	}
}

func TestBookkeepingFieldsNotPersisted(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := st.Create(ctx, "things", "t-1", map[string]any{
		"id":               "t-1",
		store.DocIDField:   "spoofed",
		store.VersionField: int64(99),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	doc, err := st.Get(ctx, "things", "t-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc[store.DocIDField] != "t-1" {
		t.Fatalf("doc id spoofed: %+v", doc)
	}
	if v := doc[store.VersionField].(int64); v != 1 {
		t.Fatalf("version spoofed: %d", v)
	}
}
