package notify_test

import (
	"context"
	"errors"
	"testing"

	"facilityfix/internal/domain"
	"facilityfix/internal/migrate"
	"facilityfix/internal/notify"
	"facilityfix/internal/store"
)

func newTestDispatcher(t *testing.T) (notify.Dispatcher, *store.SQLite) {
	t.Helper()
	conn, err := store.Open(store.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := store.NewSQLite(conn)
	return notify.Dispatcher{Store: st}, st
}

func TestNotifyAndList(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	if err := d.Notify(ctx, "T-0001", "Title", "Message", notify.TypeConcernSubmitted, "cs-1"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := d.Notify(ctx, "T-0001", "Other", "More", notify.TypeJobUpdate, "job_1"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := d.Notify(ctx, "T-0002", "Elsewhere", "x", notify.TypeJobUpdate, "job_2"); err != nil {
		t.Fatalf("notify: %v", err)
	}

	items, err := d.ListByRecipient(ctx, "T-0001")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(items))
	}
	for _, n := range items {
		if n.IsRead {
			t.Fatalf("new notification must be unread: %+v", n)
		}
	}

	if err := d.Notify(ctx, "", "t", "m", notify.TypeJobUpdate, "x"); err == nil {
		t.Fatal("expected error for empty recipient")
	}
}

func TestNotifyAdminsFansOut(t *testing.T) {
	d, st := newTestDispatcher(t)
	ctx := context.Background()

	for _, id := range []string{"A-0001", "A-0002"} {
		doc := map[string]any{"id": id, "role": domain.RoleAdmin}
		if _, err := st.Create(ctx, store.CollectionUserProfiles, id, doc); err != nil {
			t.Fatalf("seed admin: %v", err)
		}
	}
	if _, err := st.Create(ctx, store.CollectionUserProfiles, "S-0001", map[string]any{"id": "S-0001", "role": domain.RoleStaff}); err != nil {
		t.Fatalf("seed staff: %v", err)
	}

	d.NotifyAdmins(ctx, "New Concern Slip", "something broke", notify.TypeConcernSubmitted, "cs-1")

	for _, id := range []string{"A-0001", "A-0002"} {
		items, err := d.ListByRecipient(ctx, id)
		if err != nil {
			t.Fatalf("list %s: %v", id, err)
		}
		if len(items) != 1 {
			t.Fatalf("admin %s: expected 1 notification, got %d", id, len(items))
		}
	}
	staffItems, err := d.ListByRecipient(ctx, "S-0001")
	if err != nil {
		t.Fatalf("list staff: %v", err)
	}
	if len(staffItems) != 0 {
		t.Fatalf("staff should not receive admin fan-out: %+v", staffItems)
	}
}

func TestMarkRead(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	if err := d.Notify(ctx, "T-0001", "Title", "Message", notify.TypeJobUpdate, "job_1"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	items, err := d.ListByRecipient(ctx, "T-0001")
	if err != nil || len(items) != 1 {
		t.Fatalf("list: %v %d", err, len(items))
	}
	id := items[0].ID

	// someone else's notification looks like it does not exist
	if err := d.MarkRead(ctx, id, "T-0002"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign recipient, got %v", err)
	}

	if err := d.MarkRead(ctx, id, "T-0001"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	items, err = d.ListByRecipient(ctx, "T-0001")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !items[0].IsRead {
		t.Fatalf("notification still unread: %+v", items[0])
	}

	if err := d.MarkRead(ctx, "missing", "T-0001"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
