package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"facilityfix/internal/domain"
	"facilityfix/internal/store"
)

// Notification types stamped on dispatched records.
const (
	TypeConcernSubmitted = "concern_submitted"
	TypeConcernUpdate    = "concern_update"
	TypeJobAssigned      = "job_assigned"
	TypeJobUpdate        = "job_update"
)

// Dispatcher persists notification records. Store-and-return is the whole
// delivery contract: the stored document is the durable record, and no retry
// or push layer lives here.
type Dispatcher struct {
	Store  store.Store
	Logger *log.Logger
	Now    func() time.Time
	NewID  func() string
}

func (d Dispatcher) logger() *log.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return log.Default()
}

func (d Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Dispatcher) newID() string {
	if d.NewID != nil {
		return d.NewID()
	}
	return uuid.NewString()
}

// Notify stores one notification for one recipient.
func (d Dispatcher) Notify(ctx context.Context, recipientID, title, message, notificationType, relatedID string) error {
	if recipientID == "" {
		return errors.New("recipient_id required")
	}
	n := domain.Notification{
		ID:               d.newID(),
		RecipientID:      recipientID,
		Title:            title,
		Message:          message,
		NotificationType: notificationType,
		RelatedID:        relatedID,
		IsRead:           false,
		CreatedAt:        d.now().UTC().Format(time.RFC3339),
	}
	doc, err := store.Encode(n)
	if err != nil {
		return err
	}
	if _, err := d.Store.Create(ctx, store.CollectionNotifications, n.ID, doc); err != nil {
		return fmt.Errorf("store notification for %s: %w", recipientID, err)
	}
	return nil
}

// NotifyAdmins fans out one notification per currently-resolvable admin
// profile. A failure for one admin is logged and does not abort the loop.
func (d Dispatcher) NotifyAdmins(ctx context.Context, title, message, notificationType, relatedID string) {
	admins, err := d.Store.Query(ctx, store.CollectionUserProfiles, []store.Filter{store.Eq("role", domain.RoleAdmin)})
	if err != nil {
		d.logger().Printf("notify admins: query profiles: %v", err)
		return
	}
	for _, doc := range admins {
		recipient, _ := doc["id"].(string)
		if recipient == "" {
			continue
		}
		if err := d.Notify(ctx, recipient, title, message, notificationType, relatedID); err != nil {
			d.logger().Printf("notify admin %s: %v", recipient, err)
		}
	}
}

// ListByRecipient returns a recipient's notifications, newest last.
func (d Dispatcher) ListByRecipient(ctx context.Context, recipientID string) ([]domain.Notification, error) {
	docs, err := d.Store.Query(ctx, store.CollectionNotifications, []store.Filter{store.Eq("recipient_id", recipientID)})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Notification, 0, len(docs))
	for _, doc := range docs {
		var n domain.Notification
		if err := store.Decode(doc, &n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// MarkRead flips is_read for one of the recipient's own notifications.
func (d Dispatcher) MarkRead(ctx context.Context, id, recipientID string) error {
	doc, err := d.Store.Get(ctx, store.CollectionNotifications, id)
	if err != nil {
		return err
	}
	if owner, _ := doc["recipient_id"].(string); owner != recipientID {
		return store.ErrNotFound
	}
	return d.Store.Update(ctx, store.CollectionNotifications, id, map[string]any{"is_read": true})
}
