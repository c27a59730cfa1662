package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Collections used by the workflows.
const (
	CollectionConcernSlips  = "concern_slips"
	CollectionJobServices   = "job_services"
	CollectionNotifications = "notifications"
	CollectionUserProfiles  = "user_profiles"
	CollectionAPIKeys       = "api_keys"
)

// DocIDField is injected into every document returned by a Store so callers
// can address the record by its canonical key even when they found it through
// a secondary-index query on the logical "id" field.
const DocIDField = "_doc_id"

// VersionField is injected from the store-managed version counter; it never
// lives inside the stored JSON itself.
const VersionField = "version"

var (
	// ErrNotFound distinguishes a miss from a transport error.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned by a checked update whose expected version no
	// longer matches the stored one.
	ErrConflict = errors.New("document version conflict")
	// ErrExists is returned when creating a document under a taken key.
	ErrExists = errors.New("document already exists")
)

// Filter is one query predicate. The only operator every adapter must
// support is equality.
type Filter struct {
	Field string
	Op    string
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: "==", Value: value}
}

// Store is the document persistence port the workflows depend on. Documents
// are flat JSON maps addressed by (collection, key); the key may differ from
// the document's logical "id" field, which is why Query is a required
// capability and not a convenience.
type Store interface {
	// Get returns the document stored under key id, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (map[string]any, error)
	// Query returns all documents matching every filter; zero matches is a
	// nil slice, not an error.
	Query(ctx context.Context, collection string, filters []Filter) ([]map[string]any, error)
	// GetAll returns every document in the collection.
	GetAll(ctx context.Context, collection string) ([]map[string]any, error)
	// Create stores doc under id, generating a key when id is empty, and
	// returns the key used.
	Create(ctx context.Context, collection, id string, doc map[string]any) (string, error)
	// Update merges partial over the stored document and bumps its version.
	Update(ctx context.Context, collection, id string, partial map[string]any) error
	// UpdateChecked is Update guarded by an expected version; it returns
	// ErrConflict when the stored version has moved on.
	UpdateChecked(ctx context.Context, collection, id string, partial map[string]any, expectedVersion int64) error
}

// Encode converts a domain value into a document map via its JSON shape.
func Encode(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return doc, nil
}

// Decode fills a domain value from a document map. Injected bookkeeping
// fields without a struct counterpart are ignored by the JSON round trip.
func Decode(doc map[string]any, v any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// DocID returns the canonical key injected by the store, falling back to the
// logical id field.
func DocID(doc map[string]any) string {
	if id, ok := doc[DocIDField].(string); ok && id != "" {
		return id
	}
	id, _ := doc["id"].(string)
	return id
}
