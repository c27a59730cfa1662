package directory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"facilityfix/internal/domain"
	"facilityfix/internal/store"
)

// HashAPIKey returns a stable SHA-256 hex digest for the provided key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// CreateAPIKey mints a new key for an actor and stores only its hash. The
// plaintext key is returned once and never persisted.
func (s Service) CreateAPIKey(ctx context.Context, actorID, name string) (string, domain.APIKey, error) {
	if actorID == "" {
		return "", domain.APIKey{}, errors.New("actor_id required")
	}
	if _, err := s.ResolveProfile(ctx, actorID); err != nil {
		return "", domain.APIKey{}, err
	}
	plain := uuid.NewString()
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   HashAPIKey(plain),
		CreatedAt: s.now().UTC().Format(time.RFC3339),
	}
	doc, err := store.Encode(key)
	if err != nil {
		return "", domain.APIKey{}, err
	}
	if _, err := s.Store.Create(ctx, store.CollectionAPIKeys, key.ID, doc); err != nil {
		return "", domain.APIKey{}, err
	}
	return plain, key, nil
}

// ResolveAPIKey maps a plaintext key to the profile it authenticates.
func (s Service) ResolveAPIKey(ctx context.Context, plain string) (domain.UserProfile, error) {
	if strings.TrimSpace(plain) == "" {
		return domain.UserProfile{}, errors.New("api key required")
	}
	docs, err := s.Store.Query(ctx, store.CollectionAPIKeys, []store.Filter{store.Eq("key_hash", HashAPIKey(plain))})
	if err != nil {
		return domain.UserProfile{}, err
	}
	if len(docs) == 0 {
		return domain.UserProfile{}, ErrUnknownActor
	}
	var key domain.APIKey
	if err := store.Decode(docs[0], &key); err != nil {
		return domain.UserProfile{}, err
	}
	if key.Revoked {
		return domain.UserProfile{}, ErrUnknownActor
	}
	return s.ResolveProfile(ctx, key.ActorID)
}

// RevokeAPIKey marks a key revoked. Documents are never deleted; revocation
// is an update like any other.
func (s Service) RevokeAPIKey(ctx context.Context, id string) error {
	return s.Store.Update(ctx, store.CollectionAPIKeys, id, map[string]any{"revoked": true})
}

// ListAPIKeys returns keys, optionally scoped to one actor.
func (s Service) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	var (
		docs []map[string]any
		err  error
	)
	if actorID == "" {
		docs, err = s.Store.GetAll(ctx, store.CollectionAPIKeys)
	} else {
		docs, err = s.Store.Query(ctx, store.CollectionAPIKeys, []store.Filter{store.Eq("actor_id", actorID)})
	}
	if err != nil {
		return nil, err
	}
	keys := make([]domain.APIKey, 0, len(docs))
	for _, doc := range docs {
		var k domain.APIKey
		if err := store.Decode(doc, &k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}
