package engine

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"facilityfix/internal/directory"
	"facilityfix/internal/domain"
	"facilityfix/internal/engine/auth"
	"facilityfix/internal/notify"
	"facilityfix/internal/store"
)

// Engine executes the concern slip and job service workflows against the
// document store. It holds no mutable state of its own; every operation is
// request-scoped and safe to run concurrently.
type Engine struct {
	Store     store.Store
	Directory directory.Resolver
	Notify    notify.Dispatcher
	Policy    auth.Policy
	Logger    *log.Logger
	Now       func() time.Time
	NewID     func() string
}

// New wires an engine with the default capability policy.
func New(st store.Store, dir directory.Resolver, d notify.Dispatcher) Engine {
	return Engine{
		Store:     st,
		Directory: dir,
		Notify:    d,
		Policy:    auth.DefaultPolicy(),
		Now:       time.Now,
		NewID:     uuid.NewString,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// requireRole resolves the actor and checks the capability table. An actor
// without a profile fails the same way as one with the wrong role.
func (e Engine) requireRole(ctx context.Context, actorID, op string) (domain.UserProfile, error) {
	profile, err := e.Directory.ResolveProfile(ctx, actorID)
	if err != nil {
		if errors.Is(err, directory.ErrUnknownActor) {
			return domain.UserProfile{}, auth.NotAuthorizedError{ActorID: actorID, Operation: op}
		}
		return domain.UserProfile{}, err
	}
	if err := e.Policy.Require(profile, op); err != nil {
		return domain.UserProfile{}, err
	}
	return profile, nil
}

// fetchDoc looks a document up by its store key, falling back to a
// secondary-index query on the logical "id" field. The store may address the
// same logical entity both ways; the returned doc carries the canonical key
// under store.DocIDField for follow-up writes.
func (e Engine) fetchDoc(ctx context.Context, collection, id string) (map[string]any, error) {
	doc, err := e.Store.Get(ctx, collection, id)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	docs, err := e.Store.Query(ctx, collection, []store.Filter{store.Eq("id", id)})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, store.ErrNotFound
	}
	return docs[0], nil
}

func docVersion(doc map[string]any) int64 {
	switch v := doc[store.VersionField].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}
