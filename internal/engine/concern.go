package engine

import (
	"context"
	"errors"
	"fmt"

	"facilityfix/internal/domain"
	"facilityfix/internal/engine/auth"
	"facilityfix/internal/notify"
	"facilityfix/internal/store"
)

var priorities = []string{
	domain.PriorityLow,
	domain.PriorityMedium,
	domain.PriorityHigh,
	domain.PriorityCritical,
}

func validPriority(p string) bool {
	for _, v := range priorities {
		if v == p {
			return true
		}
	}
	return false
}

// ConcernSlipInput carries the tenant-supplied fields of a new slip.
type ConcernSlipInput struct {
	Title       string
	Description string
	Location    string
	Category    string
	Priority    string
	UnitID      *string
	Attachments []string
}

// CreateConcernSlip files a new report for reportedBy, who must resolve to a
// tenant profile. On success every currently-resolvable admin is notified,
// best-effort.
func (e Engine) CreateConcernSlip(ctx context.Context, reportedBy string, in ConcernSlipInput) (domain.ConcernSlip, error) {
	required := []struct{ field, value string }{
		{"title", in.Title},
		{"description", in.Description},
		{"location", in.Location},
		{"category", in.Category},
	}
	for _, r := range required {
		if r.value == "" {
			return domain.ConcernSlip{}, InvalidArgumentError{Field: r.field, Value: ""}
		}
	}
	if in.Priority == "" {
		in.Priority = domain.PriorityMedium
	}
	if !validPriority(in.Priority) {
		return domain.ConcernSlip{}, InvalidArgumentError{Field: "priority", Value: in.Priority, Allowed: priorities}
	}
	if _, err := e.requireRole(ctx, reportedBy, auth.OpConcernCreate); err != nil {
		return domain.ConcernSlip{}, err
	}

	now := e.timestamp()
	slip := domain.ConcernSlip{
		ID:          e.newID(),
		ReportedBy:  reportedBy,
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		Category:    in.Category,
		Priority:    in.Priority,
		UnitID:      in.UnitID,
		Attachments: in.Attachments,
		Status:      domain.ConcernPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	doc, err := store.Encode(slip)
	if err != nil {
		return domain.ConcernSlip{}, PersistenceError{Op: "create", Collection: store.CollectionConcernSlips, ID: slip.ID, Err: err}
	}
	if _, err := e.Store.Create(ctx, store.CollectionConcernSlips, slip.ID, doc); err != nil {
		return domain.ConcernSlip{}, PersistenceError{Op: "create", Collection: store.CollectionConcernSlips, ID: slip.ID, Err: err}
	}

	e.Notify.NotifyAdmins(ctx,
		"New Concern Slip",
		fmt.Sprintf("New concern slip submitted: %s", slip.Title),
		notify.TypeConcernSubmitted,
		slip.ID)

	return slip, nil
}

// Evaluation carries the admin's verdict. Nil fields keep the slip's prior
// value; a field is never cleared implicitly.
type Evaluation struct {
	Status            *string
	ResolutionType    *string
	UrgencyAssessment *string
	AdminNotes        *string
}

// EvaluateConcernSlip merges an evaluation over the slip and stamps the
// evaluator. The write is version-checked; a concurrent evaluation surfaces
// as ConflictError rather than silently losing one of the writes.
func (e Engine) EvaluateConcernSlip(ctx context.Context, concernSlipID, evaluatedBy string, eval Evaluation) (domain.ConcernSlip, error) {
	if _, err := e.requireRole(ctx, evaluatedBy, auth.OpConcernEvaluate); err != nil {
		return domain.ConcernSlip{}, err
	}
	doc, err := e.fetchDoc(ctx, store.CollectionConcernSlips, concernSlipID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ConcernSlip{}, NotFoundError{Kind: "concern slip", ID: concernSlipID}
		}
		return domain.ConcernSlip{}, err
	}
	docID := store.DocID(doc)

	now := e.timestamp()
	partial := map[string]any{
		"evaluated_by": evaluatedBy,
		"evaluated_at": now,
		"updated_at":   now,
	}
	if eval.Status != nil {
		partial["status"] = *eval.Status
	}
	if eval.ResolutionType != nil {
		partial["resolution_type"] = *eval.ResolutionType
	}
	if eval.UrgencyAssessment != nil {
		partial["urgency_assessment"] = *eval.UrgencyAssessment
	}
	if eval.AdminNotes != nil {
		partial["admin_notes"] = *eval.AdminNotes
	}

	if err := e.Store.UpdateChecked(ctx, store.CollectionConcernSlips, docID, partial, docVersion(doc)); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return domain.ConcernSlip{}, ConflictError{Kind: "concern slip", ID: concernSlipID}
		case errors.Is(err, store.ErrNotFound):
			return domain.ConcernSlip{}, NotFoundError{Kind: "concern slip", ID: concernSlipID}
		}
		return domain.ConcernSlip{}, PersistenceError{Op: "update", Collection: store.CollectionConcernSlips, ID: docID, Err: err}
	}

	updated, err := e.Store.Get(ctx, store.CollectionConcernSlips, docID)
	if err != nil {
		return domain.ConcernSlip{}, PersistenceError{Op: "reread", Collection: store.CollectionConcernSlips, ID: docID, Err: err}
	}
	var slip domain.ConcernSlip
	if err := store.Decode(updated, &slip); err != nil {
		return domain.ConcernSlip{}, PersistenceError{Op: "reread", Collection: store.CollectionConcernSlips, ID: docID, Err: err}
	}
	return slip, nil
}

// GetConcernSlip returns one slip by logical or store id.
func (e Engine) GetConcernSlip(ctx context.Context, concernSlipID string) (domain.ConcernSlip, error) {
	doc, err := e.fetchDoc(ctx, store.CollectionConcernSlips, concernSlipID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ConcernSlip{}, NotFoundError{Kind: "concern slip", ID: concernSlipID}
		}
		return domain.ConcernSlip{}, err
	}
	var slip domain.ConcernSlip
	if err := store.Decode(doc, &slip); err != nil {
		return domain.ConcernSlip{}, err
	}
	return slip, nil
}

// ListConcernSlipsByTenant returns all slips reported by one tenant. Zero
// matches is an empty slice, never an error.
func (e Engine) ListConcernSlipsByTenant(ctx context.Context, tenantID string) ([]domain.ConcernSlip, error) {
	return e.queryConcernSlips(ctx, []store.Filter{store.Eq("reported_by", tenantID)})
}

// ListConcernSlipsByStatus returns all slips with the given status.
func (e Engine) ListConcernSlipsByStatus(ctx context.Context, status string) ([]domain.ConcernSlip, error) {
	return e.queryConcernSlips(ctx, []store.Filter{store.Eq("status", status)})
}

// ListPendingConcernSlips returns slips awaiting evaluation.
func (e Engine) ListPendingConcernSlips(ctx context.Context) ([]domain.ConcernSlip, error) {
	return e.ListConcernSlipsByStatus(ctx, domain.ConcernPending)
}

// ListApprovedConcernSlips returns slips ready for routing.
func (e Engine) ListApprovedConcernSlips(ctx context.Context) ([]domain.ConcernSlip, error) {
	return e.ListConcernSlipsByStatus(ctx, domain.ConcernApproved)
}

// ListAllConcernSlips returns every slip.
func (e Engine) ListAllConcernSlips(ctx context.Context) ([]domain.ConcernSlip, error) {
	docs, err := e.Store.GetAll(ctx, store.CollectionConcernSlips)
	if err != nil {
		return nil, err
	}
	return decodeConcernSlips(docs)
}

func (e Engine) queryConcernSlips(ctx context.Context, filters []store.Filter) ([]domain.ConcernSlip, error) {
	docs, err := e.Store.Query(ctx, store.CollectionConcernSlips, filters)
	if err != nil {
		return nil, err
	}
	return decodeConcernSlips(docs)
}

func decodeConcernSlips(docs []map[string]any) ([]domain.ConcernSlip, error) {
	slips := make([]domain.ConcernSlip, 0, len(docs))
	for _, doc := range docs {
		var slip domain.ConcernSlip
		if err := store.Decode(doc, &slip); err != nil {
			return nil, err
		}
		slips = append(slips, slip)
	}
	return slips, nil
}
