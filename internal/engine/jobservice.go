package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"facilityfix/internal/directory"
	"facilityfix/internal/domain"
	"facilityfix/internal/engine/auth"
	"facilityfix/internal/notify"
	"facilityfix/internal/store"
)

var jobStatuses = []string{
	domain.JobAssigned,
	domain.JobInProgress,
	domain.JobCompleted,
	domain.JobClosed,
}

func validJobStatus(s string) bool {
	for _, v := range jobStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// jobTransitions is the table of legal status moves. Setting the current
// status again is a no-op and always allowed; anything not listed is
// rejected.
var jobTransitions = map[string][]string{
	domain.JobAssigned:   {domain.JobInProgress, domain.JobCompleted, domain.JobClosed},
	domain.JobInProgress: {domain.JobCompleted, domain.JobClosed},
	domain.JobCompleted:  {domain.JobClosed},
	domain.JobClosed:     {},
}

func ensureJobTransition(jobID, from, to string) error {
	if from == to {
		return nil
	}
	for _, allowed := range jobTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return InvalidStateError{Kind: "job service", ID: jobID, Status: from, Want: to}
}

// JobServiceInput carries the admin-supplied fields of a new job. Empty
// strings inherit the owning slip's value.
type JobServiceInput struct {
	Title          string
	Description    string
	Location       string
	Category       string
	Priority       string
	AssignedTo     *string
	ScheduledDate  *string
	EstimatedHours *float64
}

func inherit(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// CreateJobService converts an approved concern slip into an assignable unit
// of work. Preconditions are checked in order: the slip must exist, it must
// be approved, and the creator must be an admin. The slip stamp and both
// notifications are best-effort side effects that never roll back the job.
func (e Engine) CreateJobService(ctx context.Context, concernSlipID, createdBy string, in JobServiceInput) (domain.JobService, error) {
	slipDoc, err := e.fetchDoc(ctx, store.CollectionConcernSlips, concernSlipID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.JobService{}, NotFoundError{Kind: "concern slip", ID: concernSlipID}
		}
		return domain.JobService{}, err
	}
	var slip domain.ConcernSlip
	if err := store.Decode(slipDoc, &slip); err != nil {
		return domain.JobService{}, err
	}
	if slip.Status != domain.ConcernApproved {
		return domain.JobService{}, InvalidStateError{Kind: "concern slip", ID: concernSlipID, Status: slip.Status, Want: domain.ConcernApproved}
	}
	if _, err := e.requireRole(ctx, createdBy, auth.OpJobCreate); err != nil {
		return domain.JobService{}, err
	}
	if in.Priority != "" && !validPriority(in.Priority) {
		return domain.JobService{}, InvalidArgumentError{Field: "priority", Value: in.Priority, Allowed: priorities}
	}
	if in.AssignedTo != nil {
		if err := e.checkAssignee(ctx, *in.AssignedTo); err != nil {
			return domain.JobService{}, err
		}
	}

	now := e.timestamp()
	job := domain.JobService{
		ID:             "job_" + e.newID()[:8],
		ConcernSlipID:  concernSlipID,
		CreatedBy:      createdBy,
		Title:          inherit(in.Title, slip.Title),
		Description:    inherit(in.Description, slip.Description),
		Location:       inherit(in.Location, slip.Location),
		Category:       inherit(in.Category, slip.Category),
		Priority:       inherit(in.Priority, slip.Priority),
		Status:         domain.JobAssigned,
		AssignedTo:     in.AssignedTo,
		ScheduledDate:  in.ScheduledDate,
		EstimatedHours: in.EstimatedHours,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
	doc, err := store.Encode(job)
	if err != nil {
		return domain.JobService{}, PersistenceError{Op: "create", Collection: store.CollectionJobServices, ID: job.ID, Err: err}
	}
	if _, err := e.Store.Create(ctx, store.CollectionJobServices, job.ID, doc); err != nil {
		return domain.JobService{}, PersistenceError{Op: "create", Collection: store.CollectionJobServices, ID: job.ID, Err: err}
	}

	// Post-commit side effects, each isolated.
	if err := e.Store.Update(ctx, store.CollectionConcernSlips, store.DocID(slipDoc), map[string]any{
		"resolution_type": domain.ResolutionJobService,
		"updated_at":      e.timestamp(),
	}); err != nil {
		e.logger().Printf("stamp concern slip %s: %v", concernSlipID, err)
	}
	if job.AssignedTo != nil {
		e.notifyAssignment(ctx, *job.AssignedTo, job.ID, job.Title)
	}
	if err := e.Notify.Notify(ctx, slip.ReportedBy,
		"Job Service Update",
		"Your concern has been assigned to our internal staff",
		notify.TypeJobUpdate,
		job.ID); err != nil {
		e.logger().Printf("notify reporter %s: %v", slip.ReportedBy, err)
	}

	return job, nil
}

// checkAssignee enforces both halves of the assignment rule: the staff id
// shape and a profile that actually resolves to the staff role.
func (e Engine) checkAssignee(ctx context.Context, assignedTo string) error {
	if !directory.HasStaffPrefix(assignedTo) {
		return InvalidAssigneeError{AssigneeID: assignedTo, Reason: "id does not carry the staff prefix"}
	}
	profile, err := e.Directory.ResolveProfile(ctx, assignedTo)
	if err != nil {
		if errors.Is(err, directory.ErrUnknownActor) {
			return InvalidAssigneeError{AssigneeID: assignedTo, Reason: "no such profile"}
		}
		return err
	}
	if !auth.IsStaff(profile) {
		return InvalidAssigneeError{AssigneeID: assignedTo, Reason: fmt.Sprintf("profile role is %s, not %s", profile.Role, domain.RoleStaff)}
	}
	return nil
}

// AssignJobService routes a job to a staff member and resets its status to
// assigned. Closed jobs cannot be re-assigned.
func (e Engine) AssignJobService(ctx context.Context, jobServiceID, assignedTo, assignedBy string) (domain.JobService, error) {
	if _, err := e.requireRole(ctx, assignedBy, auth.OpJobAssign); err != nil {
		return domain.JobService{}, err
	}
	if err := e.checkAssignee(ctx, assignedTo); err != nil {
		return domain.JobService{}, err
	}
	doc, err := e.Store.Get(ctx, store.CollectionJobServices, jobServiceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.JobService{}, NotFoundError{Kind: "job service", ID: jobServiceID}
		}
		return domain.JobService{}, err
	}
	if status, _ := doc["status"].(string); status == domain.JobClosed {
		return domain.JobService{}, InvalidStateError{Kind: "job service", ID: jobServiceID, Status: status, Want: domain.JobAssigned}
	}

	partial := map[string]any{
		"assigned_to": assignedTo,
		"status":      domain.JobAssigned,
		"updated_at":  e.timestamp(),
	}
	if err := e.Store.UpdateChecked(ctx, store.CollectionJobServices, jobServiceID, partial, docVersion(doc)); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return domain.JobService{}, ConflictError{Kind: "job service", ID: jobServiceID}
		case errors.Is(err, store.ErrNotFound):
			return domain.JobService{}, NotFoundError{Kind: "job service", ID: jobServiceID}
		}
		return domain.JobService{}, PersistenceError{Op: "update", Collection: store.CollectionJobServices, ID: jobServiceID, Err: err}
	}

	title, _ := doc["title"].(string)
	e.notifyAssignment(ctx, assignedTo, jobServiceID, title)

	return e.rereadJobService(ctx, jobServiceID)
}

// UpdateJobStatus advances the job through its lifecycle. Moving to
// in_progress stamps started_at; moving to completed stamps completed_at,
// records notes as completion notes, and notifies the originating reporter.
func (e Engine) UpdateJobStatus(ctx context.Context, jobServiceID, status, updatedBy string, notes *string) (domain.JobService, error) {
	if !validJobStatus(status) {
		return domain.JobService{}, InvalidArgumentError{Field: "status", Value: status, Allowed: jobStatuses}
	}
	if _, err := e.requireRole(ctx, updatedBy, auth.OpJobUpdateStatus); err != nil {
		return domain.JobService{}, err
	}
	doc, err := e.Store.Get(ctx, store.CollectionJobServices, jobServiceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.JobService{}, NotFoundError{Kind: "job service", ID: jobServiceID}
		}
		return domain.JobService{}, err
	}
	current, _ := doc["status"].(string)
	if err := ensureJobTransition(jobServiceID, current, status); err != nil {
		return domain.JobService{}, err
	}

	now := e.timestamp()
	partial := map[string]any{
		"status":     status,
		"updated_at": now,
	}
	switch status {
	case domain.JobInProgress:
		partial["started_at"] = now
	case domain.JobCompleted:
		partial["completed_at"] = now
	}
	if notes != nil && *notes != "" {
		if status == domain.JobCompleted {
			partial["completion_notes"] = *notes
		} else {
			partial["staff_notes"] = *notes
		}
	}
	if err := e.Store.UpdateChecked(ctx, store.CollectionJobServices, jobServiceID, partial, docVersion(doc)); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return domain.JobService{}, ConflictError{Kind: "job service", ID: jobServiceID}
		case errors.Is(err, store.ErrNotFound):
			return domain.JobService{}, NotFoundError{Kind: "job service", ID: jobServiceID}
		}
		return domain.JobService{}, PersistenceError{Op: "update", Collection: store.CollectionJobServices, ID: jobServiceID, Err: err}
	}

	if status == domain.JobCompleted {
		e.notifyCompletion(ctx, doc, jobServiceID)
	}

	return e.rereadJobService(ctx, jobServiceID)
}

func (e Engine) notifyCompletion(ctx context.Context, jobDoc map[string]any, jobServiceID string) {
	slipID, _ := jobDoc["concern_slip_id"].(string)
	if slipID == "" {
		return
	}
	slipDoc, err := e.fetchDoc(ctx, store.CollectionConcernSlips, slipID)
	if err != nil {
		e.logger().Printf("completion notice for job %s: concern slip %s: %v", jobServiceID, slipID, err)
		return
	}
	reporter, _ := slipDoc["reported_by"].(string)
	title, _ := jobDoc["title"].(string)
	if err := e.Notify.Notify(ctx, reporter,
		"Job Service Update",
		fmt.Sprintf("Your repair request has been completed: %s", title),
		notify.TypeJobUpdate,
		jobServiceID); err != nil {
		e.logger().Printf("notify reporter %s: %v", reporter, err)
	}
}

func (e Engine) notifyAssignment(ctx context.Context, recipientID, jobServiceID, title string) {
	if title == "" {
		title = "Job Service Assignment"
	}
	if err := e.Notify.Notify(ctx, recipientID,
		"New Job Assignment",
		fmt.Sprintf("You have been assigned a new job: %s", title),
		notify.TypeJobAssigned,
		jobServiceID); err != nil {
		e.logger().Printf("notify staff %s: %v", recipientID, err)
	}
}

// AddWorkNotes appends a timestamped, attributed line to the job's running
// narrative. Attribution is best-effort: an unresolvable profile is recorded
// as Unknown rather than failing the operation.
func (e Engine) AddWorkNotes(ctx context.Context, jobServiceID, notes, addedBy string) (domain.JobService, error) {
	if strings.TrimSpace(notes) == "" {
		return domain.JobService{}, InvalidArgumentError{Field: "notes", Value: ""}
	}
	doc, err := e.Store.Get(ctx, store.CollectionJobServices, jobServiceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.JobService{}, NotFoundError{Kind: "job service", ID: jobServiceID}
		}
		return domain.JobService{}, err
	}

	author := "Unknown"
	if profile, err := e.Directory.ResolveProfile(ctx, addedBy); err == nil {
		author = directory.DisplayName(profile)
	}
	current, _ := doc["staff_notes"].(string)
	stamp := e.now().UTC().Format("2006-01-02 15:04")
	updated := current + fmt.Sprintf("\n[%s] %s: %s", stamp, author, notes)

	partial := map[string]any{
		"staff_notes": updated,
		"updated_at":  e.timestamp(),
	}
	if err := e.Store.UpdateChecked(ctx, store.CollectionJobServices, jobServiceID, partial, docVersion(doc)); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return domain.JobService{}, ConflictError{Kind: "job service", ID: jobServiceID}
		case errors.Is(err, store.ErrNotFound):
			return domain.JobService{}, NotFoundError{Kind: "job service", ID: jobServiceID}
		}
		return domain.JobService{}, PersistenceError{Op: "update", Collection: store.CollectionJobServices, ID: jobServiceID, Err: err}
	}

	return e.rereadJobService(ctx, jobServiceID)
}

func (e Engine) rereadJobService(ctx context.Context, jobServiceID string) (domain.JobService, error) {
	doc, err := e.Store.Get(ctx, store.CollectionJobServices, jobServiceID)
	if err != nil {
		return domain.JobService{}, PersistenceError{Op: "reread", Collection: store.CollectionJobServices, ID: jobServiceID, Err: err}
	}
	var job domain.JobService
	if err := store.Decode(doc, &job); err != nil {
		return domain.JobService{}, PersistenceError{Op: "reread", Collection: store.CollectionJobServices, ID: jobServiceID, Err: err}
	}
	return job, nil
}

// GetJobService returns one job by id.
func (e Engine) GetJobService(ctx context.Context, jobServiceID string) (domain.JobService, error) {
	doc, err := e.Store.Get(ctx, store.CollectionJobServices, jobServiceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.JobService{}, NotFoundError{Kind: "job service", ID: jobServiceID}
		}
		return domain.JobService{}, err
	}
	var job domain.JobService
	if err := store.Decode(doc, &job); err != nil {
		return domain.JobService{}, err
	}
	return job, nil
}

// ListJobServicesByStaff returns all jobs assigned to one staff member.
// Zero matches is an empty slice, never an error.
func (e Engine) ListJobServicesByStaff(ctx context.Context, staffID string) ([]domain.JobService, error) {
	return e.queryJobServices(ctx, []store.Filter{store.Eq("assigned_to", staffID)})
}

// ListJobServicesByStatus returns all jobs with the given status.
func (e Engine) ListJobServicesByStatus(ctx context.Context, status string) ([]domain.JobService, error) {
	return e.queryJobServices(ctx, []store.Filter{store.Eq("status", status)})
}

// ListAllJobServices returns every job.
func (e Engine) ListAllJobServices(ctx context.Context) ([]domain.JobService, error) {
	docs, err := e.Store.GetAll(ctx, store.CollectionJobServices)
	if err != nil {
		return nil, err
	}
	return decodeJobServices(docs)
}

func (e Engine) queryJobServices(ctx context.Context, filters []store.Filter) ([]domain.JobService, error) {
	docs, err := e.Store.Query(ctx, store.CollectionJobServices, filters)
	if err != nil {
		return nil, err
	}
	return decodeJobServices(docs)
}

func decodeJobServices(docs []map[string]any) ([]domain.JobService, error) {
	jobs := make([]domain.JobService, 0, len(docs))
	for _, doc := range docs {
		var job domain.JobService
		if err := store.Decode(doc, &job); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
