package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"facilityfix/internal/directory"
	"facilityfix/internal/domain"
	"facilityfix/internal/engine"
	"facilityfix/internal/engine/auth"
	"facilityfix/internal/migrate"
	"facilityfix/internal/notify"
	"facilityfix/internal/store"
)

type testEnv struct {
	Engine engine.Engine
	Store  *store.SQLite
	Notify notify.Dispatcher
	Ctx    context.Context

	Admin  string
	Staff  string
	Tenant string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	workspace := t.TempDir()
	conn, err := store.Open(store.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := store.NewSQLite(conn)
	dir := directory.Service{Store: st}
	dispatcher := notify.Dispatcher{Store: st}
	eng := engine.New(st, dir, dispatcher)
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	ctx := context.Background()
	env := testEnv{Engine: eng, Store: st, Notify: dispatcher, Ctx: ctx}
	env.Admin = mustProfile(t, ctx, dir, domain.RoleAdmin, "Alice", "Ong")
	env.Staff = mustProfile(t, ctx, dir, domain.RoleStaff, "Ben", "Reyes")
	env.Tenant = mustProfile(t, ctx, dir, domain.RoleTenant, "Cara", "Lim")
	return env
}

func mustProfile(t *testing.T, ctx context.Context, dir directory.Service, role, first, last string) string {
	t.Helper()
	p := domain.UserProfile{Role: role, FirstName: first, LastName: last}
	if role == domain.RoleTenant {
		p.BuildingUnit = "A-10"
	}
	created, err := dir.CreateProfile(ctx, p)
	if err != nil {
		t.Fatalf("create %s profile: %v", role, err)
	}
	return created.ID
}

func (env testEnv) createSlip(t *testing.T) domain.ConcernSlip {
	t.Helper()
	slip, err := env.Engine.CreateConcernSlip(env.Ctx, env.Tenant, engine.ConcernSlipInput{
		Title:       "Leaking faucet",
		Description: "Kitchen faucet drips constantly",
		Location:    "Unit A-00010 kitchen",
		Category:    "plumbing",
	})
	if err != nil {
		t.Fatalf("create concern slip: %v", err)
	}
	return slip
}

func (env testEnv) approveSlip(t *testing.T, id string) domain.ConcernSlip {
	t.Helper()
	approved := domain.ConcernApproved
	slip, err := env.Engine.EvaluateConcernSlip(env.Ctx, id, env.Admin, engine.Evaluation{Status: &approved})
	if err != nil {
		t.Fatalf("approve concern slip: %v", err)
	}
	return slip
}

func (env testEnv) createJob(t *testing.T, slipID string) domain.JobService {
	t.Helper()
	job, err := env.Engine.CreateJobService(env.Ctx, slipID, env.Admin, engine.JobServiceInput{})
	if err != nil {
		t.Fatalf("create job service: %v", err)
	}
	return job
}

func TestCreateConcernSlipDefaults(t *testing.T) {
	env := newTestEnv(t)
	slip := env.createSlip(t)
	if slip.Status != domain.ConcernPending {
		t.Fatalf("expected pending, got %s", slip.Status)
	}
	if slip.Priority != domain.PriorityMedium {
		t.Fatalf("expected default priority medium, got %s", slip.Priority)
	}
	if slip.ReportedBy != env.Tenant {
		t.Fatalf("reported_by = %s, want %s", slip.ReportedBy, env.Tenant)
	}
	notifications, err := env.Notify.ListByRecipient(env.Ctx, env.Admin)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("expected 1 admin notification, got %d", len(notifications))
	}
	if notifications[0].NotificationType != notify.TypeConcernSubmitted {
		t.Fatalf("unexpected notification type %s", notifications[0].NotificationType)
	}
	if notifications[0].RelatedID != slip.ID {
		t.Fatalf("related_id = %s, want %s", notifications[0].RelatedID, slip.ID)
	}
}

func TestCreateConcernSlipRejectsNonTenants(t *testing.T) {
	env := newTestEnv(t)
	in := engine.ConcernSlipInput{
		Title:       "x",
		Description: "x",
		Location:    "x",
		Category:    "x",
	}
	for _, actor := range []string{env.Admin, env.Staff, "nobody"} {
		_, err := env.Engine.CreateConcernSlip(env.Ctx, actor, in)
		var notAuth auth.NotAuthorizedError
		if !errors.As(err, &notAuth) {
			t.Fatalf("actor %s: expected NotAuthorizedError, got %v", actor, err)
		}
	}
	slips, err := env.Engine.ListAllConcernSlips(env.Ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(slips) != 0 {
		t.Fatalf("rejected submissions must not persist, found %d slips", len(slips))
	}
}

func TestCreateConcernSlipValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateConcernSlip(env.Ctx, env.Tenant, engine.ConcernSlipInput{
		Title: "only a title",
	})
	var badArg engine.InvalidArgumentError
	if !errors.As(err, &badArg) {
		t.Fatalf("expected InvalidArgumentError for missing fields, got %v", err)
	}

	_, err = env.Engine.CreateConcernSlip(env.Ctx, env.Tenant, engine.ConcernSlipInput{
		Title:       "x",
		Description: "x",
		Location:    "x",
		Category:    "x",
		Priority:    "urgent",
	})
	if !errors.As(err, &badArg) || badArg.Field != "priority" {
		t.Fatalf("expected priority InvalidArgumentError, got %v", err)
	}
}

func TestEvaluateConcernSlipMerge(t *testing.T) {
	env := newTestEnv(t)
	slip := env.createSlip(t)

	approved := domain.ConcernApproved
	urgency := "high"
	first, err := env.Engine.EvaluateConcernSlip(env.Ctx, slip.ID, env.Admin, engine.Evaluation{
		Status:            &approved,
		UrgencyAssessment: &urgency,
	})
	if err != nil {
		t.Fatalf("first evaluation: %v", err)
	}
	if first.Status != domain.ConcernApproved {
		t.Fatalf("status = %s, want approved", first.Status)
	}
	if first.UrgencyAssessment == nil || *first.UrgencyAssessment != "high" {
		t.Fatalf("urgency not recorded: %+v", first.UrgencyAssessment)
	}
	if first.EvaluatedBy == nil || *first.EvaluatedBy != env.Admin {
		t.Fatalf("evaluated_by not stamped: %+v", first.EvaluatedBy)
	}
	if first.EvaluatedAt == nil {
		t.Fatal("evaluated_at not stamped")
	}

	// A later evaluation that omits urgency must not clear it.
	notes := "plumber scheduled"
	second, err := env.Engine.EvaluateConcernSlip(env.Ctx, slip.ID, env.Admin, engine.Evaluation{
		AdminNotes: &notes,
	})
	if err != nil {
		t.Fatalf("second evaluation: %v", err)
	}
	if second.UrgencyAssessment == nil || *second.UrgencyAssessment != "high" {
		t.Fatalf("urgency cleared by partial evaluation: %+v", second.UrgencyAssessment)
	}
	if second.AdminNotes == nil || *second.AdminNotes != notes {
		t.Fatalf("admin notes not recorded: %+v", second.AdminNotes)
	}
	if second.Status != domain.ConcernApproved {
		t.Fatalf("status changed by partial evaluation: %s", second.Status)
	}
}

func TestEvaluateConcernSlipAuthorization(t *testing.T) {
	env := newTestEnv(t)
	slip := env.createSlip(t)
	approved := domain.ConcernApproved
	for _, actor := range []string{env.Staff, env.Tenant, "nobody"} {
		_, err := env.Engine.EvaluateConcernSlip(env.Ctx, slip.ID, actor, engine.Evaluation{Status: &approved})
		var notAuth auth.NotAuthorizedError
		if !errors.As(err, &notAuth) {
			t.Fatalf("actor %s: expected NotAuthorizedError, got %v", actor, err)
		}
	}
	_, err := env.Engine.EvaluateConcernSlip(env.Ctx, "missing", env.Admin, engine.Evaluation{Status: &approved})
	var notFound engine.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestCreateJobServiceInheritsSlipFields(t *testing.T) {
	env := newTestEnv(t)
	slip := env.createSlip(t)
	env.approveSlip(t, slip.ID)

	job := env.createJob(t, slip.ID)
	if !strings.HasPrefix(job.ID, "job_") {
		t.Fatalf("job id %q lacks job_ prefix", job.ID)
	}
	if job.Status != domain.JobAssigned {
		t.Fatalf("status = %s, want assigned", job.Status)
	}
	if job.Title != slip.Title || job.Description != slip.Description ||
		job.Location != slip.Location || job.Category != slip.Category {
		t.Fatalf("job did not inherit slip fields: %+v", job)
	}
	if job.ConcernSlipID != slip.ID {
		t.Fatalf("concern_slip_id = %s, want %s", job.ConcernSlipID, slip.ID)
	}

	// slip carries the resolution stamp afterwards
	stamped, err := env.Engine.GetConcernSlip(env.Ctx, slip.ID)
	if err != nil {
		t.Fatalf("get slip: %v", err)
	}
	if stamped.ResolutionType == nil || *stamped.ResolutionType != domain.ResolutionJobService {
		t.Fatalf("resolution_type not stamped: %+v", stamped.ResolutionType)
	}

	// reporter is told their concern moved forward
	notifications, err := env.Notify.ListByRecipient(env.Ctx, env.Tenant)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	found := false
	for _, n := range notifications {
		if n.NotificationType == notify.TypeJobUpdate && n.RelatedID == job.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("reporter never notified about job creation: %+v", notifications)
	}
}

func TestCreateJobServiceOverrides(t *testing.T) {
	env := newTestEnv(t)
	slip := env.createSlip(t)
	env.approveSlip(t, slip.ID)

	hours := 2.5
	job, err := env.Engine.CreateJobService(env.Ctx, slip.ID, env.Admin, engine.JobServiceInput{
		Title:          "Replace faucet cartridge",
		Priority:       domain.PriorityHigh,
		AssignedTo:     &env.Staff,
		EstimatedHours: &hours,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if job.Title != "Replace faucet cartridge" {
		t.Fatalf("title override lost: %s", job.Title)
	}
	if job.Priority != domain.PriorityHigh {
		t.Fatalf("priority override lost: %s", job.Priority)
	}
	if job.Description != slip.Description {
		t.Fatalf("description should inherit: %s", job.Description)
	}
	if job.AssignedTo == nil || *job.AssignedTo != env.Staff {
		t.Fatalf("assignee lost: %+v", job.AssignedTo)
	}

	// assignee gets a job_assigned notification
	notifications, err := env.Notify.ListByRecipient(env.Ctx, env.Staff)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(notifications) != 1 || notifications[0].NotificationType != notify.TypeJobAssigned {
		t.Fatalf("expected one job_assigned notification, got %+v", notifications)
	}
}

func TestCreateJobServicePreconditionOrder(t *testing.T) {
	env := newTestEnv(t)

	// missing slip wins over everything, even an unauthorized creator
	_, err := env.Engine.CreateJobService(env.Ctx, "missing", env.Tenant, engine.JobServiceInput{})
	var notFound engine.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	slip := env.createSlip(t)

	// non-approved slip beats the creator check
	_, err = env.Engine.CreateJobService(env.Ctx, slip.ID, env.Tenant, engine.JobServiceInput{})
	var badState engine.InvalidStateError
	if !errors.As(err, &badState) {
		t.Fatalf("expected InvalidStateError on pending slip, got %v", err)
	}

	rejected := domain.ConcernRejected
	if _, err := env.Engine.EvaluateConcernSlip(env.Ctx, slip.ID, env.Admin, engine.Evaluation{Status: &rejected}); err != nil {
		t.Fatalf("reject slip: %v", err)
	}
	_, err = env.Engine.CreateJobService(env.Ctx, slip.ID, env.Admin, engine.JobServiceInput{})
	if !errors.As(err, &badState) {
		t.Fatalf("expected InvalidStateError on rejected slip, got %v", err)
	}

	// approved slip, non-admin creators rejected
	slip2 := env.createSlip(t)
	env.approveSlip(t, slip2.ID)
	for _, actor := range []string{env.Tenant, env.Staff, "nobody"} {
		_, err := env.Engine.CreateJobService(env.Ctx, slip2.ID, actor, engine.JobServiceInput{})
		var notAuth auth.NotAuthorizedError
		if !errors.As(err, &notAuth) {
			t.Fatalf("actor %s: expected NotAuthorizedError, got %v", actor, err)
		}
	}
}

func TestAssignJobService(t *testing.T) {
	env := newTestEnv(t)
	slip := env.createSlip(t)
	env.approveSlip(t, slip.ID)
	job := env.createJob(t, slip.ID)

	// tenant ids and unknown staff ids are both invalid assignees
	_, err := env.Engine.AssignJobService(env.Ctx, job.ID, env.Tenant, env.Admin)
	var badAssignee engine.InvalidAssigneeError
	if !errors.As(err, &badAssignee) {
		t.Fatalf("tenant assignee: expected InvalidAssigneeError, got %v", err)
	}
	_, err = env.Engine.AssignJobService(env.Ctx, job.ID, "S-9999", env.Admin)
	if !errors.As(err, &badAssignee) {
		t.Fatalf("unknown staff: expected InvalidAssigneeError, got %v", err)
	}

	assigned, err := env.Engine.AssignJobService(env.Ctx, job.ID, env.Staff, env.Admin)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if assigned.AssignedTo == nil || *assigned.AssignedTo != env.Staff {
		t.Fatalf("assignee = %+v, want %s", assigned.AssignedTo, env.Staff)
	}
	if assigned.Status != domain.JobAssigned {
		t.Fatalf("status = %s, want assigned", assigned.Status)
	}

	// only admins may assign
	_, err = env.Engine.AssignJobService(env.Ctx, job.ID, env.Staff, env.Staff)
	var notAuth auth.NotAuthorizedError
	if !errors.As(err, &notAuth) {
		t.Fatalf("staff assigner: expected NotAuthorizedError, got %v", err)
	}

	// closed jobs cannot be re-routed
	if _, err := env.Engine.UpdateJobStatus(env.Ctx, job.ID, domain.JobClosed, env.Admin, nil); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err = env.Engine.AssignJobService(env.Ctx, job.ID, env.Staff, env.Admin)
	var badState engine.InvalidStateError
	if !errors.As(err, &badState) {
		t.Fatalf("closed job: expected InvalidStateError, got %v", err)
	}
}

func TestUpdateJobStatusLifecycle(t *testing.T) {
	env := newTestEnv(t)
	slip := env.createSlip(t)
	env.approveSlip(t, slip.ID)
	job := env.createJob(t, slip.ID)

	_, err := env.Engine.UpdateJobStatus(env.Ctx, job.ID, "finished", env.Staff, nil)
	var badArg engine.InvalidArgumentError
	if !errors.As(err, &badArg) {
		t.Fatalf("expected InvalidArgumentError for bad status, got %v", err)
	}

	_, err = env.Engine.UpdateJobStatus(env.Ctx, job.ID, domain.JobInProgress, env.Tenant, nil)
	var notAuth auth.NotAuthorizedError
	if !errors.As(err, &notAuth) {
		t.Fatalf("tenant updater: expected NotAuthorizedError, got %v", err)
	}

	progressNotes := "waiting on parts"
	inProgress, err := env.Engine.UpdateJobStatus(env.Ctx, job.ID, domain.JobInProgress, env.Staff, &progressNotes)
	if err != nil {
		t.Fatalf("to in_progress: %v", err)
	}
	if inProgress.StartedAt == nil {
		t.Fatal("started_at not stamped")
	}
	if inProgress.StaffNotes != progressNotes {
		t.Fatalf("staff_notes = %q, want %q", inProgress.StaffNotes, progressNotes)
	}

	doneNotes := "cartridge replaced"
	completed, err := env.Engine.UpdateJobStatus(env.Ctx, job.ID, domain.JobCompleted, env.Staff, &doneNotes)
	if err != nil {
		t.Fatalf("to completed: %v", err)
	}
	if completed.CompletedAt == nil {
		t.Fatal("completed_at not stamped")
	}
	if completed.CompletionNotes == nil || *completed.CompletionNotes != doneNotes {
		t.Fatalf("completion_notes = %+v, want %q", completed.CompletionNotes, doneNotes)
	}
	if completed.StaffNotes != progressNotes {
		t.Fatalf("staff_notes overwritten on completion: %q", completed.StaffNotes)
	}

	// completion notifies the original reporter
	notifications, err := env.Notify.ListByRecipient(env.Ctx, env.Tenant)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	sawCompletion := false
	for _, n := range notifications {
		if n.NotificationType == notify.TypeJobUpdate && strings.Contains(n.Message, "completed") {
			sawCompletion = true
		}
	}
	if !sawCompletion {
		t.Fatalf("reporter never notified of completion: %+v", notifications)
	}

	// no going back
	_, err = env.Engine.UpdateJobStatus(env.Ctx, job.ID, domain.JobInProgress, env.Staff, nil)
	var badState engine.InvalidStateError
	if !errors.As(err, &badState) {
		t.Fatalf("expected InvalidStateError for completed->in_progress, got %v", err)
	}

	closed, err := env.Engine.UpdateJobStatus(env.Ctx, job.ID, domain.JobClosed, env.Admin, nil)
	if err != nil {
		t.Fatalf("to closed: %v", err)
	}
	if closed.Status != domain.JobClosed {
		t.Fatalf("status = %s, want closed", closed.Status)
	}
	_, err = env.Engine.UpdateJobStatus(env.Ctx, job.ID, domain.JobCompleted, env.Admin, nil)
	if !errors.As(err, &badState) {
		t.Fatalf("closed is terminal, got %v", err)
	}
}

func TestAddWorkNotesAppendOnly(t *testing.T) {
	env := newTestEnv(t)
	slip := env.createSlip(t)
	env.approveSlip(t, slip.ID)
	job := env.createJob(t, slip.ID)

	first, err := env.Engine.AddWorkNotes(env.Ctx, job.ID, "inspected the unit", env.Staff)
	if err != nil {
		t.Fatalf("first notes: %v", err)
	}
	if !strings.Contains(first.StaffNotes, "Ben Reyes: inspected the unit") {
		t.Fatalf("first note not attributed: %q", first.StaffNotes)
	}

	second, err := env.Engine.AddWorkNotes(env.Ctx, job.ID, "ordered parts", "ghost-user")
	if err != nil {
		t.Fatalf("second notes: %v", err)
	}
	if !strings.Contains(second.StaffNotes, "Unknown: ordered parts") {
		t.Fatalf("unresolvable author should read Unknown: %q", second.StaffNotes)
	}
	firstIdx := strings.Index(second.StaffNotes, "inspected the unit")
	secondIdx := strings.Index(second.StaffNotes, "ordered parts")
	if firstIdx < 0 || secondIdx < 0 || firstIdx > secondIdx {
		t.Fatalf("notes not append-only in order: %q", second.StaffNotes)
	}

	_, err = env.Engine.AddWorkNotes(env.Ctx, job.ID, "   ", env.Staff)
	var badArg engine.InvalidArgumentError
	if !errors.As(err, &badArg) {
		t.Fatalf("expected InvalidArgumentError for blank notes, got %v", err)
	}
}

func TestListJobServices(t *testing.T) {
	env := newTestEnv(t)
	slip := env.createSlip(t)
	env.approveSlip(t, slip.ID)
	job := env.createJob(t, slip.ID)
	if _, err := env.Engine.AssignJobService(env.Ctx, job.ID, env.Staff, env.Admin); err != nil {
		t.Fatalf("assign: %v", err)
	}

	byStaff, err := env.Engine.ListJobServicesByStaff(env.Ctx, env.Staff)
	if err != nil {
		t.Fatalf("list by staff: %v", err)
	}
	if len(byStaff) != 1 || byStaff[0].ID != job.ID {
		t.Fatalf("by staff = %+v", byStaff)
	}

	byStatus, err := env.Engine.ListJobServicesByStatus(env.Ctx, domain.JobAssigned)
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(byStatus) != 1 {
		t.Fatalf("by status = %+v", byStatus)
	}

	none, err := env.Engine.ListJobServicesByStaff(env.Ctx, "S-0042")
	if err != nil {
		t.Fatalf("empty list must not error: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected empty slice, got %+v", none)
	}
}

func TestFullLifecycle(t *testing.T) {
	env := newTestEnv(t)

	slip := env.createSlip(t)
	approved := env.approveSlip(t, slip.ID)
	if approved.Status != domain.ConcernApproved {
		t.Fatalf("approve failed: %s", approved.Status)
	}

	job, err := env.Engine.CreateJobService(env.Ctx, slip.ID, env.Admin, engine.JobServiceInput{AssignedTo: &env.Staff})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if _, err := env.Engine.AddWorkNotes(env.Ctx, job.ID, "starting work", env.Staff); err != nil {
		t.Fatalf("notes: %v", err)
	}
	if _, err := env.Engine.UpdateJobStatus(env.Ctx, job.ID, domain.JobInProgress, env.Staff, nil); err != nil {
		t.Fatalf("in_progress: %v", err)
	}
	done := "all fixed"
	if _, err := env.Engine.UpdateJobStatus(env.Ctx, job.ID, domain.JobCompleted, env.Staff, &done); err != nil {
		t.Fatalf("completed: %v", err)
	}
	final, err := env.Engine.UpdateJobStatus(env.Ctx, job.ID, domain.JobClosed, env.Admin, nil)
	if err != nil {
		t.Fatalf("closed: %v", err)
	}
	if final.Status != domain.JobClosed {
		t.Fatalf("final status = %s", final.Status)
	}

	// the tenant saw the whole story: submission ack is for admins, but
	// job creation and completion both reached the reporter
	notifications, err := env.Notify.ListByRecipient(env.Ctx, env.Tenant)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(notifications) < 2 {
		t.Fatalf("expected creation and completion notifications, got %+v", notifications)
	}
}
