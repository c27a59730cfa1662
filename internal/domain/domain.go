package domain

// Roles recognized by the authorization policy. Role checks are exact string
// matches; there is no hierarchy.
const (
	RoleAdmin  = "admin"
	RoleStaff  = "staff"
	RoleTenant = "tenant"
)

// Concern slip statuses driving the workflow. The status set is open: admins
// may route a slip to other values during evaluation.
const (
	ConcernPending  = "pending"
	ConcernApproved = "approved"
	ConcernRejected = "rejected"
)

// Job service statuses, ordered lifecycle.
const (
	JobAssigned   = "assigned"
	JobInProgress = "in_progress"
	JobCompleted  = "completed"
	JobClosed     = "closed"
)

// ResolutionJobService is stamped on a concern slip once it has been routed
// to a job service.
const ResolutionJobService = "job_service"

// Priorities accepted on concern slips and job services.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// ConcernSlip is a tenant-originated maintenance report, the entry artifact
// of the workflow.
type ConcernSlip struct {
	ID                string   `json:"id"`
	ReportedBy        string   `json:"reported_by"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Location          string   `json:"location"`
	Category          string   `json:"category"`
	Priority          string   `json:"priority" enum:"low,medium,high,critical"`
	UnitID            *string  `json:"unit_id,omitempty"`
	Attachments       []string `json:"attachments,omitempty"`
	Status            string   `json:"status"`
	ResolutionType    *string  `json:"resolution_type,omitempty"`
	UrgencyAssessment *string  `json:"urgency_assessment,omitempty"`
	AdminNotes        *string  `json:"admin_notes,omitempty"`
	EvaluatedBy       *string  `json:"evaluated_by,omitempty"`
	EvaluatedAt       *string  `json:"evaluated_at,omitempty" format:"date-time"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
	UpdatedAt         string   `json:"updated_at" format:"date-time"`
	Version           int64    `json:"version,omitempty"`
}

// JobService is a dispatchable unit of maintenance work derived from exactly
// one approved concern slip.
type JobService struct {
	ID              string   `json:"id"`
	ConcernSlipID   string   `json:"concern_slip_id"`
	CreatedBy       string   `json:"created_by"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Location        string   `json:"location"`
	Category        string   `json:"category"`
	Priority        string   `json:"priority" enum:"low,medium,high,critical"`
	Status          string   `json:"status" enum:"assigned,in_progress,completed,closed"`
	AssignedTo      *string  `json:"assigned_to,omitempty"`
	ScheduledDate   *string  `json:"scheduled_date,omitempty"`
	EstimatedHours  *float64 `json:"estimated_hours,omitempty"`
	StaffNotes      string   `json:"staff_notes,omitempty"`
	CompletionNotes *string  `json:"completion_notes,omitempty"`
	StartedAt       *string  `json:"started_at,omitempty" format:"date-time"`
	CompletedAt     *string  `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt       string   `json:"created_at" format:"date-time"`
	UpdatedAt       string   `json:"updated_at" format:"date-time"`
	Version         int64    `json:"version,omitempty"`
}

// Notification is one fire-and-forget event record. The workflows create
// notifications but never mutate them; only the recipient flips is_read.
type Notification struct {
	ID               string `json:"id"`
	RecipientID      string `json:"recipient_id"`
	Title            string `json:"title"`
	Message          string `json:"message"`
	NotificationType string `json:"notification_type"`
	RelatedID        string `json:"related_id"`
	IsRead           bool   `json:"is_read"`
	CreatedAt        string `json:"created_at" format:"date-time"`
}

// UserProfile is read-only to the workflows; it is consulted for
// authorization and notification targeting.
type UserProfile struct {
	ID           string `json:"id"`
	Role         string `json:"role" enum:"admin,staff,tenant"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Department   string `json:"department,omitempty"`
	BuildingUnit string `json:"building_unit,omitempty"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

// APIKey binds a hashed key to an actor identity for server authentication.
type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	Revoked   bool   `json:"revoked,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
