package server

import (
	"facilityfix/internal/domain"
	"facilityfix/internal/engine"
)

// Request payloads

type CreateConcernSlipRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	Category    string   `json:"category"`
	Priority    string   `json:"priority,omitempty" enum:"low,medium,high,critical"`
	UnitID      *string  `json:"unit_id,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

type EvaluateConcernSlipRequest struct {
	Status            *string `json:"status,omitempty"`
	ResolutionType    *string `json:"resolution_type,omitempty"`
	UrgencyAssessment *string `json:"urgency_assessment,omitempty"`
	AdminNotes        *string `json:"admin_notes,omitempty"`
}

type CreateJobServiceRequest struct {
	Title          string   `json:"title,omitempty"`
	Description    string   `json:"description,omitempty"`
	Location       string   `json:"location,omitempty"`
	Category       string   `json:"category,omitempty"`
	Priority       string   `json:"priority,omitempty" enum:"low,medium,high,critical"`
	AssignedTo     *string  `json:"assigned_to,omitempty"`
	ScheduledDate  *string  `json:"scheduled_date,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
}

type AssignJobServiceRequest struct {
	AssignedTo string `json:"assigned_to"`
}

type UpdateJobStatusRequest struct {
	Status string  `json:"status" enum:"assigned,in_progress,completed,closed"`
	Notes  *string `json:"notes,omitempty"`
}

type AddWorkNotesRequest struct {
	Notes string `json:"notes"`
}

type CreateUserRequest struct {
	Role         string `json:"role" enum:"admin,staff,tenant"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Department   string `json:"department,omitempty"`
	BuildingUnit string `json:"building_unit,omitempty"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role,omitempty" enum:"admin,staff,tenant"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type APIKeyCreatedResponse struct {
	Key    string        `json:"key"`
	APIKey domain.APIKey `json:"api_key"`
}

func toJobServiceInput(r CreateJobServiceRequest) engine.JobServiceInput {
	return engine.JobServiceInput{
		Title:          r.Title,
		Description:    r.Description,
		Location:       r.Location,
		Category:       r.Category,
		Priority:       r.Priority,
		AssignedTo:     r.AssignedTo,
		ScheduledDate:  r.ScheduledDate,
		EstimatedHours: r.EstimatedHours,
	}
}

func toConcernSlipInput(r CreateConcernSlipRequest) engine.ConcernSlipInput {
	return engine.ConcernSlipInput{
		Title:       r.Title,
		Description: r.Description,
		Location:    r.Location,
		Category:    r.Category,
		Priority:    r.Priority,
		UnitID:      r.UnitID,
		Attachments: r.Attachments,
	}
}

func toEvaluation(r EvaluateConcernSlipRequest) engine.Evaluation {
	return engine.Evaluation{
		Status:            r.Status,
		ResolutionType:    r.ResolutionType,
		UrgencyAssessment: r.UrgencyAssessment,
		AdminNotes:        r.AdminNotes,
	}
}
