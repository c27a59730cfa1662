package facilityfixsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal FacilityFix HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// ConcernSlip represents the API concern slip model.
type ConcernSlip struct {
	ID                string   `json:"id"`
	ReportedBy        string   `json:"reported_by"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Location          string   `json:"location"`
	Category          string   `json:"category"`
	Priority          string   `json:"priority"`
	UnitID            *string  `json:"unit_id,omitempty"`
	Attachments       []string `json:"attachments,omitempty"`
	Status            string   `json:"status"`
	ResolutionType    *string  `json:"resolution_type,omitempty"`
	UrgencyAssessment *string  `json:"urgency_assessment,omitempty"`
	AdminNotes        *string  `json:"admin_notes,omitempty"`
	EvaluatedBy       *string  `json:"evaluated_by,omitempty"`
	EvaluatedAt       *string  `json:"evaluated_at,omitempty"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
}

// JobService represents the API job service model.
type JobService struct {
	ID              string   `json:"id"`
	ConcernSlipID   string   `json:"concern_slip_id"`
	CreatedBy       string   `json:"created_by"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Location        string   `json:"location"`
	Category        string   `json:"category"`
	Priority        string   `json:"priority"`
	Status          string   `json:"status"`
	AssignedTo      *string  `json:"assigned_to,omitempty"`
	ScheduledDate   *string  `json:"scheduled_date,omitempty"`
	EstimatedHours  *float64 `json:"estimated_hours,omitempty"`
	StaffNotes      string   `json:"staff_notes,omitempty"`
	CompletionNotes *string  `json:"completion_notes,omitempty"`
	StartedAt       *string  `json:"started_at,omitempty"`
	CompletedAt     *string  `json:"completed_at,omitempty"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

// Notification represents one event record for a recipient.
type Notification struct {
	ID               string `json:"id"`
	RecipientID      string `json:"recipient_id"`
	Title            string `json:"title"`
	Message          string `json:"message"`
	NotificationType string `json:"notification_type"`
	RelatedID        string `json:"related_id"`
	IsRead           bool   `json:"is_read"`
	CreatedAt        string `json:"created_at"`
}

// UserProfile represents a directory entry.
type UserProfile struct {
	ID           string `json:"id"`
	Role         string `json:"role"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Department   string `json:"department,omitempty"`
	BuildingUnit string `json:"building_unit,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateConcernSlipInput carries the fields of a new slip.
type CreateConcernSlipInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	Category    string   `json:"category"`
	Priority    string   `json:"priority,omitempty"`
	UnitID      *string  `json:"unit_id,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

// CreateConcernSlip files a new concern slip as the authenticated actor.
func (c *Client) CreateConcernSlip(ctx context.Context, in CreateConcernSlipInput) (ConcernSlip, error) {
	var resp ConcernSlip
	err := c.do(ctx, http.MethodPost, "concerns", in, &resp)
	return resp, err
}

// GetConcernSlip fetches one slip.
func (c *Client) GetConcernSlip(ctx context.Context, id string) (ConcernSlip, error) {
	var resp ConcernSlip
	err := c.do(ctx, http.MethodGet, "concerns/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListConcernSlips lists slips, optionally filtered by status or tenant.
func (c *Client) ListConcernSlips(ctx context.Context, status, tenantID string) ([]ConcernSlip, error) {
	endpoint := "concerns" + queryString(map[string]string{"status": status, "tenant_id": tenantID})
	var resp []ConcernSlip
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Evaluation carries the admin verdict; nil fields are left untouched.
type Evaluation struct {
	Status            *string `json:"status,omitempty"`
	ResolutionType    *string `json:"resolution_type,omitempty"`
	UrgencyAssessment *string `json:"urgency_assessment,omitempty"`
	AdminNotes        *string `json:"admin_notes,omitempty"`
}

// EvaluateConcernSlip records an evaluation on a slip.
func (c *Client) EvaluateConcernSlip(ctx context.Context, id string, eval Evaluation) (ConcernSlip, error) {
	var resp ConcernSlip
	err := c.do(ctx, http.MethodPost, "concerns/"+url.PathEscape(id)+"/evaluate", eval, &resp)
	return resp, err
}

// CreateJobServiceInput overrides inherited slip fields on job creation.
type CreateJobServiceInput struct {
	Title          string   `json:"title,omitempty"`
	Description    string   `json:"description,omitempty"`
	Location       string   `json:"location,omitempty"`
	Category       string   `json:"category,omitempty"`
	Priority       string   `json:"priority,omitempty"`
	AssignedTo     *string  `json:"assigned_to,omitempty"`
	ScheduledDate  *string  `json:"scheduled_date,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
}

// CreateJobService converts an approved slip into a job service.
func (c *Client) CreateJobService(ctx context.Context, concernID string, in CreateJobServiceInput) (JobService, error) {
	var resp JobService
	err := c.do(ctx, http.MethodPost, "concerns/"+url.PathEscape(concernID)+"/jobs", in, &resp)
	return resp, err
}

// GetJobService fetches one job.
func (c *Client) GetJobService(ctx context.Context, id string) (JobService, error) {
	var resp JobService
	err := c.do(ctx, http.MethodGet, "jobs/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListJobServices lists jobs, optionally filtered by assignee or status.
func (c *Client) ListJobServices(ctx context.Context, assignedTo, status string) ([]JobService, error) {
	endpoint := "jobs" + queryString(map[string]string{"assigned_to": assignedTo, "status": status})
	var resp []JobService
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AssignJobService routes a job to a staff member.
func (c *Client) AssignJobService(ctx context.Context, id, staffID string) (JobService, error) {
	body := map[string]any{"assigned_to": staffID}
	var resp JobService
	err := c.do(ctx, http.MethodPost, "jobs/"+url.PathEscape(id)+"/assign", body, &resp)
	return resp, err
}

// UpdateJobStatus advances a job through its lifecycle.
func (c *Client) UpdateJobStatus(ctx context.Context, id, status string, notes *string) (JobService, error) {
	body := map[string]any{"status": status}
	if notes != nil {
		body["notes"] = *notes
	}
	var resp JobService
	err := c.do(ctx, http.MethodPost, "jobs/"+url.PathEscape(id)+"/status", body, &resp)
	return resp, err
}

// AddWorkNotes appends a timestamped note to a job.
func (c *Client) AddWorkNotes(ctx context.Context, id, notes string) (JobService, error) {
	body := map[string]any{"notes": notes}
	var resp JobService
	err := c.do(ctx, http.MethodPost, "jobs/"+url.PathEscape(id)+"/notes", body, &resp)
	return resp, err
}

// Notifications lists notifications for the authenticated actor.
func (c *Client) Notifications(ctx context.Context) ([]Notification, error) {
	var resp []Notification
	err := c.do(ctx, http.MethodGet, "notifications", nil, &resp)
	return resp, err
}

// MarkNotificationRead flips the read flag on one notification.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

// GetUser fetches a user profile.
func (c *Client) GetUser(ctx context.Context, id string) (UserProfile, error) {
	var resp UserProfile
	err := c.do(ctx, http.MethodGet, "users/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// DevLogin mints a JWT via the dev-only login endpoint.
func (c *Client) DevLogin(ctx context.Context, actorID, role string) (string, error) {
	body := map[string]any{"actor_id": actorID, "role": role}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "auth/dev/login", body, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/api/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func queryString(params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		if v != "" {
			values.Set(k, v)
		}
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
