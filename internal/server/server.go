package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"facilityfix/internal/directory"
	"facilityfix/internal/domain"
	"facilityfix/internal/engine"
	"facilityfix/internal/engine/auth"
	"facilityfix/internal/notify"
	"facilityfix/internal/store"
)

// Config for the HTTP API handler.
type Config struct {
	Engine    engine.Engine
	Directory directory.Service
	Notify    notify.Dispatcher
	BasePath  string
	Auth      AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_state"`
	Message string         `json:"message" example:"concern slip is not approved"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the FacilityFix API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Directory))
	hcfg := huma.DefaultConfig("FacilityFix API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerConcerns(group, cfg.Engine)
	registerJobs(group, cfg.Engine)
	registerNotifications(group, cfg.Notify)
	registerUsers(group, cfg.Directory)
	registerAPIKeys(group, cfg.Directory)
	if cfg.Auth.DevLogin {
		registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var notAuth auth.NotAuthorizedError
	if errors.As(err, &notAuth) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"operation": notAuth.Operation})
	}
	var notFound engine.NotFoundError
	if errors.As(err, &notFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var badState engine.InvalidStateError
	if errors.As(err, &badState) {
		return newAPIError(http.StatusConflict, "invalid_state", err.Error(), map[string]any{"status": badState.Status})
	}
	var conflict engine.ConflictError
	if errors.As(err, &conflict) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	var badArg engine.InvalidArgumentError
	if errors.As(err, &badArg) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": badArg.Field})
	}
	var badAssignee engine.InvalidAssigneeError
	if errors.As(err, &badAssignee) {
		return newAPIError(http.StatusUnprocessableEntity, "invalid_assignee", err.Error(), map[string]any{"assigned_to": badAssignee.AssigneeID})
	}
	var persistence engine.PersistenceError
	if errors.As(err, &persistence) {
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, directory.ErrUnknownActor) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, store.ErrExists) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerConcerns(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-concern-slip",
		Method:        http.MethodPost,
		Path:          "/concerns",
		Summary:       "Submit concern slip",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateConcernSlipRequest `json:"body"`
	}) (*struct {
		Body domain.ConcernSlip `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		slip, err := e.CreateConcernSlip(ctx, actorID, toConcernSlipInput(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ConcernSlip `json:"body"`
		}{Body: slip}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-concern-slips",
		Method:      http.MethodGet,
		Path:        "/concerns",
		Summary:     "List concern slips",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status"`
		TenantID string `query:"tenant_id"`
	}) (*struct {
		Body []domain.ConcernSlip `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		var (
			slips []domain.ConcernSlip
			err   error
		)
		switch {
		case input.TenantID != "":
			slips, err = e.ListConcernSlipsByTenant(ctx, input.TenantID)
		case input.Status != "":
			slips, err = e.ListConcernSlipsByStatus(ctx, input.Status)
		default:
			slips, err = e.ListAllConcernSlips(ctx)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ConcernSlip `json:"body"`
		}{Body: slips}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-concern-slip",
		Method:      http.MethodGet,
		Path:        "/concerns/{concern_id}",
		Summary:     "Get concern slip",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ConcernID string `path:"concern_id"`
	}) (*struct {
		Body domain.ConcernSlip `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		slip, err := e.GetConcernSlip(ctx, input.ConcernID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ConcernSlip `json:"body"`
		}{Body: slip}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "evaluate-concern-slip",
		Method:      http.MethodPost,
		Path:        "/concerns/{concern_id}/evaluate",
		Summary:     "Evaluate concern slip",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ConcernID string                     `path:"concern_id"`
		Body      EvaluateConcernSlipRequest `json:"body"`
	}) (*struct {
		Body domain.ConcernSlip `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		slip, err := e.EvaluateConcernSlip(ctx, input.ConcernID, actorID, toEvaluation(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ConcernSlip `json:"body"`
		}{Body: slip}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-job-service",
		Method:        http.MethodPost,
		Path:          "/concerns/{concern_id}/jobs",
		Summary:       "Create job service from concern slip",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ConcernID string                  `path:"concern_id"`
		Body      CreateJobServiceRequest `json:"body"`
	}) (*struct {
		Body domain.JobService `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		job, err := e.CreateJobService(ctx, input.ConcernID, actorID, toJobServiceInput(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.JobService `json:"body"`
		}{Body: job}, nil
	})
}

func registerJobs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-job-services",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List job services",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		AssignedTo string `query:"assigned_to"`
		Status     string `query:"status"`
	}) (*struct {
		Body []domain.JobService `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		var (
			jobs []domain.JobService
			err  error
		)
		switch {
		case input.AssignedTo != "":
			jobs, err = e.ListJobServicesByStaff(ctx, input.AssignedTo)
		case input.Status != "":
			jobs, err = e.ListJobServicesByStatus(ctx, input.Status)
		default:
			jobs, err = e.ListAllJobServices(ctx)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.JobService `json:"body"`
		}{Body: jobs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-job-service",
		Method:      http.MethodGet,
		Path:        "/jobs/{job_id}",
		Summary:     "Get job service",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		JobID string `path:"job_id"`
	}) (*struct {
		Body domain.JobService `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		job, err := e.GetJobService(ctx, input.JobID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.JobService `json:"body"`
		}{Body: job}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-job-service",
		Method:      http.MethodPost,
		Path:        "/jobs/{job_id}/assign",
		Summary:     "Assign job service to staff",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		JobID string                  `path:"job_id"`
		Body  AssignJobServiceRequest `json:"body"`
	}) (*struct {
		Body domain.JobService `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.AssignedTo == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "assigned_to is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		job, err := e.AssignJobService(ctx, input.JobID, input.Body.AssignedTo, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.JobService `json:"body"`
		}{Body: job}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-job-status",
		Method:      http.MethodPost,
		Path:        "/jobs/{job_id}/status",
		Summary:     "Update job service status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		JobID string                 `path:"job_id"`
		Body  UpdateJobStatusRequest `json:"body"`
	}) (*struct {
		Body domain.JobService `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		job, err := e.UpdateJobStatus(ctx, input.JobID, input.Body.Status, actorID, input.Body.Notes)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.JobService `json:"body"`
		}{Body: job}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-work-notes",
		Method:      http.MethodPost,
		Path:        "/jobs/{job_id}/notes",
		Summary:     "Append work notes",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		JobID string              `path:"job_id"`
		Body  AddWorkNotesRequest `json:"body"`
	}) (*struct {
		Body domain.JobService `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		job, err := e.AddWorkNotes(ctx, input.JobID, input.Body.Notes, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.JobService `json:"body"`
		}{Body: job}, nil
	})
}

func registerNotifications(api huma.API, d notify.Dispatcher) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "List notifications for the current actor",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Notification `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := d.ListByRecipient(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Notification `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-notification-read",
		Method:      http.MethodPost,
		Path:        "/notifications/{notification_id}/read",
		Summary:     "Mark notification as read",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		NotificationID string `path:"notification_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := d.MarkRead(ctx, input.NotificationID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerUsers(api huma.API, dir directory.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user profile",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body domain.UserProfile `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireAdminOrBootstrap(ctx, dir); err != nil {
			return nil, handleError(err)
		}
		profile, err := dir.CreateProfile(ctx, domain.UserProfile{
			Role:         input.Body.Role,
			FirstName:    input.Body.FirstName,
			LastName:     input.Body.LastName,
			Department:   input.Body.Department,
			BuildingUnit: input.Body.BuildingUnit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.UserProfile `json:"body"`
		}{Body: profile}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List user profiles",
	}, func(ctx context.Context, input *struct {
		Role string `query:"role"`
	}) (*struct {
		Body []domain.UserProfile `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := dir.ListProfiles(ctx, input.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.UserProfile `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}",
		Summary:     "Get user profile",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body domain.UserProfile `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		profile, err := dir.ResolveProfile(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.UserProfile `json:"body"`
		}{Body: profile}, nil
	})
}

// requireAdminOrBootstrap gates directory mutations. An empty directory
// accepts any authenticated caller so the first admin can be created at all.
func requireAdminOrBootstrap(ctx context.Context, dir directory.Service) error {
	actorID, authErr := actorIDFromContext(ctx)
	if authErr != nil {
		return authErr
	}
	profile, err := dir.ResolveProfile(ctx, actorID)
	if err != nil {
		if errors.Is(err, directory.ErrUnknownActor) {
			existing, listErr := dir.ListProfiles(ctx, "")
			if listErr != nil {
				return listErr
			}
			if len(existing) == 0 {
				return nil
			}
			return auth.NotAuthorizedError{ActorID: actorID, Operation: "directory.manage"}
		}
		return err
	}
	if !auth.IsAdmin(profile) {
		return auth.NotAuthorizedError{ActorID: actorID, Operation: "directory.manage"}
	}
	return nil
}

func registerAPIKeys(api huma.API, dir directory.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Issue API key",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyCreatedResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.ActorID != actorID {
			if err := requireAdminOrBootstrap(ctx, dir); err != nil {
				return nil, handleError(err)
			}
		}
		plain, key, err := dir.CreateAPIKey(ctx, input.Body.ActorID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyCreatedResponse `json:"body"`
		}{Body: APIKeyCreatedResponse{Key: plain, APIKey: key}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List API keys for an actor",
	}, func(ctx context.Context, input *struct {
		ActorID string `query:"actor_id"`
	}) (*struct {
		Body []domain.APIKey `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		target := input.ActorID
		if target == "" {
			target = actorID
		}
		if target != actorID {
			if err := requireAdminOrBootstrap(ctx, dir); err != nil {
				return nil, handleError(err)
			}
		}
		items, err := dir.ListAPIKeys(ctx, target)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.APIKey `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-api-key",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{key_id}",
		Summary:     "Revoke API key",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if err := requireAdminOrBootstrap(ctx, dir); err != nil {
			return nil, handleError(err)
		}
		if err := dir.RevokeAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, input.Body.Role)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	devLoginPath := path.Join(basePath, "auth/dev/login")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	if !strings.HasPrefix(devLoginPath, "/") {
		devLoginPath = "/" + devLoginPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath || route == devLoginPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>FacilityFix API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}
