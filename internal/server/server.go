package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"drydock/internal/app"
	"drydock/internal/domain"
	"drydock/internal/engine"
	"drydock/internal/repo"
	"drydock/internal/scope"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"permission_denied"`
	Message string         `json:"message" example:"permission denied: project.create"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Drydock API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Drydock API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerMe(group, cfg.Engine)
	registerActors(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerInventory(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerStats(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

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

// handleError maps core errors onto the wire envelope. A scoped-out entity
// and a missing one produce byte-identical responses.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var pd scope.PermissionDeniedError
	if errors.As(err, &pd) {
		return newAPIError(http.StatusForbidden, "permission_denied", err.Error(), map[string]any{"action": pd.Action})
	}
	var it scope.InvalidTransitionError
	if errors.As(err, &it) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{"from": it.From, "to": it.To})
	}
	var se scope.ScopeEmptyError
	if errors.As(err, &se) {
		return newAPIError(http.StatusNotFound, "not_found", "not found", nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", "not found", nil)
	}
	if errors.Is(err, engine.ErrAggregationConflict) {
		return newAPIError(http.StatusConflict, "aggregation_conflict", "report aggregation conflicted; retry", nil)
	}
	var rf engine.RenderFailureError
	if errors.As(err, &rf) {
		return newAPIError(http.StatusBadGateway, "render_failure", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") ||
		strings.Contains(lowered, "required") || strings.Contains(lowered, "cannot"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusForbidden:
		return "permission_denied"
	case http.StatusBadGateway:
		return "render_failure"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// identityFromRequest turns the authenticated principal into the role-bearing
// identity. The role is read from the actors table on every request.
func identityFromRequest(ctx context.Context, e engine.Engine) (scope.Identity, huma.StatusError) {
	principal, authErr := principalFromRequest(ctx)
	if authErr != nil {
		return scope.Identity{}, authErr
	}
	id, err := app.ResolveIdentity(ctx, e.Repo, principal.ActorID)
	if err != nil {
		return scope.Identity{}, newAPIError(http.StatusUnauthorized, "unauthorized", "unknown or inactive actor", nil)
	}
	return id, nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
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
	open := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
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
    <title>Drydock API Docs</title>
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

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current actor",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Repo.GetActor(ctx, nil, id.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{ActorID: a.ID, Username: a.Username, Role: a.Role}}, nil
	})
}

func registerActors(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-actors",
		Method:      http.MethodGet,
		Path:        "/actors",
		Summary:     "List actors",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Actor `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if id.Role != scope.RoleAdmin {
			return nil, handleError(scope.PermissionDeniedError{Action: "actor.list"})
		}
		actors, err := e.Repo.ListActors(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Actor `json:"body"`
		}{Body: nonNilSlice(actors)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-actor",
		Method:        http.MethodPost,
		Path:          "/actors",
		Summary:       "Create actor",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateActorRequest `json:"body"`
	}) (*struct {
		Body domain.Actor `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if id.Role != scope.RoleAdmin {
			return nil, handleError(scope.PermissionDeniedError{Action: "actor.create"})
		}
		if strings.TrimSpace(input.Body.Username) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "username is required", nil)
		}
		if _, err := scope.ParseRole(input.Body.Role); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		a := domain.Actor{
			ID:        stringOrEmpty(input.Body.ID),
			Username:  input.Body.Username,
			FullName:  stringOrEmpty(input.Body.FullName),
			Role:      input.Body.Role,
			Active:    true,
			CreatedAt: e.Now().UTC().Format(time.RFC3339),
		}
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if err := e.Repo.InsertActor(ctx, nil, a); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Actor `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-actor-role",
		Method:      http.MethodPatch,
		Path:        "/actors/{actor_id}/role",
		Summary:     "Change actor role",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActorID string              `path:"actor_id"`
		Body    SetActorRoleRequest `json:"body"`
	}) (*struct {
		Body domain.Actor `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if id.Role != scope.RoleAdmin {
			return nil, handleError(scope.PermissionDeniedError{Action: "actor.role.set"})
		}
		if _, err := scope.ParseRole(input.Body.Role); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		if err := e.Repo.SetActorRole(ctx, input.ActorID, input.Body.Role); err != nil {
			return nil, handleError(err)
		}
		a, err := e.Repo.GetActor(ctx, nil, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Actor `json:"body"`
		}{Body: a}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if id.Role != scope.RoleAdmin {
			return nil, handleError(scope.PermissionDeniedError{Action: "apikey.create"})
		}
		if strings.TrimSpace(input.Body.ActorID) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		if _, err := e.Repo.GetActor(ctx, nil, input.Body.ActorID); err != nil {
			return nil, handleError(err)
		}
		// The plaintext key is only ever returned here.
		plaintext := uuid.NewString() + uuid.NewString()
		key := domain.APIKey{
			ID:      uuid.NewString(),
			ActorID: input.Body.ActorID,
			Name:    stringOrEmpty(input.Body.Name),
			KeyHash: repo.HashAPIKey(plaintext),
		}
		if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
			return nil, handleError(err)
		}
		resp := apiKeyResponse(key)
		resp.Key = plaintext
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List API keys",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ActorID string `query:"actor_id"`
	}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if id.Role != scope.RoleAdmin {
			return nil, handleError(scope.PermissionDeniedError{Action: "apikey.list"})
		}
		keys, err := e.Repo.ListAPIKeys(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			resp = append(resp, apiKeyResponse(k))
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{key_id}",
		Summary:     "Delete API key",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if id.Role != scope.RoleAdmin {
			return nil, handleError(scope.PermissionDeniedError{Action: "apikey.delete"})
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create retrofit project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, id, engine.ProjectCreateOptions{
			ID:          stringOrEmpty(input.Body.ID),
			Name:        input.Body.Name,
			VesselName:  stringOrEmpty(input.Body.VesselName),
			VesselType:  stringOrEmpty(input.Body.VesselType),
			VesselOwner: stringOrEmpty(input.Body.VesselOwner),
			Status:      stringOrEmpty(input.Body.Status),
			Budget:      input.Body.Budget,
			Spending:    input.Body.Spending,
			StartDate:   input.Body.StartDate,
			EndDate:     input.Body.EndDate,
			Description: stringOrEmpty(input.Body.Description),
			MemberIDs:   input.Body.MemberIDs,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List visible projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListProjects(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.GetProject(ctx, id, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProject(ctx, id, engine.ProjectUpdateOptions{
			ID:          input.ProjectID,
			Name:        input.Body.Name,
			VesselName:  input.Body.VesselName,
			VesselType:  input.Body.VesselType,
			VesselOwner: input.Body.VesselOwner,
			Status:      input.Body.Status,
			Budget:      input.Body.Budget,
			Spending:    input.Body.Spending,
			StartDate:   input.Body.StartDate,
			EndDate:     input.Body.EndDate,
			Description: input.Body.Description,
			MemberIDs:   input.Body.MemberIDs,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}",
		Summary:     "Delete project and its tasks",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteProject(ctx, id, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-project-members",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/members",
		Summary:     "Replace project team",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      SetMembersRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		members := input.Body.MemberIDs
		p, err := e.UpdateProject(ctx, id, engine.ProjectUpdateOptions{
			ID:        input.ProjectID,
			MemberIDs: &members,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-members",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/members",
		Summary:     "List project team",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.Actor `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := e.GetProject(ctx, id, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		team, err := e.Repo.ListMemberActors(ctx, nil, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Actor `json:"body"`
		}{Body: nonNilSlice(team)}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.TaskCreateOptions{
			ID:          stringOrEmpty(input.Body.ID),
			ProjectID:   input.ProjectID,
			Name:        input.Body.Name,
			Description: stringOrEmpty(input.Body.Description),
			AssignedTo:  stringOrEmpty(input.Body.AssignedTo),
			Priority:    stringOrEmpty(input.Body.Priority),
			Status:      stringOrEmpty(input.Body.Status),
			StartDate:   input.Body.StartDate,
			DueDate:     input.Body.DueDate,
		}
		if input.Body.IsMaintenance != nil {
			opts.IsMaintenance = *input.Body.IsMaintenance
		}
		t, err := e.CreateTask(ctx, id, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List visible tasks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		tasks, err := e.ListTasks(ctx, id, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: nonNilSlice(tasks)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.GetTask(ctx, id, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}",
		Summary:     "Update task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UpdateTask(ctx, id, engine.TaskUpdateOptions{
			ID:            input.TaskID,
			Name:          input.Body.Name,
			Description:   input.Body.Description,
			AssignedTo:    input.Body.AssignedTo,
			Priority:      input.Body.Priority,
			Status:        input.Body.Status,
			IsMaintenance: input.Body.IsMaintenance,
			StartDate:     input.Body.StartDate,
			DueDate:       input.Body.DueDate,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-task-status",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/status",
		Summary:     "Change task status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		TaskID string               `path:"task_id"`
		Body   SetTaskStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		status := input.Body.Status
		t, err := e.UpdateTask(ctx, id, engine.TaskUpdateOptions{
			ID:     input.TaskID,
			Status: &status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{task_id}",
		Summary:     "Delete task",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct{}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, id, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerInventory(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-inventory-item",
		Method:        http.MethodPost,
		Path:          "/inventory",
		Summary:       "Create inventory item",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateInventoryItemRequest `json:"body"`
	}) (*struct {
		Body InventoryItemResponse `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		it, err := e.CreateInventoryItem(ctx, id, engine.InventoryItemOptions{
			ID:           stringOrEmpty(input.Body.ID),
			Name:         input.Body.Name,
			Category:     stringOrEmpty(input.Body.Category),
			Description:  stringOrEmpty(input.Body.Description),
			Quantity:     input.Body.Quantity,
			Unit:         stringOrEmpty(input.Body.Unit),
			UnitPrice:    input.Body.UnitPrice,
			ReorderLevel: input.Body.ReorderLevel,
			Supplier:     stringOrEmpty(input.Body.Supplier),
			Location:     stringOrEmpty(input.Body.Location),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InventoryItemResponse `json:"body"`
		}{Body: inventoryResponse(it)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-inventory",
		Method:      http.MethodGet,
		Path:        "/inventory",
		Summary:     "List inventory",
	}, func(ctx context.Context, input *struct {
		LowStock bool `query:"low_stock"`
	}) (*struct {
		Body []InventoryItemResponse `json:"body"`
	}, error) {
		if _, authErr := identityFromRequest(ctx, e); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListInventory(ctx, input.LowStock)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []InventoryItemResponse `json:"body"`
		}{Body: mapInventory(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-inventory-item",
		Method:      http.MethodGet,
		Path:        "/inventory/{item_id}",
		Summary:     "Get inventory item",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body InventoryItemResponse `json:"body"`
	}, error) {
		if _, authErr := identityFromRequest(ctx, e); authErr != nil {
			return nil, authErr
		}
		it, err := e.GetInventoryItem(ctx, input.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InventoryItemResponse `json:"body"`
		}{Body: inventoryResponse(it)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-inventory-item",
		Method:      http.MethodPatch,
		Path:        "/inventory/{item_id}",
		Summary:     "Update inventory item",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ItemID string                     `path:"item_id"`
		Body   UpdateInventoryItemRequest `json:"body"`
	}) (*struct {
		Body InventoryItemResponse `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		it, err := e.UpdateInventoryItem(ctx, id, engine.InventoryUpdateOptions{
			ID:           input.ItemID,
			Name:         input.Body.Name,
			Category:     input.Body.Category,
			Description:  input.Body.Description,
			Unit:         input.Body.Unit,
			UnitPrice:    input.Body.UnitPrice,
			ReorderLevel: input.Body.ReorderLevel,
			Supplier:     input.Body.Supplier,
			Location:     input.Body.Location,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InventoryItemResponse `json:"body"`
		}{Body: inventoryResponse(it)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-inventory-item",
		Method:      http.MethodDelete,
		Path:        "/inventory/{item_id}",
		Summary:     "Delete inventory item",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct{}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteInventoryItem(ctx, id, input.ItemID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-stock-move",
		Method:      http.MethodPost,
		Path:        "/inventory/{item_id}/stock",
		Summary:     "Record stock movement",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ItemID string           `path:"item_id"`
		Body   StockMoveRequest `json:"body"`
	}) (*struct {
		Body InventoryItemResponse `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		it, err := e.RecordStockMove(ctx, id, engine.StockMoveOptions{
			ItemID:    input.ItemID,
			ProjectID: stringOrEmpty(input.Body.ProjectID),
			Kind:      input.Body.Kind,
			Quantity:  input.Body.Quantity,
			Notes:     stringOrEmpty(input.Body.Notes),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InventoryItemResponse `json:"body"`
		}{Body: inventoryResponse(it)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-stock-transactions",
		Method:      http.MethodGet,
		Path:        "/inventory/{item_id}/transactions",
		Summary:     "List stock transactions",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body []domain.StockTransaction `json:"body"`
	}, error) {
		if _, authErr := identityFromRequest(ctx, e); authErr != nil {
			return nil, authErr
		}
		if _, err := e.GetInventoryItem(ctx, input.ItemID); err != nil {
			return nil, handleError(err)
		}
		txs, err := e.Repo.ListStockTransactions(ctx, input.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.StockTransaction `json:"body"`
		}{Body: nonNilSlice(txs)}, nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "generate-report",
		Method:        http.MethodPost,
		Path:          "/reports",
		Summary:       "Generate report",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		Body GenerateReportRequest `json:"body"`
	}) (*struct {
		Body domain.ReportRecord `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		spec := domain.ReportSpec{
			Name:            stringOrEmpty(input.Body.Name),
			Type:            input.Body.Type,
			TargetProjectID: input.Body.TargetProjectID,
		}
		if input.Body.LowStockOnly != nil {
			spec.LowStockOnly = *input.Body.LowStockOnly
		}
		rec, err := e.GenerateReport(ctx, id, spec)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ReportRecord `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/reports",
		Summary:     "List reports",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.ReportRecord `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		recs, err := e.ListReports(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ReportRecord `json:"body"`
		}{Body: nonNilSlice(recs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/reports/{report_id}",
		Summary:     "Get report record",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ReportID string `path:"report_id"`
	}) (*struct {
		Body domain.ReportRecord `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.GetReport(ctx, id, input.ReportID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ReportRecord `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-report",
		Method:      http.MethodDelete,
		Path:        "/reports/{report_id}",
		Summary:     "Delete report",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ReportID string `path:"report_id"`
	}) (*struct{}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteReport(ctx, id, input.ReportID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerStats(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard-stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Role-scoped dashboard counters",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.DashboardStats `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		stats, err := e.DashboardStats(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.DashboardStats `json:"body"`
		}{Body: stats}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		id, authErr := identityFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		// The audit trail spans every project; only managers read it.
		if !id.Manages() {
			return nil, handleError(scope.PermissionDeniedError{Action: "events.read"})
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.EventsAfter(ctx, limit+1, cursorID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
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
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
