package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"riskline/internal/alerts"
	"riskline/internal/anomaly"
	"riskline/internal/config"
	"riskline/internal/domain"
	"riskline/internal/model"
	"riskline/internal/pipeline"
	"riskline/internal/repo"
	"riskline/internal/risk"
)

// Config wires the HTTP API handler.
type Config struct {
	Repo       repo.Repo
	Classifier *risk.Classifier
	Detector   *anomaly.Detector
	Runner     *pipeline.Runner
	App        *config.Config
	BasePath   string
	Auth       AuthConfig
	Now        func() time.Time
}

func (cfg Config) now() time.Time {
	if cfg.Now != nil {
		return cfg.Now()
	}
	return time.Now()
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"model_not_trained"`
	Message string         `json:"message" example:"model artifact not trained"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Riskline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
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
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Repo))
	hcfg := huma.DefaultConfig("Riskline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerProjects(group, cfg)
	registerTasks(group, cfg)
	registerEmployees(group, cfg)
	registerRisk(group, cfg)
	registerProgress(group, cfg)
	registerAlerts(group, cfg)
	registerPipeline(group, cfg)
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
	if errors.Is(err, model.ErrModelNotTrained) {
		return newAPIError(http.StatusServiceUnavailable, "model_not_trained", err.Error(), nil)
	}
	if errors.Is(err, pipeline.ErrRunInProgress) {
		return newAPIError(http.StatusConflict, "run_in_progress", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
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
	case http.StatusServiceUnavailable:
		return "model_not_trained"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
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
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Riskline API Docs</title>
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

func registerProjects(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Name) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		now := cfg.now().UTC().Format(time.RFC3339)
		p := domain.Project{
			ID:        uuid.NewString(),
			Name:      input.Body.Name,
			ManagerID: input.Body.ManagerID,
			MemberIDs: input.Body.MemberIDs,
			StartDate: input.Body.StartDate,
			Deadline:  input.Body.Deadline,
			Status:    domain.ProjectPlanning,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if input.Body.ID != nil && *input.Body.ID != "" {
			p.ID = *input.Body.ID
		}
		if input.Body.Status != "" {
			p.Status = input.Body.Status
		}
		if err := cfg.Repo.InsertProject(ctx, p); err != nil {
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
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		items, err := cfg.Repo.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
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
		p, err := cfg.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})
}

func registerTasks(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Title) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		if _, err := cfg.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		now := cfg.now().UTC().Format(time.RFC3339)
		t := domain.Task{
			ID:          uuid.NewString(),
			ProjectID:   input.ProjectID,
			AssigneeID:  input.Body.AssigneeID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Status:      domain.TaskPending,
			Priority:    "medium",
			Deadline:    input.Body.Deadline,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if input.Body.ID != nil && *input.Body.ID != "" {
			t.ID = *input.Body.ID
		}
		if input.Body.Priority != "" {
			t.Priority = input.Body.Priority
		}
		if err := cfg.Repo.InsertTask(ctx, t); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks",
		Summary:     "List project tasks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		if _, err := cfg.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		items, err := cfg.Repo.TasksByProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: items}, nil
	})
}

func registerEmployees(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-employee",
		Method:        http.MethodPost,
		Path:          "/employees",
		Summary:       "Create employee",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateEmployeeRequest `json:"body"`
	}) (*struct {
		Body domain.Employee `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Name) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		e := domain.Employee{
			ID:         uuid.NewString(),
			Name:       input.Body.Name,
			Email:      input.Body.Email,
			Role:       "employee",
			TrustScore: 100,
		}
		if input.Body.ID != nil && *input.Body.ID != "" {
			e.ID = *input.Body.ID
		}
		if input.Body.Role != "" {
			e.Role = input.Body.Role
		}
		if input.Body.TrustScore != nil {
			e.TrustScore = *input.Body.TrustScore
		}
		if err := cfg.Repo.InsertEmployee(ctx, e); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Employee `json:"body"`
		}{Body: e}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-employees",
		Method:      http.MethodGet,
		Path:        "/employees",
		Summary:     "List employees",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Employee `json:"body"`
	}, error) {
		byID, err := cfg.Repo.AllEmployees(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		items := make([]domain.Employee, 0, len(byID))
		for _, e := range byID {
			items = append(items, e)
		}
		sortEmployees(items)
		return &struct {
			Body []domain.Employee `json:"body"`
		}{Body: items}, nil
	})
}

// registerRisk exposes on-demand scoring. The computed score is persisted so
// dashboards see the same value the pipeline would write.
func registerRisk(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "project-risk",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/risk",
		Summary:     "Predict project delivery risk",
		Errors:      []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body risk.Result `json:"body"`
	}, error) {
		p, err := cfg.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		tasks, err := cfg.Repo.TasksByProject(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		history := make(map[string][]domain.ProgressReport, len(tasks))
		for _, t := range tasks {
			reports, err := cfg.Repo.HistoryByTask(ctx, t.ID)
			if err != nil {
				return nil, handleError(err)
			}
			history[t.ID] = reports
		}
		employees, err := cfg.Repo.AllEmployees(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res, err := cfg.Classifier.PredictProjectRisk(p, tasks, history, employees)
		if err != nil {
			return nil, handleError(err)
		}
		// Status transitions stay with the batch pipeline; on-demand scoring
		// only refreshes the number.
		if err := cfg.Repo.UpdateRiskScore(ctx, p.ID, res.RiskPercent, ""); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body risk.Result `json:"body"`
		}{Body: res}, nil
	})
}

func registerProgress(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-progress",
		Method:        http.MethodPost,
		Path:          "/progress",
		Summary:       "Submit daily progress report",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body SubmitProgressRequest `json:"body"`
	}) (*struct {
		Body SubmitProgressResponse `json:"body"`
	}, error) {
		if input.Body.TaskID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "task_id is required", nil)
		}
		if input.Body.EmployeeID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "employee_id is required", nil)
		}
		task, err := cfg.Repo.GetTask(ctx, input.Body.TaskID)
		if err != nil {
			return nil, handleError(err)
		}

		// Reports always land on today's row. Past days are immutable.
		now := cfg.now()
		date := now.UTC().Format("2006-01-02")
		report := domain.ProgressReport{
			ID:                uuid.NewString(),
			TaskID:            task.ID,
			EmployeeID:        input.Body.EmployeeID,
			ProjectID:         task.ProjectID,
			Date:              date,
			HoursWorked:       input.Body.HoursWorked,
			CompletionPercent: input.Body.CompletionPercent,
			Issues:            input.Body.Issues,
			BlockerDesc:       input.Body.BlockerDesc,
			Notes:             input.Body.Notes,
			SubmittedAt:       now.UTC().Format(time.RFC3339),
		}

		history, err := cfg.Repo.HistoryByTask(ctx, task.ID)
		if err != nil {
			return nil, handleError(err)
		}
		check, err := cfg.Detector.CheckProgressReport(report, previousCompletion(history, date))
		if err != nil {
			return nil, handleError(err)
		}
		report.AnomalyFlag = check.IsAnomaly

		if err := cfg.Repo.UpsertReport(ctx, report); err != nil {
			return nil, handleError(err)
		}

		if check.IsAnomaly {
			w := alerts.Writer{Store: cfg.Repo, Now: cfg.Now}
			reason := "Unusual progress report detected."
			if check.Reason != nil {
				reason = *check.Reason
			}
			employeeName := input.Body.EmployeeID
			if emp, err := cfg.Repo.GetEmployee(ctx, input.Body.EmployeeID); err == nil {
				employeeName = emp.Name
			}
			message := fmt.Sprintf("%s submitted a flagged report on %q. %s", employeeName, task.Title, reason)
			if _, err := w.Emit(ctx, domain.Alert{
				Type:       domain.AlertFraudDetection,
				Severity:   domain.SeverityWarning,
				Title:      "Suspicious Report Detected",
				Message:    message,
				ProjectID:  alerts.Ref(task.ProjectID),
				TaskID:     alerts.Ref(task.ID),
				EmployeeID: alerts.Ref(input.Body.EmployeeID),
			}); err != nil {
				return nil, handleError(err)
			}
		}

		status := ""
		switch {
		case report.CompletionPercent >= 100:
			status = domain.TaskCompleted
		case report.CompletionPercent > 0:
			status = domain.TaskInProgress
		}
		if err := cfg.Repo.UpdateTaskProgress(ctx, task.ID, report.CompletionPercent, status); err != nil {
			return nil, handleError(err)
		}

		return &struct {
			Body SubmitProgressResponse `json:"body"`
		}{Body: SubmitProgressResponse{
			Report:          report,
			AnomalyDetected: check.IsAnomaly,
			AnomalyScore:    check.AnomalyScore,
			AnomalyReason:   check.Reason,
		}}, nil
	})
}

// previousCompletion returns the completion percent of the most recent report
// strictly before date; zero when the task has no prior history.
func previousCompletion(history []domain.ProgressReport, date string) float64 {
	prev := 0.0
	for _, r := range history {
		if r.Date < date {
			prev = r.CompletionPercent
		}
	}
	return prev
}

func registerAlerts(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-alerts",
		Method:      http.MethodGet,
		Path:        "/alerts",
		Summary:     "List alerts",
	}, func(ctx context.Context, input *struct {
		Type     string `query:"type"`
		Severity string `query:"severity"`
		Unread   bool   `query:"unread"`
		Limit    int    `query:"limit" minimum:"0"`
	}) (*struct {
		Body AlertListResponse `json:"body"`
	}, error) {
		items, err := cfg.Repo.ListAlerts(ctx, repo.AlertFilter{
			Type:       input.Type,
			Severity:   input.Severity,
			UnreadOnly: input.Unread,
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		unread, err := cfg.Repo.UnreadAlertCount(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AlertListResponse `json:"body"`
		}{Body: AlertListResponse{Alerts: items, UnreadCount: unread}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "read-alert",
		Method:      http.MethodPost,
		Path:        "/alerts/{alert_id}/read",
		Summary:     "Mark alert as read",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AlertID string `path:"alert_id"`
	}) (*struct {
		Body map[string]bool `json:"body"`
	}, error) {
		if err := cfg.Repo.MarkAlertRead(ctx, input.AlertID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]bool `json:"body"`
		}{Body: map[string]bool{"read": true}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "read-all-alerts",
		Method:      http.MethodPost,
		Path:        "/alerts/read_all",
		Summary:     "Mark all alerts as read",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]int64 `json:"body"`
	}, error) {
		n, err := cfg.Repo.MarkAllAlertsRead(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int64 `json:"body"`
		}{Body: map[string]int64{"marked": n}}, nil
	})
}

func registerPipeline(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "run-pipeline",
		Method:      http.MethodPost,
		Path:        "/pipeline/run",
		Summary:     "Run the risk pipeline now",
		Errors:      []int{http.StatusConflict},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body pipeline.Summary `json:"body"`
	}, error) {
		sum, err := cfg.Runner.Run(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body pipeline.Summary `json:"body"`
		}{Body: sum}, nil
	})
}
