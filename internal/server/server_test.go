package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"riskline/internal/anomaly"
	"riskline/internal/config"
	"riskline/internal/db"
	"riskline/internal/domain"
	"riskline/internal/migrate"
	"riskline/internal/model"
	"riskline/internal/model/modeltest"
	"riskline/internal/pipeline"
	"riskline/internal/repo"
	"riskline/internal/risk"
)

var testNow = time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC)

type testServer struct {
	URL      string
	ModelDir string
	Repo     repo.Repo
	client   *http.Client
	close    func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	appCfg := config.Default()
	r := repo.Repo{DB: conn}
	models := model.NewService(model.Dir(workspace))
	clf := risk.New(models)
	clf.Now = func() time.Time { return testNow }
	runner := &pipeline.Runner{
		Projects: r, Tasks: r, Progress: r, Employees: r, Alerts: r,
		Classifier: clf,
		Config:     appCfg,
		Now:        func() time.Time { return testNow },
	}
	handler, err := New(Config{
		Repo:       r,
		Classifier: clf,
		Detector:   anomaly.New(models),
		Runner:     runner,
		App:        appCfg,
		BasePath:   "/v0",
		Auth:       AuthConfig{AllowAnonymous: true},
		Now:        func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:      "http://" + ln.Addr().String(),
		ModelDir: model.Dir(workspace),
		Repo:     r,
		client:   &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createProject(t *testing.T, srv *testServer, name string) domain.Project {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"name":     name,
		"status":   "in_progress",
		"deadline": "2025-07-15",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d %s", res.StatusCode, string(data))
	}
	var p domain.Project
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	return p
}

func createTask(t *testing.T, srv *testServer, projectID string, body map[string]any) domain.Task {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/"+projectID+"/tasks", body)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	return task
}

func TestHealth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}
}

func TestProjectRiskRequiresTrainedModel(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	p := createProject(t, srv, "Apollo")
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/"+p.ID+"/risk", nil)
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "model_not_trained" {
		t.Fatalf("code = %q, want model_not_trained", envelope.Error.Code)
	}
}

func TestProjectRiskPersistsScore(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	modeltest.WriteRiskArtifact(t, srv.ModelDir)

	p := createProject(t, srv, "Apollo")
	// Test artifact scores progress 20 as High (70).
	createTask(t, srv, p.ID, map[string]any{"title": "Build", "deadline": "2025-07-15"})
	task := createTask(t, srv, p.ID, map[string]any{"title": "Ship", "deadline": "2025-07-15"})
	submitProgress(t, srv, task.ID, "e-1", 4, 20)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/"+p.ID+"/risk", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("risk: %d %s", res.StatusCode, string(data))
	}
	var result risk.Result
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.ProjectName != "Apollo" || len(result.Tasks) != 2 {
		t.Fatalf("result = %+v", result)
	}

	stored, err := srv.Repo.GetProject(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if stored.RiskScore != result.RiskPercent {
		t.Fatalf("stored score %v, response %v", stored.RiskScore, result.RiskPercent)
	}
	if stored.Status != domain.ProjectInProgress {
		t.Fatalf("status = %q, want unchanged in_progress", stored.Status)
	}
}

func submitProgress(t *testing.T, srv *testServer, taskID, employeeID string, hours, percent float64) SubmitProgressResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/progress", map[string]any{
		"task_id":            taskID,
		"employee_id":        employeeID,
		"hours_worked":       hours,
		"completion_percent": percent,
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit progress: %d %s", res.StatusCode, string(data))
	}
	var out SubmitProgressResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return out
}

func TestSubmitProgressWithoutAnomalyModel(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	p := createProject(t, srv, "Apollo")
	task := createTask(t, srv, p.ID, map[string]any{"title": "Build"})

	out := submitProgress(t, srv, task.ID, "e-1", 6, 40)
	if out.AnomalyDetected {
		t.Fatalf("untrained detector must not flag: %+v", out)
	}
	if out.Report.Date != "2025-06-15" {
		t.Fatalf("report date = %q", out.Report.Date)
	}

	stored, err := srv.Repo.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if stored.Progress != 40 || stored.Status != domain.TaskInProgress {
		t.Fatalf("task = %+v, want progress 40 in_progress", stored)
	}
}

func TestSubmitProgressFlagsAnomalyAndAlerts(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	modeltest.WriteAnomalyArtifact(t, srv.ModelDir)

	p := createProject(t, srv, "Apollo")
	task := createTask(t, srv, p.ID, map[string]any{"title": "Build"})

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/employees", map[string]any{
		"id": "e-1", "name": "Dana",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create employee: %d %s", res.StatusCode, string(data))
	}

	out := submitProgress(t, srv, task.ID, "e-1", 16, 30)
	if !out.AnomalyDetected {
		t.Fatalf("16 hour claim must be flagged: %+v", out)
	}
	if out.AnomalyReason == nil || *out.AnomalyReason == "" {
		t.Fatalf("flagged report must carry a reason")
	}
	if !out.Report.AnomalyFlag {
		t.Fatalf("stored report must carry the anomaly flag")
	}

	items, err := srv.Repo.ListAlerts(context.Background(), repo.AlertFilter{Type: domain.AlertFraudDetection})
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d fraud alerts, want 1", len(items))
	}
	a := items[0]
	if a.Title != "Suspicious Report Detected" || a.Severity != domain.SeverityWarning {
		t.Fatalf("alert = %+v", a)
	}
	if a.EmployeeID == nil || *a.EmployeeID != "e-1" {
		t.Fatalf("alert must reference the employee: %+v", a)
	}
	if !strings.Contains(a.Message, "Dana") || !strings.Contains(a.Message, `"Build"`) {
		t.Fatalf("alert message must name the employee and task: %q", a.Message)
	}
}

func TestSubmitProgressRejectsClientDate(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	p := createProject(t, srv, "Apollo")
	task := createTask(t, srv, p.ID, map[string]any{"title": "Build"})

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/progress", map[string]any{
		"task_id":            task.ID,
		"employee_id":        "e-1",
		"date":               "2025-01-01",
		"hours_worked":       4,
		"completion_percent": 10,
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("backdated submission must be rejected, got %d %s", res.StatusCode, string(data))
	}
	history, err := srv.Repo.HistoryByTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("rejected submission must not write a row: %+v", history)
	}
}

func TestSubmitProgressCompletesTask(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	p := createProject(t, srv, "Apollo")
	task := createTask(t, srv, p.ID, map[string]any{"title": "Build"})
	submitProgress(t, srv, task.ID, "e-1", 5, 100)

	stored, err := srv.Repo.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if stored.Status != domain.TaskCompleted {
		t.Fatalf("status = %q, want completed", stored.Status)
	}
}

func TestSubmitProgressUnknownTask(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/progress", map[string]any{
		"task_id":            "nope",
		"employee_id":        "e-1",
		"hours_worked":       4,
		"completion_percent": 10,
	})
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
}

func TestAlertReadTracking(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	modeltest.WriteAnomalyArtifact(t, srv.ModelDir)

	p := createProject(t, srv, "Apollo")
	task := createTask(t, srv, p.ID, map[string]any{"title": "Build"})
	submitProgress(t, srv, task.ID, "e-1", 16, 30)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/alerts?unread=true", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list alerts: %d %s", res.StatusCode, string(data))
	}
	var list AlertListResponse
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Alerts) != 1 || list.UnreadCount != 1 {
		t.Fatalf("list = %+v, want one unread", list)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/alerts/"+list.Alerts[0].ID+"/read", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("mark read: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/alerts?unread=true", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list alerts: %d %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Alerts) != 0 || list.UnreadCount != 0 {
		t.Fatalf("list after read = %+v, want empty", list)
	}
}

func TestPipelineRunEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	modeltest.WriteRiskArtifact(t, srv.ModelDir)

	p := createProject(t, srv, "Apollo")
	task := createTask(t, srv, p.ID, map[string]any{"title": "Build", "deadline": "2025-07-15"})
	submitProgress(t, srv, task.ID, "e-1", 4, 20)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/pipeline/run", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("run pipeline: %d %s", res.StatusCode, string(data))
	}
	var sum pipeline.Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if sum.Succeeded != 1 || sum.Failed != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.Alerts == 0 {
		t.Fatalf("expected a warning alert from score 70")
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	// Separate handler with auth enforced.
	handler, err := New(Config{
		Repo:     srv.Repo,
		App:      config.Default(),
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: "topsecret"},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v0/projects", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
