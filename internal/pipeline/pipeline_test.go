package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"riskline/internal/config"
	"riskline/internal/domain"
	"riskline/internal/model"
	"riskline/internal/model/modeltest"
	"riskline/internal/risk"
)

var testNow = time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC)

type fakeStore struct {
	projects []domain.Project
	tasks    map[string][]domain.Task
	history  map[string][]domain.ProgressReport

	failTasksFor string

	scores   map[string]float64
	statuses map[string]string
	alerts   []domain.Alert
	unread   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks:    map[string][]domain.Task{},
		history:  map[string][]domain.ProgressReport{},
		scores:   map[string]float64{},
		statuses: map[string]string{},
	}
}

func (f *fakeStore) ActiveProjects(context.Context) ([]domain.Project, error) {
	return f.projects, nil
}

func (f *fakeStore) UpdateRiskScore(_ context.Context, id string, score float64, status string) error {
	f.scores[id] = score
	f.statuses[id] = status
	return nil
}

func (f *fakeStore) TasksByProject(_ context.Context, projectID string) ([]domain.Task, error) {
	if projectID == f.failTasksFor {
		return nil, errors.New("disk on fire")
	}
	return f.tasks[projectID], nil
}

func (f *fakeStore) HistoryByTask(_ context.Context, taskID string) ([]domain.ProgressReport, error) {
	return f.history[taskID], nil
}

func (f *fakeStore) AllEmployees(context.Context) (map[string]domain.Employee, error) {
	return map[string]domain.Employee{
		"e1": {ID: "e1", Name: "Dana", TrustScore: 90},
	}, nil
}

func (f *fakeStore) InsertAlert(_ context.Context, a domain.Alert) error {
	f.alerts = append(f.alerts, a)
	return nil
}

func (f *fakeStore) UnreadAlertExists(context.Context, string, string) (bool, error) {
	return f.unread, nil
}

func (f *fakeStore) addProject(id, name string, taskProgress map[string]float64, deadline string) {
	f.projects = append(f.projects, domain.Project{ID: id, Name: name, Status: domain.ProjectInProgress})
	for tid, progress := range taskProgress {
		assignee := "e1"
		f.tasks[id] = append(f.tasks[id], domain.Task{
			ID: tid, ProjectID: id, AssigneeID: &assignee,
			Title: "Task " + tid, Priority: "medium",
			Progress: progress, Deadline: deadline,
			CreatedAt: "2025-06-01T00:00:00Z",
		})
	}
}

func newTestRunner(t *testing.T, store *fakeStore) *Runner {
	t.Helper()
	dir := t.TempDir()
	modeltest.WriteRiskArtifact(t, dir)
	clf := risk.New(model.NewService(dir))
	clf.Now = func() time.Time { return testNow }
	return &Runner{
		Projects:   store,
		Tasks:      store,
		Progress:   store,
		Employees:  store,
		Alerts:     store,
		Classifier: clf,
		Config:     config.Default(),
		Now:        func() time.Time { return testNow },
	}
}

func TestRunIsolatesProjectFailures(t *testing.T) {
	store := newFakeStore()
	store.addProject("p1", "Apollo", map[string]float64{"t1": 80}, "2025-07-15")
	store.addProject("p2", "Borealis", map[string]float64{"t2": 80}, "2025-07-15")
	store.addProject("p3", "Comet", map[string]float64{"t3": 80}, "2025-07-15")
	store.failTasksFor = "p2"

	sum, err := newTestRunner(t, store).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Succeeded != 2 || sum.Failed != 1 {
		t.Fatalf("got succeeded=%d failed=%d, want 2/1", sum.Succeeded, sum.Failed)
	}
	if len(sum.Failures) != 1 || sum.Failures[0].ProjectID != "p2" {
		t.Fatalf("failures = %+v, want one for p2", sum.Failures)
	}
	if _, ok := store.scores["p2"]; ok {
		t.Fatalf("failed project must not be scored")
	}
	for _, id := range []string{"p1", "p3"} {
		if _, ok := store.scores[id]; !ok {
			t.Fatalf("project %s not scored", id)
		}
	}
}

func TestRunEmitsThresholdAlerts(t *testing.T) {
	// Test artifact scores by progress: 5 -> 90, 20 -> 70, 80 -> 15.
	store := newFakeStore()
	store.addProject("crit", "Apollo", map[string]float64{"c1": 5, "c2": 20}, "2025-07-15")
	store.addProject("warn", "Borealis", map[string]float64{"w1": 20}, "2025-07-15")
	store.addProject("safe", "Comet", map[string]float64{"s1": 80}, "2025-07-15")

	sum, err := newTestRunner(t, store).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Alerts != 2 || len(store.alerts) != 2 {
		t.Fatalf("got %d alerts, want 2: %+v", len(store.alerts), store.alerts)
	}

	byProject := map[string]domain.Alert{}
	for _, a := range store.alerts {
		byProject[*a.ProjectID] = a
	}
	crit := byProject["crit"]
	if crit.Severity != domain.SeverityCritical || crit.Title != "Apollo at Critical Risk" {
		t.Errorf("critical alert = %+v", crit)
	}
	if crit.Message != `Project "Apollo" has 80% risk score - critical deadline threat detected by AI.` {
		t.Errorf("critical message = %q", crit.Message)
	}
	warn := byProject["warn"]
	if warn.Severity != domain.SeverityWarning || warn.Title != "Borealis Risk Elevated" {
		t.Errorf("warning alert = %+v", warn)
	}
	if _, ok := byProject["safe"]; ok {
		t.Errorf("safe project must not alert")
	}

	if got := store.scores["crit"]; got != 80 {
		t.Errorf("crit score = %v, want 80", got)
	}
	if store.statuses["crit"] != domain.ProjectAtRisk {
		t.Errorf("crit status = %q, want at_risk", store.statuses["crit"])
	}
	if store.statuses["safe"] != domain.ProjectInProgress {
		t.Errorf("safe status = %q, want in_progress", store.statuses["safe"])
	}
}

func TestRunRecoversAtRiskProject(t *testing.T) {
	store := newFakeStore()
	// Previously flagged project whose only task is nearly done now: the
	// artifact scores it Low (15), below the at-risk threshold.
	store.addProject("p1", "Apollo", map[string]float64{"t1": 80}, "2025-07-15")
	store.projects[0].Status = domain.ProjectAtRisk

	_, err := newTestRunner(t, store).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := store.scores["p1"]; got != 15 {
		t.Fatalf("score = %v, want 15", got)
	}
	if store.statuses["p1"] != domain.ProjectInProgress {
		t.Fatalf("status = %q, want recovery to in_progress", store.statuses["p1"])
	}
}

func TestRunEmitsCriticalTaskAlert(t *testing.T) {
	store := newFakeStore()
	// Critical task two days from its deadline.
	store.addProject("p1", "Drift", map[string]float64{"t1": 5}, "2025-06-17")

	sum, err := newTestRunner(t, store).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Alerts != 2 {
		t.Fatalf("got %d alerts, want project + task: %+v", sum.Alerts, store.alerts)
	}
	var taskAlert *domain.Alert
	for i, a := range store.alerts {
		if a.TaskID != nil {
			taskAlert = &store.alerts[i]
		}
	}
	if taskAlert == nil {
		t.Fatalf("no task-level alert emitted")
	}
	if taskAlert.Title != "Task t1 - Critical Task Alert" {
		t.Errorf("title = %q", taskAlert.Title)
	}
	if taskAlert.Message == "" {
		t.Errorf("task alert message must carry the prediction reason")
	}
}

func TestRunDedupSuppressesRepeatAlerts(t *testing.T) {
	store := newFakeStore()
	store.addProject("p1", "Apollo", map[string]float64{"t1": 20}, "2025-07-15")
	store.unread = true

	r := newTestRunner(t, store)
	r.Config.Alerts.Dedup = true

	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Alerts != 0 || len(store.alerts) != 0 {
		t.Fatalf("dedup must suppress the repeat alert, got %+v", store.alerts)
	}
	if _, ok := store.scores["p1"]; !ok {
		t.Fatalf("score must still be persisted")
	}
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	store := newFakeStore()
	r := newTestRunner(t, store)
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.Run(context.Background())
	if !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("err = %v, want ErrRunInProgress", err)
	}
}

func TestRunSurfacesModelNotTrainedPerProject(t *testing.T) {
	store := newFakeStore()
	store.addProject("p1", "Apollo", map[string]float64{"t1": 50}, "2025-07-15")

	clf := risk.New(model.NewService(t.TempDir()))
	clf.Now = func() time.Time { return testNow }
	r := newTestRunner(t, store)
	r.Classifier = clf

	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Failed != 1 || len(sum.Failures) != 1 {
		t.Fatalf("summary = %+v, want one failure", sum)
	}
	if !strings.Contains(sum.Failures[0].Reason, "not trained") {
		t.Fatalf("reason = %q, want model-not-trained", sum.Failures[0].Reason)
	}
}
