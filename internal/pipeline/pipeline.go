package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"riskline/internal/alerts"
	"riskline/internal/config"
	"riskline/internal/domain"
	"riskline/internal/risk"
)

var ErrRunInProgress = errors.New("pipeline run already in progress")

type ProjectStore interface {
	ActiveProjects(ctx context.Context) ([]domain.Project, error)
	UpdateRiskScore(ctx context.Context, id string, score float64, status string) error
}

type TaskStore interface {
	TasksByProject(ctx context.Context, projectID string) ([]domain.Task, error)
}

type ProgressStore interface {
	HistoryByTask(ctx context.Context, taskID string) ([]domain.ProgressReport, error)
}

type EmployeeStore interface {
	AllEmployees(ctx context.Context) (map[string]domain.Employee, error)
}

type AlertStore interface {
	InsertAlert(ctx context.Context, a domain.Alert) error
	UnreadAlertExists(ctx context.Context, alertType, projectID string) (bool, error)
}

// Failure records one project the batch run could not score.
type Failure struct {
	ProjectID string `json:"project_id"`
	Reason    string `json:"reason"`
}

type Summary struct {
	StartedAt  string    `json:"started_at"`
	FinishedAt string    `json:"finished_at"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Alerts     int       `json:"alerts"`
	Failures   []Failure `json:"failures,omitempty"`
}

type Runner struct {
	Projects   ProjectStore
	Tasks      TaskStore
	Progress   ProgressStore
	Employees  EmployeeStore
	Alerts     AlertStore
	Classifier *risk.Classifier
	Config     *config.Config
	Log        *slog.Logger
	Now        func() time.Time

	mu sync.Mutex
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) log() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

// Run scores every active project, persists the results, and emits threshold
// alerts. A failing project is recorded and skipped; the run keeps going.
// Concurrent runs are rejected rather than queued.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	if !r.mu.TryLock() {
		return Summary{}, ErrRunInProgress
	}
	defer r.mu.Unlock()

	sum := Summary{StartedAt: r.now().UTC().Format(time.RFC3339)}
	projects, err := r.Projects.ActiveProjects(ctx)
	if err != nil {
		return sum, fmt.Errorf("list active projects: %w", err)
	}
	employees, err := r.Employees.AllEmployees(ctx)
	if err != nil {
		return sum, fmt.Errorf("list employees: %w", err)
	}

	log := r.log()
	for _, p := range projects {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		emitted, err := r.runProject(ctx, p, employees)
		if err != nil {
			log.Error("project scoring failed", "project_id", p.ID, "err", err)
			sum.Failed++
			sum.Failures = append(sum.Failures, Failure{ProjectID: p.ID, Reason: err.Error()})
			continue
		}
		sum.Succeeded++
		sum.Alerts += emitted
	}
	sum.FinishedAt = r.now().UTC().Format(time.RFC3339)
	log.Info("pipeline run finished", "succeeded", sum.Succeeded, "failed", sum.Failed, "alerts", sum.Alerts)
	return sum, nil
}

func (r *Runner) runProject(ctx context.Context, p domain.Project, employees map[string]domain.Employee) (int, error) {
	tasks, err := r.Tasks.TasksByProject(ctx, p.ID)
	if err != nil {
		return 0, fmt.Errorf("list tasks: %w", err)
	}
	history := make(map[string][]domain.ProgressReport, len(tasks))
	for _, t := range tasks {
		reports, err := r.Progress.HistoryByTask(ctx, t.ID)
		if err != nil {
			return 0, fmt.Errorf("task %s history: %w", t.ID, err)
		}
		history[t.ID] = reports
	}

	res, err := r.Classifier.PredictProjectRisk(p, tasks, history, employees)
	if err != nil {
		return 0, err
	}

	// Recovery is part of the state machine: a project that drops back below
	// the threshold returns to in_progress.
	status := domain.ProjectInProgress
	if res.RiskPercent >= r.Config.Risk.AtRiskThreshold {
		status = domain.ProjectAtRisk
	}
	if err := r.Projects.UpdateRiskScore(ctx, p.ID, res.RiskPercent, status); err != nil {
		return 0, fmt.Errorf("persist score: %w", err)
	}
	return r.emitAlerts(ctx, p, res)
}

func (r *Runner) emitAlerts(ctx context.Context, p domain.Project, res risk.Result) (int, error) {
	w := alerts.Writer{Store: r.Alerts, Now: r.Now}
	emitted := 0

	switch {
	case res.RiskPercent >= r.Config.Risk.CriticalAlertThreshold:
		ok, err := r.shouldEmit(ctx, domain.AlertDeadlineRisk, p.ID)
		if err != nil {
			return emitted, err
		}
		if ok {
			if _, err := w.Emit(ctx, domain.Alert{
				Type:      domain.AlertDeadlineRisk,
				Severity:  domain.SeverityCritical,
				Title:     fmt.Sprintf("%s at Critical Risk", p.Name),
				Message:   fmt.Sprintf("Project %q has %.0f%% risk score - critical deadline threat detected by AI.", p.Name, res.RiskPercent),
				ProjectID: alerts.Ref(p.ID),
			}); err != nil {
				return emitted, err
			}
			emitted++
		}
	case res.RiskPercent >= r.Config.Risk.WarningAlertThreshold:
		ok, err := r.shouldEmit(ctx, domain.AlertDeadlineRisk, p.ID)
		if err != nil {
			return emitted, err
		}
		if ok {
			if _, err := w.Emit(ctx, domain.Alert{
				Type:      domain.AlertDeadlineRisk,
				Severity:  domain.SeverityWarning,
				Title:     fmt.Sprintf("%s Risk Elevated", p.Name),
				Message:   fmt.Sprintf("Project %q risk score is %.0f%%. Immediate attention required.", p.Name, res.RiskPercent),
				ProjectID: alerts.Ref(p.ID),
			}); err != nil {
				return emitted, err
			}
			emitted++
		}
	}

	for _, t := range res.Tasks {
		if t.RiskLevel != "Critical" || t.DaysRemaining > 5 {
			continue
		}
		if _, err := w.Emit(ctx, domain.Alert{
			Type:      domain.AlertDeadlineRisk,
			Severity:  domain.SeverityCritical,
			Title:     fmt.Sprintf("%s - Critical Task Alert", t.Name),
			Message:   t.Reason,
			ProjectID: alerts.Ref(p.ID),
			TaskID:    alerts.Ref(t.ID),
		}); err != nil {
			return emitted, err
		}
		emitted++
	}
	return emitted, nil
}

func (r *Runner) shouldEmit(ctx context.Context, alertType, projectID string) (bool, error) {
	if !r.Config.Alerts.Dedup {
		return true, nil
	}
	exists, err := r.Alerts.UnreadAlertExists(ctx, alertType, projectID)
	if err != nil {
		return false, err
	}
	return !exists, nil
}
