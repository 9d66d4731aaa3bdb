package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"riskline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const projectCols = `id,name,manager_id,start_date,deadline,progress,risk_score,status,created_at,updated_at`

func scanProject(scan func(dest ...any) error) (domain.Project, error) {
	var p domain.Project
	err := scan(&p.ID, &p.Name, &p.ManagerID, &p.StartDate, &p.Deadline,
		&p.Progress, &p.RiskScore, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) InsertProject(ctx context.Context, p domain.Project) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO projects(`+projectCols+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, p.ManagerID, p.StartDate, p.Deadline, p.Progress, p.RiskScore, p.Status, p.CreatedAt, p.UpdatedAt); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	for _, member := range p.MemberIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO project_members(project_id,employee_id) VALUES (?,?)`, p.ID, member); err != nil {
			return fmt.Errorf("insert project member: %w", err)
		}
	}
	return tx.Commit()
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=?`, id)
	p, err := scanProject(row.Scan)
	if err != nil {
		return p, err
	}
	p.MemberIDs, err = r.projectMembers(ctx, id)
	return p, err
}

func (r Repo) projectMembers(ctx context.Context, projectID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT employee_id FROM project_members WHERE project_id=? ORDER BY employee_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

func (r Repo) listProjects(ctx context.Context, where string, args ...any) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+projectCols+` FROM projects `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return r.listProjects(ctx, `ORDER BY created_at DESC`)
}

// ActiveProjects returns projects the daily pipeline re-evaluates.
func (r Repo) ActiveProjects(ctx context.Context) ([]domain.Project, error) {
	return r.listProjects(ctx, `WHERE status IN (?,?) ORDER BY created_at`,
		domain.ProjectInProgress, domain.ProjectAtRisk)
}

// UpdateRiskScore persists a freshly computed risk score; status is updated
// too when non-empty. Only the classifier and pipeline call this.
func (r Repo) UpdateRiskScore(ctx context.Context, id string, score float64, status string) error {
	fields := []string{"risk_score=?", "updated_at=datetime('now')"}
	args := []any{score}
	if status != "" {
		fields = append(fields, "status=?")
		args = append(args, status)
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, `UPDATE projects SET `+strings.Join(fields, ",")+` WHERE id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const taskCols = `id,project_id,assignee_id,title,description,status,priority,progress,deadline,created_at,updated_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var assignee sql.NullString
	err := scan(&t.ID, &t.ProjectID, &assignee, &t.Title, &t.Description,
		&t.Status, &t.Priority, &t.Progress, &t.Deadline, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if assignee.Valid {
		t.AssigneeID = &assignee.String
	}
	return t, err
}

func (r Repo) InsertTask(ctx context.Context, t domain.Task) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO tasks(`+taskCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.AssigneeID, t.Title, t.Description, t.Status, t.Priority, t.Progress, t.Deadline, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) TasksByProject(ctx context.Context, projectID string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE project_id=? ORDER BY created_at`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// UpdateTaskProgress mirrors progress submission onto the task row; status is
// updated too when non-empty.
func (r Repo) UpdateTaskProgress(ctx context.Context, id string, progress float64, status string) error {
	fields := []string{"progress=?", "updated_at=datetime('now')"}
	args := []any{progress}
	if status != "" {
		fields = append(fields, "status=?")
		args = append(args, status)
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, `UPDATE tasks SET `+strings.Join(fields, ",")+` WHERE id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const progressCols = `id,task_id,employee_id,project_id,date,hours_worked,completion_percent,issues,blocker_desc,notes,anomaly_flag,submitted_at`

func scanReport(scan func(dest ...any) error) (domain.ProgressReport, error) {
	var p domain.ProgressReport
	err := scan(&p.ID, &p.TaskID, &p.EmployeeID, &p.ProjectID, &p.Date,
		&p.HoursWorked, &p.CompletionPercent, &p.Issues, &p.BlockerDesc, &p.Notes, &p.AnomalyFlag, &p.SubmittedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

// UpsertReport stores a daily report; the (task, employee, date) key makes
// same-day resubmission overwrite while history across days stays append-only.
func (r Repo) UpsertReport(ctx context.Context, p domain.ProgressReport) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO daily_progress(`+progressCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(task_id,employee_id,date) DO UPDATE SET
hours_worked=excluded.hours_worked, completion_percent=excluded.completion_percent,
issues=excluded.issues, blocker_desc=excluded.blocker_desc, notes=excluded.notes,
anomaly_flag=excluded.anomaly_flag, submitted_at=excluded.submitted_at`,
		p.ID, p.TaskID, p.EmployeeID, p.ProjectID, p.Date, p.HoursWorked, p.CompletionPercent,
		p.Issues, p.BlockerDesc, p.Notes, p.AnomalyFlag, p.SubmittedAt)
	return err
}

// HistoryByTask returns the chronological report series for a task.
func (r Repo) HistoryByTask(ctx context.Context, taskID string) ([]domain.ProgressReport, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+progressCols+` FROM daily_progress WHERE task_id=? ORDER BY date`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProgressReport
	for rows.Next() {
		p, err := scanReport(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// TodayReport fetches the report an employee already submitted today, if any.
func (r Repo) TodayReport(ctx context.Context, taskID, employeeID, date string) (domain.ProgressReport, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+progressCols+` FROM daily_progress WHERE task_id=? AND employee_id=? AND date=?`,
		taskID, employeeID, date)
	return scanReport(row.Scan)
}

const employeeCols = `id,name,email,role,trust_score`

func (r Repo) InsertEmployee(ctx context.Context, e domain.Employee) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO employees(`+employeeCols+`) VALUES (?,?,?,?,?)`,
		e.ID, e.Name, e.Email, e.Role, e.TrustScore)
	return err
}

func (r Repo) GetEmployee(ctx context.Context, id string) (domain.Employee, error) {
	var e domain.Employee
	err := r.DB.QueryRowContext(ctx, `SELECT `+employeeCols+` FROM employees WHERE id=?`, id).
		Scan(&e.ID, &e.Name, &e.Email, &e.Role, &e.TrustScore)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	return e, err
}

// AllEmployees returns every employee keyed by id.
func (r Repo) AllEmployees(ctx context.Context) (map[string]domain.Employee, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+employeeCols+` FROM employees`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]domain.Employee{}
	for rows.Next() {
		var e domain.Employee
		if err := rows.Scan(&e.ID, &e.Name, &e.Email, &e.Role, &e.TrustScore); err != nil {
			return nil, err
		}
		res[e.ID] = e
	}
	return res, rows.Err()
}
