package repo

import (
	"context"
	"database/sql"
	"strings"

	"riskline/internal/domain"
)

const alertCols = `id,type,severity,title,message,project_id,task_id,employee_id,read,created_at`

// AlertFilter narrows ListAlerts; zero value lists everything.
type AlertFilter struct {
	Type       string
	Severity   string
	UnreadOnly bool
	Limit      int
}

func scanAlert(scan func(dest ...any) error) (domain.Alert, error) {
	var a domain.Alert
	var projectID, taskID, employeeID sql.NullString
	err := scan(&a.ID, &a.Type, &a.Severity, &a.Title, &a.Message,
		&projectID, &taskID, &employeeID, &a.Read, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if projectID.Valid {
		a.ProjectID = &projectID.String
	}
	if taskID.Valid {
		a.TaskID = &taskID.String
	}
	if employeeID.Valid {
		a.EmployeeID = &employeeID.String
	}
	return a, err
}

func (r Repo) InsertAlert(ctx context.Context, a domain.Alert) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO alerts(`+alertCols+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Type, a.Severity, a.Title, a.Message, a.ProjectID, a.TaskID, a.EmployeeID, a.Read, a.CreatedAt)
	return err
}

func (r Repo) ListAlerts(ctx context.Context, f AlertFilter) ([]domain.Alert, error) {
	var conds []string
	var args []any
	if f.Type != "" {
		conds = append(conds, "type=?")
		args = append(args, f.Type)
	}
	if f.Severity != "" {
		conds = append(conds, "severity=?")
		args = append(args, f.Severity)
	}
	if f.UnreadOnly {
		conds = append(conds, "read=0")
	}
	q := `SELECT ` + alertCols + ` FROM alerts`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) UnreadAlertCount(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE read=0`).Scan(&n)
	return n, err
}

// UnreadAlertExists reports whether an unread alert of the given type already
// references the project. The pipeline uses it to suppress duplicates.
func (r Repo) UnreadAlertExists(ctx context.Context, alertType, projectID string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM alerts WHERE type=? AND project_id=? AND read=0 LIMIT 1`,
		alertType, projectID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) MarkAlertRead(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE alerts SET read=1 WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) MarkAllAlertsRead(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE alerts SET read=1 WHERE read=0`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
