package server

import (
	"sort"

	"riskline/internal/domain"
)

// Request payloads

type CreateProjectRequest struct {
	ID        *string  `json:"id,omitempty"`
	Name      string   `json:"name"`
	ManagerID string   `json:"manager_id,omitempty"`
	MemberIDs []string `json:"member_ids,omitempty"`
	StartDate string   `json:"start_date,omitempty" format:"date"`
	Deadline  string   `json:"deadline,omitempty" format:"date"`
	Status    string   `json:"status,omitempty" enum:"planning,in_progress,at_risk,completed"`
}

type CreateTaskRequest struct {
	ID          *string `json:"id,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Priority    string  `json:"priority,omitempty" enum:"low,medium,high,critical"`
	Deadline    string  `json:"deadline,omitempty" format:"date"`
}

type CreateEmployeeRequest struct {
	ID         *string  `json:"id,omitempty"`
	Name       string   `json:"name"`
	Email      string   `json:"email,omitempty"`
	Role       string   `json:"role,omitempty"`
	TrustScore *float64 `json:"trust_score,omitempty" minimum:"0" maximum:"100"`
}

// SubmitProgressRequest carries no date: a submission always writes the
// current day's row, so history across days stays append-only.
type SubmitProgressRequest struct {
	TaskID            string  `json:"task_id"`
	EmployeeID        string  `json:"employee_id"`
	HoursWorked       float64 `json:"hours_worked" minimum:"0"`
	CompletionPercent float64 `json:"completion_percent" minimum:"0" maximum:"100"`
	Issues            string  `json:"issues,omitempty"`
	BlockerDesc       string  `json:"blocker_desc,omitempty"`
	Notes             string  `json:"notes,omitempty"`
}

// Response payloads

type SubmitProgressResponse struct {
	Report          domain.ProgressReport `json:"report"`
	AnomalyDetected bool                  `json:"anomalyDetected"`
	AnomalyScore    float64               `json:"anomalyScore"`
	AnomalyReason   *string               `json:"anomalyReason,omitempty"`
}

type AlertListResponse struct {
	Alerts      []domain.Alert `json:"alerts"`
	UnreadCount int            `json:"unreadCount"`
}

func sortEmployees(items []domain.Employee) {
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
}
