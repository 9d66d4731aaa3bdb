package domain

// Project statuses.
const (
	ProjectPlanning   = "planning"
	ProjectInProgress = "in_progress"
	ProjectAtRisk     = "at_risk"
	ProjectCompleted  = "completed"
)

// Task statuses.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
)

// Alert types.
const (
	AlertDeadlineRisk   = "deadline_risk"
	AlertFraudDetection = "fraud_detection"
	AlertProductivity   = "productivity"
	AlertMilestone      = "milestone"
)

// Alert severities.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
	SeveritySuccess  = "success"
)

type Project struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	ManagerID string   `json:"manager_id"`
	MemberIDs []string `json:"member_ids,omitempty"`
	StartDate string   `json:"start_date,omitempty" format:"date"`
	Deadline  string   `json:"deadline,omitempty" format:"date"`
	Progress  float64  `json:"progress"`
	RiskScore float64  `json:"risk_score"`
	Status    string   `json:"status" enum:"planning,in_progress,at_risk,completed"`
	CreatedAt string   `json:"created_at" format:"date-time"`
	UpdatedAt string   `json:"updated_at" format:"date-time"`
}

type Task struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status" enum:"pending,in_progress,completed"`
	Priority    string  `json:"priority" enum:"low,medium,high,critical"`
	Progress    float64 `json:"progress"`
	Deadline    string  `json:"deadline,omitempty" format:"date"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

// ProgressReport is one daily report keyed by (task, employee, date);
// resubmission on the same day overwrites, history across days is append-only.
type ProgressReport struct {
	ID                string  `json:"id"`
	TaskID            string  `json:"task_id"`
	EmployeeID        string  `json:"employee_id"`
	ProjectID         string  `json:"project_id,omitempty"`
	Date              string  `json:"date" format:"date"`
	HoursWorked       float64 `json:"hours_worked"`
	CompletionPercent float64 `json:"completion_percent"`
	Issues            string  `json:"issues,omitempty"`
	BlockerDesc       string  `json:"blocker_desc,omitempty"`
	Notes             string  `json:"notes,omitempty"`
	AnomalyFlag       bool    `json:"anomaly_flag"`
	SubmittedAt       string  `json:"submitted_at" format:"date-time"`
}

type Employee struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Email      string  `json:"email,omitempty"`
	Role       string  `json:"role"`
	TrustScore float64 `json:"trust_score"`
}

type Alert struct {
	ID         string  `json:"id"`
	Type       string  `json:"type" enum:"deadline_risk,fraud_detection,productivity,milestone"`
	Severity   string  `json:"severity" enum:"critical,warning,info,success"`
	Title      string  `json:"title"`
	Message    string  `json:"message"`
	ProjectID  *string `json:"project_id,omitempty"`
	TaskID     *string `json:"task_id,omitempty"`
	EmployeeID *string `json:"employee_id,omitempty"`
	Read       bool    `json:"read"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

// Principal is the authenticated identity, produced once at the trust
// boundary and passed down instead of being re-parsed per use site.
type Principal struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
