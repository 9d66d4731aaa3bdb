package risklinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Riskline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project represents the API project model (partial).
type Project struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	Progress  float64 `json:"progress"`
	RiskScore float64 `json:"risk_score"`
	Deadline  string  `json:"deadline,omitempty"`
}

// TaskRisk is the per-task slice of a risk prediction.
type TaskRisk struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Employee            string   `json:"employee"`
	CompletionPercent   int      `json:"completionPercent"`
	DaysRemaining       int      `json:"daysRemaining"`
	PredictedCompletion string   `json:"predictedCompletion"`
	RiskLevel           string   `json:"riskLevel"`
	RiskScore           float64  `json:"riskScore"`
	Confidence          float64  `json:"confidence"`
	Reason              string   `json:"reason"`
	SuggestedActions    []string `json:"suggestedActions"`
}

// RiskResult is a project-level risk prediction.
type RiskResult struct {
	ProjectName string     `json:"projectName"`
	OverallRisk string     `json:"overallRisk"`
	RiskPercent float64    `json:"riskPercent"`
	Confidence  float64    `json:"confidence"`
	Tasks       []TaskRisk `json:"tasks"`
}

// ProgressReport is a stored daily report.
type ProgressReport struct {
	ID                string  `json:"id"`
	TaskID            string  `json:"task_id"`
	EmployeeID        string  `json:"employee_id"`
	Date              string  `json:"date"`
	HoursWorked       float64 `json:"hours_worked"`
	CompletionPercent float64 `json:"completion_percent"`
	AnomalyFlag       bool    `json:"anomaly_flag"`
}

// ProgressResult is the submit-progress response.
type ProgressResult struct {
	Report          ProgressReport `json:"report"`
	AnomalyDetected bool           `json:"anomalyDetected"`
	AnomalyScore    float64        `json:"anomalyScore"`
	AnomalyReason   *string        `json:"anomalyReason,omitempty"`
}

// Alert represents a raised alert.
type Alert struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Severity   string  `json:"severity"`
	Title      string  `json:"title"`
	Message    string  `json:"message"`
	ProjectID  *string `json:"project_id,omitempty"`
	TaskID     *string `json:"task_id,omitempty"`
	EmployeeID *string `json:"employee_id,omitempty"`
	Read       bool    `json:"read"`
	CreatedAt  string  `json:"created_at"`
}

// AlertList wraps the alert listing with the unread counter.
type AlertList struct {
	Alerts      []Alert `json:"alerts"`
	UnreadCount int     `json:"unreadCount"`
}

// PipelineSummary reports one batch run.
type PipelineSummary struct {
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Alerts     int    `json:"alerts"`
	Failures   []struct {
		ProjectID string `json:"project_id"`
		Reason    string `json:"reason"`
	} `json:"failures,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Projects lists all projects.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "v0/projects", nil, &resp)
	return resp, err
}

// ProjectRisk predicts delivery risk for a project.
func (c *Client) ProjectRisk(ctx context.Context, projectID string) (RiskResult, error) {
	var resp RiskResult
	endpoint := fmt.Sprintf("v0/projects/%s/risk", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SubmitProgress posts a daily progress report.
func (c *Client) SubmitProgress(ctx context.Context, taskID, employeeID string, hoursWorked, completionPercent float64) (ProgressResult, error) {
	body := map[string]any{
		"task_id":            taskID,
		"employee_id":        employeeID,
		"hours_worked":       hoursWorked,
		"completion_percent": completionPercent,
	}
	var resp ProgressResult
	err := c.do(ctx, http.MethodPost, "v0/progress", body, &resp)
	return resp, err
}

// Alerts lists alerts, optionally unread only.
func (c *Client) Alerts(ctx context.Context, unreadOnly bool) (AlertList, error) {
	endpoint := "v0/alerts"
	if unreadOnly {
		endpoint += "?unread=true"
	}
	var resp AlertList
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// MarkAlertRead marks one alert as read.
func (c *Client) MarkAlertRead(ctx context.Context, alertID string) error {
	endpoint := fmt.Sprintf("v0/alerts/%s/read", url.PathEscape(alertID))
	return c.do(ctx, http.MethodPost, endpoint, nil, nil)
}

// RunPipeline triggers a batch scoring run.
func (c *Client) RunPipeline(ctx context.Context) (PipelineSummary, error) {
	var resp PipelineSummary
	err := c.do(ctx, http.MethodPost, "v0/pipeline/run", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
