// Package risk runs the per-task risk classifier and aggregates task
// predictions into a project-level risk result.
package risk

import (
	"fmt"
	"math"
	"sort"
	"time"

	"riskline/internal/domain"
	"riskline/internal/features"
	"riskline/internal/insight"
	"riskline/internal/model"
)

// levelScores is the fixed ordinal mapping from risk level to numeric score.
var levelScores = map[string]float64{
	"Low":      15,
	"Medium":   40,
	"High":     70,
	"Critical": 90,
}

// Project-level labels. The ">=60" bucket is deliberately named "High Risk"
// while the task level uses "High"; the frontend depends on the distinction.
const (
	OverallSafe     = "Safe"
	OverallWarning  = "Warning"
	OverallHighRisk = "High Risk"
	OverallCritical = "Critical"
)

const unassignedEmployee = "Unassigned"

// TaskRisk is the per-task prediction.
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

// Result is the project-level risk payload.
type Result struct {
	ProjectName string     `json:"projectName"`
	OverallRisk string     `json:"overallRisk"`
	RiskPercent float64    `json:"riskPercent"`
	Confidence  float64    `json:"confidence"`
	Tasks       []TaskRisk `json:"tasks"`
}

// Classifier predicts delivery risk using an injected model service.
type Classifier struct {
	Models            *model.Service
	DefaultTrustScore float64
	Now               func() time.Time
}

func New(models *model.Service) *Classifier {
	return &Classifier{Models: models, DefaultTrustScore: 80, Now: time.Now}
}

func (c *Classifier) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Classifier) defaultTrust() float64 {
	if c.DefaultTrustScore > 0 {
		return c.DefaultTrustScore
	}
	return 80
}

// PredictProjectRisk classifies every task and aggregates to a project risk.
// progressByTask maps task id to its chronological report history; employees
// maps employee id to the employee record.
func (c *Classifier) PredictProjectRisk(project domain.Project, tasks []domain.Task,
	progressByTask map[string][]domain.ProgressReport, employees map[string]domain.Employee) (Result, error) {

	clf, err := c.Models.RiskClassifier()
	if err != nil {
		return Result{}, err
	}
	now := c.now()

	var results []TaskRisk
	for _, task := range tasks {
		employeeName := unassignedEmployee
		trust := c.defaultTrust()
		if task.AssigneeID != nil {
			if emp, ok := employees[*task.AssigneeID]; ok {
				employeeName = emp.Name
				trust = emp.TrustScore
			}
		}

		record := features.BuildTaskFeatures(task, progressByTask[task.ID], trust, now)
		idx, proba, err := clf.Predict(features.Vector(record))
		if err != nil {
			return Result{}, fmt.Errorf("classify task %s: %w", task.ID, err)
		}
		level, err := clf.Label(idx)
		if err != nil {
			return Result{}, fmt.Errorf("classify task %s: %w", task.ID, err)
		}
		score, ok := levelScores[level]
		if !ok {
			return Result{}, fmt.Errorf("classify task %s: artifact produced unknown risk level %q", task.ID, level)
		}
		confidence := round1(maxOf(proba) * 100)
		reason, actions := insight.Generate(record, level, employeeName)

		daysRem := record.DaysRemaining
		if daysRem < 0 {
			daysRem = 0
		}
		results = append(results, TaskRisk{
			ID:                  task.ID,
			Name:                task.Title,
			Employee:            employeeName,
			CompletionPercent:   int(task.Progress),
			DaysRemaining:       daysRem,
			PredictedCompletion: estimateCompletion(task.Progress, record.AvgDailyProgress, record.DaysRemaining, now),
			RiskLevel:           level,
			RiskScore:           score,
			Confidence:          confidence,
			Reason:              reason,
			SuggestedActions:    actions,
		})
	}

	// Highest risk first; ties keep input order.
	sort.SliceStable(results, func(i, j int) bool { return results[i].RiskScore > results[j].RiskScore })

	overall := 0.0
	confidence := 85.0
	if len(results) > 0 {
		var scoreSum, confSum float64
		for _, r := range results {
			scoreSum += r.RiskScore
			confSum += r.Confidence
		}
		overall = round1(scoreSum / float64(len(results)))
		confidence = round1(confSum / float64(len(results)))
	}

	return Result{
		ProjectName: project.Name,
		OverallRisk: overallLabel(overall),
		RiskPercent: overall,
		Confidence:  confidence,
		Tasks:       results,
	}, nil
}

func overallLabel(score float64) string {
	switch {
	case score >= 80:
		return OverallCritical
	case score >= 60:
		return OverallHighRisk
	case score >= 35:
		return OverallWarning
	default:
		return OverallSafe
	}
}

// estimateCompletion projects the finish date at the current velocity, with a
// pessimistic fallback when velocity is non-positive.
func estimateCompletion(progress, avgDaily float64, daysRemaining int, now time.Time) string {
	var daysNeeded int
	if avgDaily <= 0 {
		daysNeeded = daysRemaining + 10
		if daysNeeded < 30 {
			daysNeeded = 30
		}
	} else {
		daysNeeded = int((100 - progress) / avgDaily)
	}
	if daysNeeded < 0 {
		daysNeeded = 0
	}
	return now.AddDate(0, 0, daysNeeded).Format("2006-01-02")
}

func maxOf(vals []float64) float64 {
	best := 0.0
	for _, v := range vals {
		if v > best {
			best = v
		}
	}
	return best
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
