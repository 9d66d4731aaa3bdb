package features

import (
	"time"

	"riskline/internal/domain"
)

// Column identifies one position in the task feature vector. The trained
// artifact encodes feature position, not name, so this order is a contract
// shared with the training side and must never change on one side alone.
type Column int

const (
	ColProgress Column = iota
	ColDaysRemaining
	ColProgressGap
	ColAvgDailyProgress
	ColNeededDailyVelocity
	ColPriorityScore
	ColEmployeeTrustScore
	ColAvgHoursWorked
	ColOverdue

	NumColumns
)

// AnomalyColumns is the width of the anomaly feature vector:
// hours_worked, progress_delta, hours_per_percent, hours capped at 24.
const AnomalyColumns = 4

// OverdueVelocitySentinel stands in for needed_daily_velocity once the
// deadline has passed: no finite velocity can recover the task.
const OverdueVelocitySentinel = 99

var priorityScores = map[string]float64{
	"low":      1,
	"medium":   2,
	"high":     3,
	"critical": 4,
}

// Record is the named feature set derived for one task.
type Record struct {
	Progress            float64
	DaysRemaining       int
	ProgressGap         float64
	AvgDailyProgress    float64
	NeededDailyVelocity float64
	PriorityScore       float64
	EmployeeTrustScore  float64
	AvgHoursWorked      float64
	Overdue             bool
}

// parseDate tolerates RFC3339, bare dates, and garbage; malformed or missing
// values fall back to today so incomplete historical records never fail a build.
func parseDate(s string, today time.Time) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return today
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(dateOf(to).Sub(dateOf(from)).Hours() / 24)
}

// BuildTaskFeatures derives the feature record for a task from its progress
// history (oldest first) and the assignee's trust score.
func BuildTaskFeatures(task domain.Task, history []domain.ProgressReport, trustScore float64, now time.Time) Record {
	progress := task.Progress
	deadline := parseDate(task.Deadline, now)
	daysRem := daysBetween(now, deadline)

	priority := priorityScores[task.Priority]
	if priority == 0 {
		priority = priorityScores["medium"]
	}

	// Expected progress grows linearly from task creation to deadline.
	// A duration of zero or less means the task should already be done.
	created := parseDate(task.CreatedAt, now)
	totalDays := daysBetween(created, deadline)
	elapsedRatio := 1.0
	if totalDays > 0 {
		elapsedRatio = float64(daysBetween(created, now)) / float64(totalDays)
		if elapsedRatio < 0 {
			elapsedRatio = 0
		}
		if elapsedRatio > 1 {
			elapsedRatio = 1
		}
	}
	expected := elapsedRatio * 100

	var avgDaily float64
	switch {
	case len(history) >= 2:
		var sum float64
		for i := 1; i < len(history); i++ {
			sum += history[i].CompletionPercent - history[i-1].CompletionPercent
		}
		avgDaily = sum / float64(len(history)-1)
	case len(history) == 1:
		avgDaily = history[0].CompletionPercent
	}

	needed := float64(OverdueVelocitySentinel)
	if daysRem > 0 {
		needed = (100 - progress) / float64(daysRem)
	}

	var avgHours float64
	if len(history) > 0 {
		var sum float64
		for _, h := range history {
			sum += h.HoursWorked
		}
		avgHours = sum / float64(len(history))
	}

	return Record{
		Progress:            progress,
		DaysRemaining:       daysRem,
		ProgressGap:         progress - expected,
		AvgDailyProgress:    avgDaily,
		NeededDailyVelocity: needed,
		PriorityScore:       priority,
		EmployeeTrustScore:  trustScore,
		AvgHoursWorked:      avgHours,
		Overdue:             daysRem < 0 && progress < 100,
	}
}

// Vector flattens a record into the fixed column order above.
func Vector(r Record) []float64 {
	v := make([]float64, NumColumns)
	v[ColProgress] = r.Progress
	v[ColDaysRemaining] = float64(r.DaysRemaining)
	v[ColProgressGap] = r.ProgressGap
	v[ColAvgDailyProgress] = r.AvgDailyProgress
	v[ColNeededDailyVelocity] = r.NeededDailyVelocity
	v[ColPriorityScore] = r.PriorityScore
	v[ColEmployeeTrustScore] = r.EmployeeTrustScore
	v[ColAvgHoursWorked] = r.AvgHoursWorked
	if r.Overdue {
		v[ColOverdue] = 1
	}
	return v
}

// AnomalyVector builds the detector input for one daily report given the
// previous known completion percent. The 0.1 floor on the delta divisor
// avoids division by zero and amplifies low-delta, high-hours reports.
func AnomalyVector(report domain.ProgressReport, prevCompletionPercent float64) []float64 {
	hours := report.HoursWorked
	delta := report.CompletionPercent - prevCompletionPercent
	divisor := delta
	if divisor < 0.1 {
		divisor = 0.1
	}
	capped := hours
	if capped > 24 {
		capped = 24
	}
	return []float64{hours, delta, hours / divisor, capped}
}
