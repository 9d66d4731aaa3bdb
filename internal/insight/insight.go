// Package insight turns a feature record into a human-readable risk
// explanation. It is deliberately rule-based and independent of the model's
// numeric output, so the narrative stays stable and explainable.
package insight

import (
	"fmt"
	"strings"

	"riskline/internal/features"
)

const maxActions = 3

// Generate returns a reason paragraph and up to three suggested actions for
// the given feature record, risk level, and assignee name. Rules fire in a
// fixed order; reasons are joined with a single space.
func Generate(r features.Record, riskLevel, employeeName string) (string, []string) {
	var reasons []string
	var actions []string

	if r.Overdue {
		reasons = append(reasons, fmt.Sprintf("Task is past its deadline with only %d%% completion.", int(r.Progress)))
		actions = append(actions, "Immediately escalate to project manager")
	}
	if r.ProgressGap < -20 {
		gap := int(r.ProgressGap)
		if gap < 0 {
			gap = -gap
		}
		reasons = append(reasons, fmt.Sprintf("Progress is %d%% behind the expected plan for this date.", gap))
		actions = append(actions, "Schedule a daily standup to unblock issues")
	}
	if r.NeededDailyVelocity > r.AvgDailyProgress*1.5 && r.DaysRemaining > 0 {
		reasons = append(reasons, fmt.Sprintf("Current velocity (%.1f%%/day) needs to increase to %.1f%%/day to meet the deadline.",
			r.AvgDailyProgress, r.NeededDailyVelocity))
		actions = append(actions, "Assign additional resources to accelerate delivery")
	}
	if r.EmployeeTrustScore < 60 {
		reasons = append(reasons, fmt.Sprintf("%s's trust score is low (%d), indicating inconsistent reporting.",
			employeeName, int(r.EmployeeTrustScore)))
		actions = append(actions, fmt.Sprintf("Conduct a progress review with %s", employeeName))
	}
	if r.DaysRemaining < 5 && r.Progress < 70 {
		actions = append(actions, "Consider scope reduction or deadline extension")
	}

	if len(reasons) == 0 {
		if riskLevel == "Low" {
			reasons = append(reasons, "Task is progressing on schedule. No immediate concerns.")
		} else {
			reasons = append(reasons, "Moderate risk factors detected. Close monitoring recommended.")
		}
	}
	if len(actions) > maxActions {
		actions = actions[:maxActions]
	}
	return strings.Join(reasons, " "), actions
}
