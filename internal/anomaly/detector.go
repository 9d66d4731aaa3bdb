// Package anomaly checks daily progress reports for implausible
// hours-versus-progress patterns.
package anomaly

import (
	"errors"
	"fmt"
	"math"

	"riskline/internal/domain"
	"riskline/internal/features"
	"riskline/internal/model"
)

// Check is the outcome of screening one report.
type Check struct {
	IsAnomaly    bool    `json:"isAnomaly"`
	AnomalyScore float64 `json:"anomalyScore"`
	Reason       *string `json:"reason"`
}

// Detector screens progress reports using an injected model service.
type Detector struct {
	Models *model.Service
}

func New(models *model.Service) *Detector {
	return &Detector{Models: models}
}

// CheckProgressReport scores one report against the previous known completion
// percent. Anomaly detection is best-effort: an untrained artifact yields a
// clean result instead of blocking the submission path.
func (d *Detector) CheckProgressReport(report domain.ProgressReport, prevCompletionPercent float64) (Check, error) {
	det, err := d.Models.AnomalyDetector()
	if err != nil {
		if errors.Is(err, model.ErrModelNotTrained) {
			return Check{}, nil
		}
		return Check{}, err
	}

	vector := features.AnomalyVector(report, prevCompletionPercent)
	score, flagged, err := det.Score(vector)
	if err != nil {
		return Check{}, fmt.Errorf("score report: %w", err)
	}

	check := Check{
		IsAnomaly:    flagged,
		AnomalyScore: math.Round(score*10000) / 10000,
	}
	if flagged {
		reason := reasonFor(report.HoursWorked, report.CompletionPercent-prevCompletionPercent)
		check.Reason = &reason
	}
	return check, nil
}

// reasonFor picks the explanation for a flagged report. Precedence matters:
// extreme hours outrank progress jumps, which outrank idle-hours reports.
func reasonFor(hours, delta float64) string {
	switch {
	case hours > 12:
		return fmt.Sprintf("Claimed %.0f hours worked is unusually high.", hours)
	case delta > 50:
		return fmt.Sprintf("Progress jump of %.0f%% in a single day is statistically unlikely.", delta)
	case hours > 0 && delta <= 0:
		return fmt.Sprintf("Reported %.0f hours but no progress increase detected.", hours)
	default:
		return "Report pattern deviates significantly from historical norms."
	}
}
