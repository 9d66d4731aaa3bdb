package anomaly_test

import (
	"strings"
	"testing"

	"riskline/internal/anomaly"
	"riskline/internal/domain"
	"riskline/internal/model"
	"riskline/internal/model/modeltest"
)

func newDetector(t *testing.T) *anomaly.Detector {
	t.Helper()
	dir := t.TempDir()
	modeltest.WriteAnomalyArtifact(t, dir)
	return anomaly.New(model.NewService(dir))
}

func TestUntrainedDetectorSkipsCheck(t *testing.T) {
	d := anomaly.New(model.NewService(t.TempDir()))
	check, err := d.CheckProgressReport(domain.ProgressReport{HoursWorked: 20, CompletionPercent: 90}, 0)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if check.IsAnomaly || check.AnomalyScore != 0 || check.Reason != nil {
		t.Fatalf("untrained detector must return a clean check, got %+v", check)
	}
}

func TestOrdinaryReportNotFlagged(t *testing.T) {
	d := newDetector(t)
	check, err := d.CheckProgressReport(domain.ProgressReport{HoursWorked: 6, CompletionPercent: 40}, 30)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if check.IsAnomaly {
		t.Fatalf("ordinary report flagged: %+v", check)
	}
	if check.AnomalyScore >= 0 {
		t.Fatalf("score = %v, want negative sample score", check.AnomalyScore)
	}
	if check.Reason != nil {
		t.Fatalf("unflagged report must carry no reason, got %q", *check.Reason)
	}
}

func TestReasonPrecedence(t *testing.T) {
	d := newDetector(t)
	cases := []struct {
		name    string
		hours   float64
		percent float64
		prev    float64
		want    string
	}{
		{"hours rule outranks delta", 15, 25, 20, "hours worked is unusually high"},
		{"progress jump", 4, 80, 20, "statistically unlikely"},
		{"hours without progress", 8, 30, 40, "no progress increase"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := domain.ProgressReport{HoursWorked: tc.hours, CompletionPercent: tc.percent}
			check, err := d.CheckProgressReport(report, tc.prev)
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			if !check.IsAnomaly {
				t.Fatalf("report not flagged: %+v", check)
			}
			if check.Reason == nil || !strings.Contains(*check.Reason, tc.want) {
				t.Fatalf("reason = %v, want mention of %q", check.Reason, tc.want)
			}
		})
	}
}
