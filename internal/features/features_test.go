package features

import (
	"testing"
	"time"

	"riskline/internal/domain"
)

var testNow = time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC)

func day(offset int) string {
	return testNow.AddDate(0, 0, offset).Format("2006-01-02")
}

func TestVectorOrderAndDeterminism(t *testing.T) {
	task := domain.Task{
		Progress:  40,
		Priority:  "high",
		Deadline:  day(10),
		CreatedAt: day(-10),
	}
	history := []domain.ProgressReport{
		{CompletionPercent: 10, HoursWorked: 4},
		{CompletionPercent: 25, HoursWorked: 6},
		{CompletionPercent: 40, HoursWorked: 8},
	}
	r := BuildTaskFeatures(task, history, 75, testNow)
	v := Vector(r)
	if len(v) != int(NumColumns) {
		t.Fatalf("vector length = %d, want %d", len(v), NumColumns)
	}
	want := []float64{40, 10, -10, 15, 6, 3, 75, 6, 0}
	for i, w := range want {
		if v[i] != w {
			t.Fatalf("column %d = %v, want %v (vector %v)", i, v[i], w, v)
		}
	}
	again := Vector(BuildTaskFeatures(task, history, 75, testNow))
	for i := range v {
		if v[i] != again[i] {
			t.Fatalf("vector not deterministic at column %d: %v vs %v", i, v[i], again[i])
		}
	}
}

func TestOverdueBoundaries(t *testing.T) {
	cases := []struct {
		name     string
		deadline string
		progress float64
		want     bool
	}{
		{"past due incomplete", day(-1), 99, true},
		{"past due complete", day(-1), 100, false},
		{"due today incomplete", day(0), 50, false},
		{"future complete", day(5), 100, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task := domain.Task{Progress: tc.progress, Deadline: tc.deadline, CreatedAt: day(-30)}
			r := BuildTaskFeatures(task, nil, 80, testNow)
			if r.Overdue != tc.want {
				t.Fatalf("overdue = %v, want %v (days_remaining=%d progress=%v)",
					r.Overdue, tc.want, r.DaysRemaining, tc.progress)
			}
		})
	}
}

func TestNeededVelocitySentinel(t *testing.T) {
	cases := []struct {
		name     string
		deadline string
		progress float64
		want     float64
	}{
		{"overdue", day(-3), 20, OverdueVelocitySentinel},
		{"due today", day(0), 20, OverdueVelocitySentinel},
		{"five days left", day(5), 50, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task := domain.Task{Progress: tc.progress, Deadline: tc.deadline, CreatedAt: day(-30)}
			r := BuildTaskFeatures(task, nil, 80, testNow)
			if r.NeededDailyVelocity != tc.want {
				t.Fatalf("needed_daily_velocity = %v, want %v", r.NeededDailyVelocity, tc.want)
			}
		})
	}
}

func TestAvgDailyProgress(t *testing.T) {
	task := domain.Task{Progress: 30, Deadline: day(10), CreatedAt: day(-10)}

	if r := BuildTaskFeatures(task, nil, 80, testNow); r.AvgDailyProgress != 0 {
		t.Fatalf("no history: avg_daily_progress = %v, want 0", r.AvgDailyProgress)
	}
	one := []domain.ProgressReport{{CompletionPercent: 30}}
	if r := BuildTaskFeatures(task, one, 80, testNow); r.AvgDailyProgress != 30 {
		t.Fatalf("single observation: avg_daily_progress = %v, want 30", r.AvgDailyProgress)
	}
	series := []domain.ProgressReport{
		{CompletionPercent: 10}, {CompletionPercent: 16}, {CompletionPercent: 30},
	}
	if r := BuildTaskFeatures(task, series, 80, testNow); r.AvgDailyProgress != 10 {
		t.Fatalf("series: avg_daily_progress = %v, want 10", r.AvgDailyProgress)
	}
}

func TestProgressGapDegenerateDuration(t *testing.T) {
	// Creation on the deadline day: duration <= 0, so 100% is expected.
	task := domain.Task{Progress: 30, Deadline: day(0), CreatedAt: day(0)}
	r := BuildTaskFeatures(task, nil, 80, testNow)
	if r.ProgressGap != -70 {
		t.Fatalf("progress_gap = %v, want -70", r.ProgressGap)
	}
}

func TestUnparsableDeadlineTreatedAsToday(t *testing.T) {
	task := domain.Task{Progress: 10, Deadline: "not-a-date", CreatedAt: day(-5)}
	r := BuildTaskFeatures(task, nil, 80, testNow)
	if r.DaysRemaining != 0 {
		t.Fatalf("days_remaining = %d, want 0 for unparsable deadline", r.DaysRemaining)
	}
	if r.Overdue {
		t.Fatalf("unparsable deadline must not mark the task overdue")
	}
}

func TestAnomalyVector(t *testing.T) {
	report := domain.ProgressReport{HoursWorked: 8, CompletionPercent: 50}
	v := AnomalyVector(report, 50)
	if len(v) != AnomalyColumns {
		t.Fatalf("anomaly vector length = %d, want %d", len(v), AnomalyColumns)
	}
	// Zero delta floors the divisor to 0.1 rather than dividing by zero.
	if v[1] != 0 {
		t.Fatalf("progress_delta = %v, want 0", v[1])
	}
	if v[2] != 80 {
		t.Fatalf("hours_per_percent = %v, want 80", v[2])
	}

	v = AnomalyVector(domain.ProgressReport{HoursWorked: 30, CompletionPercent: 60}, 20)
	if v[0] != 30 || v[3] != 24 {
		t.Fatalf("hours columns = %v/%v, want raw 30 and cap 24", v[0], v[3])
	}
	if v[1] != 40 || v[2] != 0.75 {
		t.Fatalf("delta/ratio = %v/%v, want 40/0.75", v[1], v[2])
	}
}
