package insight

import (
	"strings"
	"testing"

	"riskline/internal/features"
)

func TestOverdueAndLowTrust(t *testing.T) {
	r := features.Record{
		Progress:           10,
		DaysRemaining:      -5,
		ProgressGap:        -50,
		EmployeeTrustScore: 40,
		Overdue:            true,
	}
	reason, actions := Generate(r, "Critical", "Dana")
	if !strings.Contains(reason, "past its deadline") {
		t.Fatalf("reason missing overdue clause: %q", reason)
	}
	if !strings.Contains(reason, "trust score is low") {
		t.Fatalf("reason missing low-trust clause: %q", reason)
	}
	found := false
	for _, a := range actions {
		if strings.Contains(a, "Dana") {
			found = true
		}
	}
	if !found {
		t.Fatalf("no action names the employee: %v", actions)
	}
}

func TestActionsCappedAtThreeInRuleOrder(t *testing.T) {
	// Every rule fires; only the first three actions survive.
	r := features.Record{
		Progress:            10,
		DaysRemaining:       2,
		ProgressGap:         -40,
		AvgDailyProgress:    1,
		NeededDailyVelocity: 45,
		EmployeeTrustScore:  30,
		Overdue:             true,
	}
	_, actions := Generate(r, "Critical", "Lee")
	if len(actions) != 3 {
		t.Fatalf("got %d actions, want 3: %v", len(actions), actions)
	}
	want := []string{
		"Immediately escalate to project manager",
		"Schedule a daily standup to unblock issues",
		"Assign additional resources to accelerate delivery",
	}
	for i, w := range want {
		if actions[i] != w {
			t.Fatalf("action %d = %q, want %q", i, actions[i], w)
		}
	}
}

func TestVelocityRuleRequiresRemainingDays(t *testing.T) {
	r := features.Record{
		Progress:            50,
		DaysRemaining:       -1,
		AvgDailyProgress:    1,
		NeededDailyVelocity: features.OverdueVelocitySentinel,
	}
	reason, _ := Generate(r, "High", "Sam")
	if strings.Contains(reason, "needs to increase") {
		t.Fatalf("velocity rule must not fire when past due: %q", reason)
	}
}

func TestScopeReductionActionHasNoReason(t *testing.T) {
	r := features.Record{
		Progress:           60,
		DaysRemaining:      3,
		EmployeeTrustScore: 90,
	}
	reason, actions := Generate(r, "Low", "Sam")
	if reason != "Task is progressing on schedule. No immediate concerns." {
		t.Fatalf("unexpected fallback reason: %q", reason)
	}
	if len(actions) != 1 || actions[0] != "Consider scope reduction or deadline extension" {
		t.Fatalf("unexpected actions: %v", actions)
	}
}

func TestGenericFallbacks(t *testing.T) {
	r := features.Record{Progress: 80, DaysRemaining: 30, AvgDailyProgress: 10, NeededDailyVelocity: 1, EmployeeTrustScore: 90}
	if reason, _ := Generate(r, "Low", "Sam"); !strings.Contains(reason, "on schedule") {
		t.Fatalf("low-risk fallback missing: %q", reason)
	}
	if reason, _ := Generate(r, "Medium", "Sam"); !strings.Contains(reason, "Close monitoring") {
		t.Fatalf("moderate fallback missing: %q", reason)
	}
}
