// Package modeltest writes small deterministic artifacts for tests.
package modeltest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"riskline/internal/model"
)

func leaf(classes ...float64) model.TreeNode {
	return model.TreeNode{Feature: -1, Left: -1, Right: -1, Classes: classes}
}

// WriteRiskArtifact writes a single-tree classifier that assigns risk purely
// by current progress, with full confidence at every leaf:
//
//	progress <= 12.5          -> Critical
//	12.5 < progress <= 37.5   -> High
//	37.5 < progress <= 62.5   -> Medium
//	progress > 62.5           -> Low
func WriteRiskArtifact(t *testing.T, dir string) {
	t.Helper()
	a := model.RiskArtifact{
		Type:   "risk_classifier",
		Labels: map[int]string{0: "Low", 1: "Medium", 2: "High", 3: "Critical"},
		Forest: model.Forest{
			NumFeatures: 9,
			NumClasses:  4,
			Trees: []model.Tree{{Nodes: []model.TreeNode{
				{Feature: 0, Threshold: 37.5, Left: 1, Right: 2},
				{Feature: 0, Threshold: 12.5, Left: 3, Right: 4},
				{Feature: 0, Threshold: 62.5, Left: 5, Right: 6},
				leaf(0, 0, 0, 10),
				leaf(0, 0, 10, 0),
				leaf(0, 10, 0, 0),
				leaf(10, 0, 0, 0),
			}}},
		},
	}
	write(t, dir, model.RiskModelFile, a)
}

// WriteAnomalyArtifact writes a single-tree isolation forest that isolates
// high-hours reports, hours-without-progress reports, and large progress
// jumps into short paths (score below the offset), and routes ordinary
// reports to large leaves.
func WriteAnomalyArtifact(t *testing.T, dir string) {
	t.Helper()
	ext := func(size int) model.IsoNode {
		return model.IsoNode{Feature: -1, Left: -1, Right: -1, Size: size}
	}
	a := model.AnomalyArtifact{
		Type:        "anomaly_detector",
		NumFeatures: 4,
		SampleSize:  256,
		Offset:      -0.7,
		Trees: []model.IsoTree{{Nodes: []model.IsoNode{
			{Feature: 0, Threshold: 12, Left: 1, Right: 2},
			{Feature: 1, Threshold: 0, Left: 3, Right: 4},
			ext(1),
			{Feature: 0, Threshold: 0.5, Left: 5, Right: 6},
			{Feature: 1, Threshold: 50, Left: 7, Right: 8},
			ext(150),
			ext(2),
			ext(200),
			ext(1),
		}}},
	}
	write(t, dir, model.AnomalyModelFile, a)
}

func write(t *testing.T, dir, name string, artifact any) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	data, err := json.Marshal(artifact)
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
}
