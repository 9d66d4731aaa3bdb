package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrModelNotTrained marks a missing artifact: a configuration condition,
// not an inference failure, and retryable once an artifact is trained and
// placed at the expected path.
var ErrModelNotTrained = errors.New("model artifact not trained")

const (
	RiskModelFile    = "risk_model.json"
	AnomalyModelFile = "anomaly_model.json"
)

// Dir returns the default artifact directory for a workspace.
func Dir(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".riskline", "models")
}

// Service owns the cached artifact handles. Only a successful load is
// cached; while an artifact is missing or unreadable every call re-checks
// the path, so training and dropping a file in takes effect without a
// process restart. Construct one at process start and inject it wherever
// inference is needed.
type Service struct {
	dir string

	mu      sync.Mutex
	risk    *RiskArtifact
	anomaly *AnomalyArtifact
}

func NewService(dir string) *Service {
	return &Service{dir: dir}
}

// RiskClassifier returns the risk artifact, loading it on first use.
func (s *Service) RiskClassifier() (*RiskArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.risk != nil {
		return s.risk, nil
	}
	path := filepath.Join(s.dir, RiskModelFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotTrained, path)
		}
		return nil, fmt.Errorf("read risk artifact: %w", err)
	}
	var a RiskArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode risk artifact %s: %w", path, err)
	}
	if err := a.validate(); err != nil {
		return nil, fmt.Errorf("invalid risk artifact %s: %w", path, err)
	}
	s.risk = &a
	return s.risk, nil
}

// AnomalyDetector returns the anomaly artifact, loading it on first use.
func (s *Service) AnomalyDetector() (*AnomalyArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.anomaly != nil {
		return s.anomaly, nil
	}
	path := filepath.Join(s.dir, AnomalyModelFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotTrained, path)
		}
		return nil, fmt.Errorf("read anomaly artifact: %w", err)
	}
	var a AnomalyArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode anomaly artifact %s: %w", path, err)
	}
	if err := a.validate(); err != nil {
		return nil, fmt.Errorf("invalid anomaly artifact %s: %w", path, err)
	}
	s.anomaly = &a
	return s.anomaly, nil
}
