package model

import (
	"fmt"
	"math"
)

// IsoNode is one node of an isolation tree. A node with Left < 0 is an
// external node; Size is the number of training samples that reached it.
type IsoNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Size      int     `json:"size,omitempty"`
}

type IsoTree struct {
	Nodes []IsoNode `json:"nodes"`
}

// AnomalyArtifact is an isolation forest. Score returns the sample score
// (more negative means more anomalous); an observation is flagged when its
// score falls below the offset fitted during training.
type AnomalyArtifact struct {
	Type        string    `json:"type"`
	NumFeatures int       `json:"n_features"`
	SampleSize  int       `json:"sample_size"`
	Offset      float64   `json:"offset"`
	Trees       []IsoTree `json:"trees"`
}

// averagePathLength is the expected path length of an unsuccessful BST
// search over n samples, the normalizer from the isolation forest paper.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	h := math.Log(float64(n-1)) + 0.5772156649
	return 2*h - 2*float64(n-1)/float64(n)
}

func (t IsoTree) pathLength(x []float64) (float64, error) {
	if len(t.Nodes) == 0 {
		return 0, fmt.Errorf("empty isolation tree")
	}
	i, depth := 0, 0
	for steps := 0; steps <= len(t.Nodes); steps++ {
		n := t.Nodes[i]
		if n.Left < 0 {
			return float64(depth) + averagePathLength(n.Size), nil
		}
		if n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return 0, fmt.Errorf("isolation node %d child out of range", i)
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
		depth++
	}
	return 0, fmt.Errorf("isolation tree traversal did not terminate")
}

// Score computes the sample score for one feature vector and whether it is
// flagged as an outlier.
func (a *AnomalyArtifact) Score(x []float64) (score float64, anomaly bool, err error) {
	if len(x) != a.NumFeatures {
		return 0, false, fmt.Errorf("feature vector has %d columns, artifact expects %d", len(x), a.NumFeatures)
	}
	if len(a.Trees) == 0 {
		return 0, false, fmt.Errorf("artifact has no trees")
	}
	var sum float64
	for _, tree := range a.Trees {
		h, err := tree.pathLength(x)
		if err != nil {
			return 0, false, err
		}
		sum += h
	}
	mean := sum / float64(len(a.Trees))
	score = -math.Pow(2, -mean/averagePathLength(a.SampleSize))
	return score, score < a.Offset, nil
}

func (a *AnomalyArtifact) validate() error {
	if a.NumFeatures <= 0 || len(a.Trees) == 0 {
		return fmt.Errorf("anomaly artifact forest is empty")
	}
	if a.SampleSize < 2 {
		return fmt.Errorf("anomaly artifact sample_size must be >= 2")
	}
	for ti, tree := range a.Trees {
		for ni, n := range tree.Nodes {
			if n.Left < 0 {
				continue
			}
			if n.Feature < 0 || n.Feature >= a.NumFeatures {
				return fmt.Errorf("isolation tree %d node %d references feature %d, artifact has %d", ti, ni, n.Feature, a.NumFeatures)
			}
		}
	}
	return nil
}
