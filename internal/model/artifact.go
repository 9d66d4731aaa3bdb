// Package model loads and evaluates the trained inference artifacts.
//
// Artifacts are produced by the offline training step and stored as JSON
// documents at fixed paths; this package treats them as opaque bundles with a
// fixed input contract and implements only their evaluation.
package model

import "fmt"

// TreeNode is one node of a decision tree. A node with Left < 0 is a leaf
// and carries the class counts observed at that leaf during training.
type TreeNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Classes   []float64 `json:"classes,omitempty"`
}

type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// Forest is a random-forest classifier: class probabilities are the mean of
// the per-tree leaf distributions.
type Forest struct {
	NumFeatures int    `json:"n_features"`
	NumClasses  int    `json:"n_classes"`
	Trees       []Tree `json:"trees"`
}

// RiskArtifact bundles the fitted classifier with its index-to-label map.
// The label map is part of the artifact contract, not hardcoded here.
type RiskArtifact struct {
	Type   string         `json:"type"`
	Labels map[int]string `json:"labels"`
	Forest Forest         `json:"forest"`
}

func (t Tree) leaf(x []float64) (TreeNode, error) {
	if len(t.Nodes) == 0 {
		return TreeNode{}, fmt.Errorf("empty tree")
	}
	i := 0
	for steps := 0; steps <= len(t.Nodes); steps++ {
		n := t.Nodes[i]
		if n.Left < 0 {
			return n, nil
		}
		if n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return TreeNode{}, fmt.Errorf("node %d child out of range", i)
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return TreeNode{}, fmt.Errorf("tree traversal did not terminate")
}

// Proba returns the class-probability distribution for one feature vector.
func (f Forest) Proba(x []float64) ([]float64, error) {
	if len(x) != f.NumFeatures {
		return nil, fmt.Errorf("feature vector has %d columns, artifact expects %d", len(x), f.NumFeatures)
	}
	if len(f.Trees) == 0 {
		return nil, fmt.Errorf("artifact has no trees")
	}
	for i, v := range x {
		if v != v {
			return nil, fmt.Errorf("feature %d is NaN", i)
		}
	}
	proba := make([]float64, f.NumClasses)
	for _, tree := range f.Trees {
		leaf, err := tree.leaf(x)
		if err != nil {
			return nil, err
		}
		if len(leaf.Classes) != f.NumClasses {
			return nil, fmt.Errorf("leaf has %d classes, artifact expects %d", len(leaf.Classes), f.NumClasses)
		}
		var total float64
		for _, c := range leaf.Classes {
			total += c
		}
		if total <= 0 {
			return nil, fmt.Errorf("leaf with empty class counts")
		}
		for c, v := range leaf.Classes {
			proba[c] += v / total
		}
	}
	for c := range proba {
		proba[c] /= float64(len(f.Trees))
	}
	return proba, nil
}

// Predict returns the majority class index and the probability distribution.
func (a *RiskArtifact) Predict(x []float64) (int, []float64, error) {
	proba, err := a.Forest.Proba(x)
	if err != nil {
		return 0, nil, err
	}
	best := 0
	for c := 1; c < len(proba); c++ {
		if proba[c] > proba[best] {
			best = c
		}
	}
	return best, proba, nil
}

// Label maps a class index to its risk level via the artifact's label map.
func (a *RiskArtifact) Label(idx int) (string, error) {
	label, ok := a.Labels[idx]
	if !ok {
		return "", fmt.Errorf("artifact label map has no entry for class %d", idx)
	}
	return label, nil
}

func (a *RiskArtifact) validate() error {
	if len(a.Labels) == 0 {
		return fmt.Errorf("risk artifact missing label map")
	}
	for c := 0; c < a.Forest.NumClasses; c++ {
		if _, ok := a.Labels[c]; !ok {
			return fmt.Errorf("risk artifact label map missing class %d", c)
		}
	}
	if a.Forest.NumFeatures <= 0 || len(a.Forest.Trees) == 0 {
		return fmt.Errorf("risk artifact forest is empty")
	}
	for ti, tree := range a.Forest.Trees {
		for ni, n := range tree.Nodes {
			if n.Left < 0 {
				continue
			}
			if n.Feature < 0 || n.Feature >= a.Forest.NumFeatures {
				return fmt.Errorf("tree %d node %d references feature %d, artifact has %d", ti, ni, n.Feature, a.Forest.NumFeatures)
			}
		}
	}
	return nil
}
