// Package models provides the risk classifiers that run on the reduced
// feature vector.
//
// Two implementations are available:
//   - LogisticModel — frozen logistic regression evaluated in-process
//   - BYOMModel     — delegates to an external HTTP service ("bring your own model")
//
// Classifiers never retry: a failure surfaces immediately as
// *errs.InferenceError.
package models

import (
	"context"
	"fmt"
	"math"

	"github.com/HatiCode/glucoguard/pkg/errs"
)

// DefaultThreshold is the probability at or above which the positive class
// is predicted.
const DefaultThreshold = 0.5

// Result is the output of a classifier.
type Result struct {
	// Label is 1 for diabetes risk, 0 for no risk.
	Label int `json:"prediction"`

	// Probability is the probability mass assigned to class 1, in [0, 1].
	Probability float64 `json:"probability"`
}

// Classifier is implemented by every risk classifier.
type Classifier interface {
	// Predict classifies a reduced feature vector. It is deterministic for
	// identical inputs and an identical artifact.
	Predict(ctx context.Context, reduced []float64) (Result, error)

	// InputDim returns the expected length of the reduced vector, or 0 if
	// the classifier does not know it.
	InputDim() int

	// Name returns a short identifier such as "logistic" or "byom".
	Name() string
}

// ValidateThreshold checks that a decision threshold lies in (0, 1).
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold <= 0 || threshold >= 1 {
		return fmt.Errorf("threshold must be in (0, 1), got %v", threshold)
	}
	return nil
}

// ThresholdOf returns the decision threshold c applies, or DefaultThreshold
// when c does not report one.
func ThresholdOf(c Classifier) float64 {
	if t, ok := c.(interface{ Threshold() float64 }); ok {
		return t.Threshold()
	}
	return DefaultThreshold
}

// Label applies threshold to a positive-class probability.
func Label(probability, threshold float64) int {
	if probability >= threshold {
		return 1
	}
	return 0
}

func checkVector(model string, reduced []float64, dim int) error {
	if len(reduced) == 0 {
		return &errs.InferenceError{Model: model, Reason: "empty feature vector"}
	}
	if dim > 0 && len(reduced) != dim {
		return &errs.InferenceError{Model: model, Reason: fmt.Sprintf("expected %d features, got %d", dim, len(reduced))}
	}
	for i, v := range reduced {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &errs.InferenceError{Model: model, Reason: fmt.Sprintf("non-finite feature at index %d", i)}
		}
	}
	return nil
}
