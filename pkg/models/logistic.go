package models

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// LogisticModel is a frozen binary logistic regression:
//
//	p = 1 / (1 + exp(-(w·z + b)))
//	label = 1 iff p >= threshold
type LogisticModel struct {
	coefficients []float64
	intercept    float64
	threshold    float64
}

// NewLogisticModel creates a logistic classifier from fitted parameters.
// A zero threshold selects DefaultThreshold.
func NewLogisticModel(coefficients []float64, intercept, threshold float64) (*LogisticModel, error) {
	if len(coefficients) == 0 {
		return nil, fmt.Errorf("logistic: no coefficients")
	}
	for i, c := range coefficients {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("logistic: non-finite coefficient at index %d", i)
		}
	}
	if math.IsNaN(intercept) || math.IsInf(intercept, 0) {
		return nil, fmt.Errorf("logistic: non-finite intercept")
	}
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if err := ValidateThreshold(threshold); err != nil {
		return nil, fmt.Errorf("logistic: %w", err)
	}

	w := make([]float64, len(coefficients))
	copy(w, coefficients)

	return &LogisticModel{
		coefficients: w,
		intercept:    intercept,
		threshold:    threshold,
	}, nil
}

// Name returns the model identifier.
func (m *LogisticModel) Name() string {
	return "logistic"
}

// InputDim returns the number of coefficients.
func (m *LogisticModel) InputDim() int {
	return len(m.coefficients)
}

// Threshold returns the decision threshold.
func (m *LogisticModel) Threshold() float64 {
	return m.threshold
}

// Predict returns the positive-class probability and the thresholded label.
func (m *LogisticModel) Predict(ctx context.Context, reduced []float64) (Result, error) {
	if err := checkVector(m.Name(), reduced, len(m.coefficients)); err != nil {
		return Result{}, err
	}

	p := sigmoid(floats.Dot(m.coefficients, reduced) + m.intercept)

	return Result{
		Label:       Label(p, m.threshold),
		Probability: p,
	}, nil
}

// sigmoid is evaluated in the form that cannot overflow for either sign.
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
