// Package inference is the pipeline boundary: it runs
//
//	build features → scale + reduce → classify
//
// over a frozen artifact set and turns every per-request failure into an
// Outcome instead of an error the caller has to classify. Service adds
// persistence and dashboard reads on top of the Predictor.
package inference

import (
	"context"
	"errors"

	"github.com/HatiCode/glucoguard/pkg/artifacts"
	"github.com/HatiCode/glucoguard/pkg/errs"
	"github.com/HatiCode/glucoguard/pkg/features"
	"github.com/HatiCode/glucoguard/pkg/models"
	"github.com/HatiCode/glucoguard/pkg/transform"
)

// Failure describes why a prediction could not be produced.
type Failure struct {
	Kind    errs.Kind `json:"kind"`
	Field   string    `json:"field,omitempty"`
	Message string    `json:"error"`
}

// Outcome is either a successful Result or the error that prevented it.
type Outcome struct {
	Result models.Result
	Err    error
}

// OK reports whether the outcome holds a result.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Failure returns the structured failure, or nil for a successful outcome.
func (o Outcome) Failure() *Failure {
	if o.Err == nil {
		return nil
	}
	return &Failure{
		Kind:    errs.KindOf(o.Err),
		Field:   errs.FieldOf(o.Err),
		Message: o.Err.Error(),
	}
}

func failed(err error) Outcome {
	return Outcome{Err: err}
}

// Predictor runs the frozen pipeline. It holds no mutable state and is safe
// for concurrent use.
type Predictor struct {
	version    string
	builder    *features.Builder
	pipeline   *transform.Pipeline
	classifier models.Classifier
}

// NewPredictor validates set once and returns a Predictor bound to it.
// A disagreement between artifacts is returned as
// *errs.ArtifactMismatchError.
func NewPredictor(set *artifacts.Set) (*Predictor, error) {
	if set == nil {
		return nil, errs.Mismatch("artifact set", "missing")
	}

	compiled, err := set.Compile()
	if err != nil {
		return nil, err
	}

	return &Predictor{
		version:    set.Version,
		builder:    compiled.Builder,
		pipeline:   compiled.Pipeline,
		classifier: compiled.Classifier,
	}, nil
}

// Version returns the artifact set version.
func (p *Predictor) Version() string {
	return p.version
}

// Classifier returns the classifier name.
func (p *Predictor) Classifier() string {
	return p.classifier.Name()
}

// Threshold returns the classifier's decision threshold.
func (p *Predictor) Threshold() float64 {
	return models.ThresholdOf(p.classifier)
}

// Predict runs one input through the pipeline. Classifier errors are
// always reported as *errs.InferenceError.
func (p *Predictor) Predict(ctx context.Context, raw features.RawInput) Outcome {
	vec, err := p.builder.Build(raw)
	if err != nil {
		return failed(err)
	}

	reduced, err := p.pipeline.Transform(vec)
	if err != nil {
		return failed(err)
	}

	result, err := p.classifier.Predict(ctx, reduced)
	if err != nil {
		var ie *errs.InferenceError
		if !errors.As(err, &ie) {
			err = &errs.InferenceError{Model: p.classifier.Name(), Reason: "classifier failed", Err: err}
		}
		return failed(err)
	}

	return Outcome{Result: result}
}
