// Package artifacts loads and validates the frozen model artifact set:
// categorical encoders, feature column order, scaler, reducer and
// classifier.
//
// The set is loaded once at startup and shared read-only by every request.
// Compile checks that all artifacts agree on feature count and order; a
// disagreement is an *errs.ArtifactMismatchError and the process must not
// serve traffic.
//
// Bundle format (JSON):
//
//	{
//	  "version": "diabetes-logreg-pca4-v1",
//	  "feature_names": ["gender", "age", ...],
//	  "encoders": {"gender": ["Female", "Male", "Other"], "smoking_history": [...]},
//	  "scaler": {"mean": [...], "scale": [...]},
//	  "reducer": {"mean": [...], "components": [[...], ...]},
//	  "classifier": {"type": "logistic", "coefficients": [...], "intercept": -3.2, "threshold": 0.5}
//	}
package artifacts

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/HatiCode/glucoguard/pkg/errs"
	"github.com/HatiCode/glucoguard/pkg/features"
	"github.com/HatiCode/glucoguard/pkg/models"
	"github.com/HatiCode/glucoguard/pkg/transform"
)

// ClassifierSpec holds the fitted classifier parameters from the bundle.
type ClassifierSpec struct {
	Type         string    `json:"type"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	Threshold    float64   `json:"threshold,omitempty"`
}

type bundle struct {
	Version      string                   `json:"version"`
	FeatureNames []string                 `json:"feature_names"`
	Encoders     map[string][]string      `json:"encoders"`
	Scaler       transform.StandardScaler `json:"scaler"`
	Reducer      transform.PCA            `json:"reducer"`
	Classifier   ClassifierSpec           `json:"classifier"`
}

// Set is the immutable artifact bundle. Fields must not be modified after
// the set has been handed to a predictor.
type Set struct {
	Version        string
	Columns        []string
	GenderEncoder  *features.Encoder
	SmokingEncoder *features.Encoder
	Scaler         transform.StandardScaler
	Reducer        transform.PCA
	Spec           ClassifierSpec
	Classifier     models.Classifier
}

// Compiled is a validated artifact set ready for inference.
type Compiled struct {
	Builder    *features.Builder
	Pipeline   *transform.Pipeline
	Classifier models.Classifier
}

// Load reads a JSON bundle from path.
func Load(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact bundle: %w", err)
	}
	defer f.Close()

	set, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("artifact bundle %s: %w", path, err)
	}
	return set, nil
}

// Parse decodes a JSON bundle and constructs its encoders and classifier.
// It does not cross-check dimensions; call Compile or Validate for that.
func Parse(r io.Reader) (*Set, error) {
	var b bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}

	gender, err := features.NewEncoder(features.Gender, b.Encoders[features.Gender])
	if err != nil {
		return nil, err
	}
	smoking, err := features.NewEncoder(features.SmokingHistory, b.Encoders[features.SmokingHistory])
	if err != nil {
		return nil, err
	}

	classifier, err := b.Classifier.Build(0)
	if err != nil {
		return nil, err
	}

	return &Set{
		Version:        b.Version,
		Columns:        b.FeatureNames,
		GenderEncoder:  gender,
		SmokingEncoder: smoking,
		Scaler:         b.Scaler,
		Reducer:        b.Reducer,
		Spec:           b.Classifier,
		Classifier:     classifier,
	}, nil
}

// Build constructs the classifier described by the spec. A non-zero
// threshold overrides the one recorded in the bundle.
func (c ClassifierSpec) Build(threshold float64) (models.Classifier, error) {
	if threshold == 0 {
		threshold = c.Threshold
	}

	switch c.Type {
	case "logistic", "":
		m, err := models.NewLogisticModel(c.Coefficients, c.Intercept, threshold)
		if err != nil {
			return nil, errs.Mismatch("classifier", "%v", err)
		}
		return m, nil
	default:
		return nil, errs.Mismatch("classifier", "unsupported type %q", c.Type)
	}
}

// WithClassifier returns a shallow copy of the set using c.
func (s *Set) WithClassifier(c models.Classifier) *Set {
	cp := *s
	cp.Classifier = c
	return &cp
}

// Compile validates that every artifact agrees on feature count and order
// and returns the components used at inference time.
func (s *Set) Compile() (*Compiled, error) {
	builder, err := features.NewBuilder(s.GenderEncoder, s.SmokingEncoder, s.Columns)
	if err != nil {
		return nil, err
	}

	pipeline, err := transform.NewPipeline(s.Scaler, s.Reducer, builder.Dim())
	if err != nil {
		return nil, err
	}

	if s.Classifier == nil {
		return nil, errs.Mismatch("classifier", "missing")
	}
	if dim := s.Classifier.InputDim(); dim != 0 && dim != pipeline.OutputDim() {
		return nil, errs.Mismatch("classifier", "%s expects %d features, reducer produces %d",
			s.Classifier.Name(), dim, pipeline.OutputDim())
	}

	return &Compiled{
		Builder:    builder,
		Pipeline:   pipeline,
		Classifier: s.Classifier,
	}, nil
}

// Validate reports whether the set compiles.
func (s *Set) Validate() error {
	_, err := s.Compile()
	return err
}
