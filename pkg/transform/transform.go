// Package transform applies the frozen numeric transforms that sit between
// feature assembly and classification: standard scaling followed by a
// linear projection onto principal components.
//
// Both transforms are pure functions of parameters captured at training
// time. Parameter integrity (dimensions, finiteness, orthonormal
// components) is verified once in NewPipeline; Transform only guards the
// length of its input.
package transform

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/HatiCode/glucoguard/pkg/errs"
)

// orthoTolerance bounds |C·Cᵀ - I| for accepted component matrices.
const orthoTolerance = 1e-6

// StandardScaler holds per-feature statistics captured at training time.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// PCA holds a fitted linear reduction. Components has one row per output
// dimension; rows must be orthonormal. Mean may be empty, meaning zero.
type PCA struct {
	Mean       []float64   `json:"mean,omitempty"`
	Components [][]float64 `json:"components"`
}

// Pipeline is a validated scaler + reducer pair.
type Pipeline struct {
	mean       []float64
	scale      []float64
	pcaMean    []float64
	components *mat.Dense
	inputDim   int
	outputDim  int
}

// NewPipeline validates scaler and reducer against inputDim and returns a
// ready Pipeline. Any disagreement is reported as *errs.ArtifactMismatchError.
func NewPipeline(scaler StandardScaler, reducer PCA, inputDim int) (*Pipeline, error) {
	if inputDim <= 0 {
		return nil, errs.Mismatch("pipeline", "input dimension must be positive, got %d", inputDim)
	}
	if len(scaler.Mean) != inputDim || len(scaler.Scale) != inputDim {
		return nil, errs.Mismatch("scaler", "fit on %d/%d features, pipeline expects %d",
			len(scaler.Mean), len(scaler.Scale), inputDim)
	}
	if !allFinite(scaler.Mean) || !allFinite(scaler.Scale) {
		return nil, errs.Mismatch("scaler", "non-finite parameters")
	}
	for i, s := range scaler.Scale {
		if s < 0 {
			return nil, errs.Mismatch("scaler", "negative scale %g at feature %d", s, i)
		}
	}

	k := len(reducer.Components)
	if k == 0 {
		return nil, errs.Mismatch("reducer", "no components")
	}
	if k > inputDim {
		return nil, errs.Mismatch("reducer", "%d components exceed input dimension %d", k, inputDim)
	}
	if len(reducer.Mean) != 0 && len(reducer.Mean) != inputDim {
		return nil, errs.Mismatch("reducer", "mean has %d values, pipeline expects %d", len(reducer.Mean), inputDim)
	}
	if !allFinite(reducer.Mean) {
		return nil, errs.Mismatch("reducer", "non-finite mean")
	}

	flat := make([]float64, 0, k*inputDim)
	for i, row := range reducer.Components {
		if len(row) != inputDim {
			return nil, errs.Mismatch("reducer", "component %d has %d weights, pipeline expects %d", i, len(row), inputDim)
		}
		if !allFinite(row) {
			return nil, errs.Mismatch("reducer", "non-finite weights in component %d", i)
		}
		flat = append(flat, row...)
	}
	components := mat.NewDense(k, inputDim, flat)

	if err := checkOrthonormal(components); err != nil {
		return nil, err
	}

	scale := make([]float64, inputDim)
	for i, s := range scaler.Scale {
		// Constant features are fit with scale 0 and left unscaled.
		if s == 0 {
			s = 1
		}
		scale[i] = s
	}

	pcaMean := make([]float64, inputDim)
	copy(pcaMean, reducer.Mean)

	mean := make([]float64, inputDim)
	copy(mean, scaler.Mean)

	return &Pipeline{
		mean:       mean,
		scale:      scale,
		pcaMean:    pcaMean,
		components: components,
		inputDim:   inputDim,
		outputDim:  k,
	}, nil
}

func checkOrthonormal(c *mat.Dense) error {
	k, _ := c.Dims()
	var gram mat.Dense
	gram.Mul(c, c.T())
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(gram.At(i, j)-want) > orthoTolerance {
				return errs.Mismatch("reducer", "components %d and %d are not orthonormal (dot %.6g)", i, j, gram.At(i, j))
			}
		}
	}
	return nil
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// InputDim returns the expected feature vector length.
func (p *Pipeline) InputDim() int { return p.inputDim }

// OutputDim returns the number of principal components.
func (p *Pipeline) OutputDim() int { return p.outputDim }

// Scale applies the standard scaler only.
func (p *Pipeline) Scale(x []float64) ([]float64, error) {
	if len(x) != p.inputDim {
		return nil, errs.Mismatch("scaler", "vector has %d features, expected %d", len(x), p.inputDim)
	}
	out := make([]float64, p.inputDim)
	floats.SubTo(out, x, p.mean)
	floats.Div(out, p.scale)
	return out, nil
}

// Transform scales x and projects it onto the principal components.
// The input slice is not modified.
func (p *Pipeline) Transform(x []float64) ([]float64, error) {
	scaled, err := p.Scale(x)
	if err != nil {
		return nil, err
	}
	floats.Sub(scaled, p.pcaMean)

	var out mat.VecDense
	out.MulVec(p.components, mat.NewVecDense(p.inputDim, scaled))

	reduced := make([]float64, p.outputDim)
	for i := range reduced {
		reduced[i] = out.AtVec(i)
	}
	return reduced, nil
}
