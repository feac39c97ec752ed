package features

import (
	"github.com/HatiCode/glucoguard/pkg/errs"
)

// Vector is an encoded feature vector in artifact column order.
type Vector []float64

// Builder assembles RawInput values into a Vector following the column
// order recorded with the fitted artifacts.
type Builder struct {
	gender  *Encoder
	smoking *Encoder
	columns []string
	index   map[string]int
}

// NewBuilder validates columns against the canonical feature set and
// returns a Builder for it. Every canonical name must appear exactly once;
// unknown, missing or duplicated columns are artifact errors, caught at
// startup rather than at inference time.
func NewBuilder(gender, smoking *Encoder, columns []string) (*Builder, error) {
	if gender == nil || smoking == nil {
		return nil, errs.Mismatch("feature builder", "gender and smoking_history encoders are required")
	}
	if len(columns) != len(Names) {
		return nil, errs.Mismatch("feature builder", "expected %d feature columns, artifact records %d", len(Names), len(columns))
	}

	known := make(map[string]bool, len(Names))
	for _, n := range Names {
		known[n] = true
	}

	index := make(map[string]int, len(columns))
	for i, col := range columns {
		name := canonical(col)
		if !known[name] {
			return nil, errs.Mismatch("feature builder", "unknown feature column %q at position %d", col, i)
		}
		if _, dup := index[name]; dup {
			return nil, errs.Mismatch("feature builder", "duplicate feature column %q", col)
		}
		index[name] = i
	}

	cols := make([]string, len(columns))
	copy(cols, columns)

	return &Builder{
		gender:  gender,
		smoking: smoking,
		columns: cols,
		index:   index,
	}, nil
}

// canonical resolves dataset aliases such as HbA1c_level.
func canonical(col string) string {
	for name, alts := range aliases {
		for _, alt := range alts {
			if col == alt {
				return name
			}
		}
	}
	return col
}

// Columns returns a copy of the column order.
func (b *Builder) Columns() []string {
	out := make([]string, len(b.columns))
	copy(out, b.columns)
	return out
}

// Dim returns the vector length produced by Build.
func (b *Builder) Dim() int {
	return len(b.columns)
}

// Build validates raw, encodes its categorical fields and returns the
// assembled vector. It fails with *errs.InputTypeError for out-of-range
// numeric values and *errs.UnknownCategoryError for unseen labels.
func (b *Builder) Build(raw RawInput) (Vector, error) {
	if err := raw.Validate(); err != nil {
		return nil, err
	}

	genderCode, err := b.gender.Encode(raw.Gender)
	if err != nil {
		return nil, err
	}
	smokingCode, err := b.smoking.Encode(raw.SmokingHistory)
	if err != nil {
		return nil, err
	}

	values := map[string]float64{
		Gender:            float64(genderCode),
		Age:               raw.Age,
		Hypertension:      float64(raw.Hypertension),
		HeartDisease:      float64(raw.HeartDisease),
		SmokingHistory:    float64(smokingCode),
		BMI:               raw.BMI,
		HbA1cLevel:        raw.HbA1cLevel,
		BloodGlucoseLevel: raw.BloodGlucoseLevel,
	}

	vec := make(Vector, len(b.columns))
	for name, i := range b.index {
		vec[i] = values[name]
	}
	return vec, nil
}
