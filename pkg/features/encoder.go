// Package features turns raw patient attributes into the ordered numeric
// vector the frozen transform artifacts were fit against.
//
// The package has three parts:
//   - Encoder      — closed-vocabulary label encoding for categorical fields
//   - RawInput     — caller-supplied attributes, parsed from JSON or form values
//   - Builder      — places every value at the index recorded in the artifact's
//     feature column order
//
// Nothing here holds mutable state after construction, so one Builder is
// shared by every request.
package features

import (
	"github.com/HatiCode/glucoguard/pkg/errs"
)

// Encoder maps a fixed vocabulary of labels to the integer codes 0..n-1 in
// the order the vocabulary was recorded at training time.
type Encoder struct {
	field  string
	labels []string
	codes  map[string]int
}

// NewEncoder fits an encoder on vocabulary. The code of each label is its
// position in vocabulary, which must match the codes embedded in the model
// artifact. Empty vocabularies and duplicate labels are artifact errors.
func NewEncoder(field string, vocabulary []string) (*Encoder, error) {
	if len(vocabulary) == 0 {
		return nil, errs.Mismatch(field+" encoder", "empty vocabulary")
	}

	codes := make(map[string]int, len(vocabulary))
	labels := make([]string, len(vocabulary))
	for i, label := range vocabulary {
		if _, dup := codes[label]; dup {
			return nil, errs.Mismatch(field+" encoder", "duplicate label %q", label)
		}
		codes[label] = i
		labels[i] = label
	}

	return &Encoder{field: field, labels: labels, codes: codes}, nil
}

// Field returns the input field this encoder applies to.
func (e *Encoder) Field() string {
	return e.field
}

// Encode returns the code for label. Labels outside the vocabulary fail
// with *errs.UnknownCategoryError; no case folding or nearest match is
// attempted.
func (e *Encoder) Encode(label string) (int, error) {
	code, ok := e.codes[label]
	if !ok {
		return 0, &errs.UnknownCategoryError{Field: e.field, Value: label, Known: e.Labels()}
	}
	return code, nil
}

// Decode returns the label for code.
func (e *Encoder) Decode(code int) (string, error) {
	if code < 0 || code >= len(e.labels) {
		return "", &errs.InputTypeError{Field: e.field, Value: code, Reason: "code outside vocabulary"}
	}
	return e.labels[code], nil
}

// Labels returns a copy of the vocabulary in code order.
func (e *Encoder) Labels() []string {
	out := make([]string, len(e.labels))
	copy(out, e.labels)
	return out
}

// Len returns the vocabulary size.
func (e *Encoder) Len() int {
	return len(e.labels)
}
