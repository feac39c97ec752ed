package features

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/HatiCode/glucoguard/pkg/errs"
)

// Canonical input and column names.
const (
	Gender            = "gender"
	Age               = "age"
	Hypertension      = "hypertension"
	HeartDisease      = "heart_disease"
	SmokingHistory    = "smoking_history"
	BMI               = "bmi"
	HbA1cLevel        = "hba1c_level"
	BloodGlucoseLevel = "blood_glucose_level"
)

// Names lists the canonical feature names in the order of the training
// dataset. Artifacts may record a different order; Builder follows theirs.
var Names = []string{
	Gender,
	Age,
	Hypertension,
	HeartDisease,
	SmokingHistory,
	BMI,
	HbA1cLevel,
	BloodGlucoseLevel,
}

// aliases maps alternative spellings seen in the training dataset to the
// canonical names.
var aliases = map[string][]string{
	HbA1cLevel: {"HbA1c_level"},
}

// Upper bounds for numeric fields. Values above them are data-entry errors,
// not patients.
const (
	maxAge     = 150
	maxBMI     = 200
	maxHbA1c   = 30
	maxGlucose = 1000
)

// RawInput holds the caller-supplied attributes of one prediction request.
type RawInput struct {
	Gender            string  `json:"gender"`
	Age               float64 `json:"age"`
	Hypertension      int     `json:"hypertension"`
	HeartDisease      int     `json:"heart_disease"`
	SmokingHistory    string  `json:"smoking_history"`
	BMI               float64 `json:"bmi"`
	HbA1cLevel        float64 `json:"hba1c_level"`
	BloodGlucoseLevel float64 `json:"blood_glucose_level"`
}

// Validate checks numeric fields against their declared domains.
// Categorical fields are checked by the encoders.
func (r RawInput) Validate() error {
	if err := checkRange(Age, r.Age, 0, maxAge, true); err != nil {
		return err
	}
	if err := checkFlag(Hypertension, r.Hypertension); err != nil {
		return err
	}
	if err := checkFlag(HeartDisease, r.HeartDisease); err != nil {
		return err
	}
	if err := checkRange(BMI, r.BMI, 0, maxBMI, false); err != nil {
		return err
	}
	if err := checkRange(HbA1cLevel, r.HbA1cLevel, 0, maxHbA1c, false); err != nil {
		return err
	}
	return checkRange(BloodGlucoseLevel, r.BloodGlucoseLevel, 0, maxGlucose, false)
}

func checkRange(field string, v, lo, hi float64, loInclusive bool) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &errs.InputTypeError{Field: field, Value: v, Reason: "must be a finite number"}
	}
	if loInclusive && v < lo {
		return &errs.InputTypeError{Field: field, Value: v, Reason: fmt.Sprintf("must be >= %g", lo)}
	}
	if !loInclusive && v <= lo {
		return &errs.InputTypeError{Field: field, Value: v, Reason: fmt.Sprintf("must be > %g", lo)}
	}
	if v > hi {
		return &errs.InputTypeError{Field: field, Value: v, Reason: fmt.Sprintf("must be <= %g", hi)}
	}
	return nil
}

func checkFlag(field string, v int) error {
	if v != 0 && v != 1 {
		return &errs.InputTypeError{Field: field, Value: v, Reason: "must be 0 or 1"}
	}
	return nil
}

// ParseJSON decodes a RawInput from a JSON object. Numeric fields may be
// JSON numbers or numeric strings, as sent by HTML forms serialized to
// JSON. All eight fields are required.
func ParseJSON(body []byte) (RawInput, error) {
	if !gjson.ValidBytes(body) {
		return RawInput{}, &errs.InputTypeError{Field: "body", Reason: "malformed JSON"}
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return RawInput{}, &errs.InputTypeError{Field: "body", Reason: "expected a JSON object"}
	}

	return parseFields(func(name string) (string, bool, error) {
		res := lookupJSON(root, name)
		switch res.Type {
		case gjson.Null:
			return "", false, nil
		case gjson.String:
			return res.Str, true, nil
		case gjson.Number:
			return res.Raw, true, nil
		default:
			return "", true, &errs.InputTypeError{Field: name, Value: res.Raw, Reason: "expected a string or number"}
		}
	})
}

func lookupJSON(root gjson.Result, name string) gjson.Result {
	if res := root.Get(name); res.Exists() {
		return res
	}
	for _, alias := range aliases[name] {
		if res := root.Get(alias); res.Exists() {
			return res
		}
	}
	return gjson.Result{}
}

// ParseForm decodes a RawInput from string key/value pairs such as URL
// form values.
func ParseForm(values map[string]string) (RawInput, error) {
	return parseFields(func(name string) (string, bool, error) {
		if v, ok := values[name]; ok {
			return v, true, nil
		}
		for _, alias := range aliases[name] {
			if v, ok := values[alias]; ok {
				return v, true, nil
			}
		}
		return "", false, nil
	})
}

type fieldSource func(name string) (value string, present bool, err error)

func parseFields(get fieldSource) (RawInput, error) {
	var (
		in  RawInput
		err error
	)

	if in.Gender, err = stringField(get, Gender); err != nil {
		return RawInput{}, err
	}
	if in.SmokingHistory, err = stringField(get, SmokingHistory); err != nil {
		return RawInput{}, err
	}
	if in.Age, err = floatField(get, Age); err != nil {
		return RawInput{}, err
	}
	if in.Hypertension, err = flagField(get, Hypertension); err != nil {
		return RawInput{}, err
	}
	if in.HeartDisease, err = flagField(get, HeartDisease); err != nil {
		return RawInput{}, err
	}
	if in.BMI, err = floatField(get, BMI); err != nil {
		return RawInput{}, err
	}
	if in.HbA1cLevel, err = floatField(get, HbA1cLevel); err != nil {
		return RawInput{}, err
	}
	if in.BloodGlucoseLevel, err = floatField(get, BloodGlucoseLevel); err != nil {
		return RawInput{}, err
	}

	return in, nil
}

func stringField(get fieldSource, name string) (string, error) {
	v, ok, err := get(name)
	if err != nil {
		return "", err
	}
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return "", &errs.InputTypeError{Field: name, Reason: "required"}
	}
	return v, nil
}

func floatField(get fieldSource, name string) (float64, error) {
	v, ok, err := get(name)
	if err != nil {
		return 0, err
	}
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return 0, &errs.InputTypeError{Field: name, Reason: "required"}
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &errs.InputTypeError{Field: name, Value: v, Reason: "not a number"}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &errs.InputTypeError{Field: name, Value: v, Reason: "must be a finite number"}
	}
	return f, nil
}

func flagField(get fieldSource, name string) (int, error) {
	f, err := floatField(get, name)
	if err != nil {
		return 0, err
	}
	if f != 0 && f != 1 {
		return 0, &errs.InputTypeError{Field: name, Value: f, Reason: "must be 0 or 1"}
	}
	return int(f), nil
}
