package features

import (
	"testing"

	"github.com/HatiCode/glucoguard/pkg/errs"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    RawInput
		wantErr bool
		field   string
	}{
		{
			name: "numbers",
			body: `{"gender":"Female","age":45,"hypertension":0,"heart_disease":0,"smoking_history":"never","bmi":27.5,"hba1c_level":5.8,"blood_glucose_level":110}`,
			want: sampleInput(),
		},
		{
			name: "numeric strings from a form",
			body: `{"gender":"Female","age":"45","hypertension":"0","heart_disease":"0","smoking_history":"never","bmi":"27.5","hba1c_level":" 5.8 ","blood_glucose_level":"110"}`,
			want: sampleInput(),
		},
		{
			name: "dataset column alias",
			body: `{"gender":"Female","age":45,"hypertension":0,"heart_disease":0,"smoking_history":"never","bmi":27.5,"HbA1c_level":5.8,"blood_glucose_level":110}`,
			want: sampleInput(),
		},
		{
			name:    "missing field",
			body:    `{"gender":"Female","age":45,"hypertension":0,"heart_disease":0,"smoking_history":"never","bmi":27.5,"hba1c_level":5.8}`,
			wantErr: true,
			field:   BloodGlucoseLevel,
		},
		{
			name:    "non numeric age",
			body:    `{"gender":"Female","age":"forty","hypertension":0,"heart_disease":0,"smoking_history":"never","bmi":27.5,"hba1c_level":5.8,"blood_glucose_level":110}`,
			wantErr: true,
			field:   Age,
		},
		{
			name:    "boolean flag",
			body:    `{"gender":"Female","age":45,"hypertension":true,"heart_disease":0,"smoking_history":"never","bmi":27.5,"hba1c_level":5.8,"blood_glucose_level":110}`,
			wantErr: true,
			field:   Hypertension,
		},
		{
			name:    "fractional flag",
			body:    `{"gender":"Female","age":45,"hypertension":0.5,"heart_disease":0,"smoking_history":"never","bmi":27.5,"hba1c_level":5.8,"blood_glucose_level":110}`,
			wantErr: true,
			field:   Hypertension,
		},
		{
			name:    "null gender",
			body:    `{"gender":null,"age":45,"hypertension":0,"heart_disease":0,"smoking_history":"never","bmi":27.5,"hba1c_level":5.8,"blood_glucose_level":110}`,
			wantErr: true,
			field:   Gender,
		},
		{
			name:    "malformed",
			body:    `{"gender":`,
			wantErr: true,
			field:   "body",
		},
		{
			name:    "array body",
			body:    `[1,2,3]`,
			wantErr: true,
			field:   "body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSON([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if errs.KindOf(err) != errs.KindInvalidInput {
					t.Errorf("KindOf(err) = %q, want %q", errs.KindOf(err), errs.KindInvalidInput)
				}
				if errs.FieldOf(err) != tt.field {
					t.Errorf("FieldOf(err) = %q, want %q", errs.FieldOf(err), tt.field)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseJSON() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseForm(t *testing.T) {
	values := map[string]string{
		"gender":              "Male",
		"age":                 "61",
		"hypertension":        "1",
		"heart_disease":       "0",
		"smoking_history":     "former",
		"bmi":                 "31.2",
		"hba1c_level":         "7.1",
		"blood_glucose_level": "200",
	}

	got, err := ParseForm(values)
	if err != nil {
		t.Fatalf("ParseForm() error = %v", err)
	}

	want := RawInput{
		Gender:            "Male",
		Age:               61,
		Hypertension:      1,
		HeartDisease:      0,
		SmokingHistory:    "former",
		BMI:               31.2,
		HbA1cLevel:        7.1,
		BloodGlucoseLevel: 200,
	}
	if got != want {
		t.Errorf("ParseForm() = %+v, want %+v", got, want)
	}

	values["bmi"] = "NaN"
	if _, err := ParseForm(values); errs.FieldOf(err) != BMI {
		t.Errorf("ParseForm() with NaN bmi error = %v, want invalid bmi", err)
	}

	delete(values, "gender")
	if _, err := ParseForm(values); errs.FieldOf(err) != Gender {
		t.Errorf("ParseForm() without gender error = %v, want invalid gender", err)
	}
}
