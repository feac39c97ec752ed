// Package analytics computes dashboard statistics over the stored
// prediction history.
//
// Statistics are recomputed from every record on each call. Percentages
// use count/total*100 rounded to two decimals: group shares divide by the
// global total of that breakdown, within-group rates divide by the group's
// own count. Empty groups report 0 rather than failing.
package analytics

import (
	"context"

	"github.com/HatiCode/glucoguard/pkg/storage"
)

// Age band labels, in display order. Bounds are inclusive whole years.
const (
	BandUnder30 = "<30"
	Band30To45  = "30-45"
	Band46To60  = "46-60"
	BandOver60  = ">60"
)

// AgeBands lists every band in display order.
var AgeBands = []string{BandUnder30, Band30To45, Band46To60, BandOver60}

// Aggregator computes Stats over all stored records.
type Aggregator interface {
	Summary(ctx context.Context) (Stats, error)
}

// Stats is the full dashboard.
type Stats struct {
	Overall          Overall          `json:"overall"`
	AgeBands         []Share          `json:"age_bands"`
	Genders          []Share          `json:"genders"`
	Smoking          []SmokingGroup   `json:"smoking_history"`
	ConditionalMeans ConditionalMeans `json:"conditional_means"`
	Comorbidity      Comorbidity      `json:"comorbidity"`
}

// Overall summarizes every record.
type Overall struct {
	Total          int     `json:"total"`
	PositiveCases  int     `json:"positive_cases"`
	NegativeCases  int     `json:"negative_cases"`
	PositiveRate   float64 `json:"positive_rate"`
	AvgProbability float64 `json:"avg_probability"`
}

// Share is a group's count and percentage of the total.
type Share struct {
	Label      string  `json:"label"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// SmokingGroup breaks down one smoking_history value.
type SmokingGroup struct {
	Value          string  `json:"value"`
	Count          int     `json:"count"`
	Percentage     float64 `json:"percentage"`
	PositiveCases  int     `json:"positive_cases"`
	AvgProbability float64 `json:"avg_probability"`
}

// Means holds average clinical measurements of one prediction group.
type Means struct {
	Age               float64 `json:"age"`
	BMI               float64 `json:"bmi"`
	HbA1cLevel        float64 `json:"hba1c_level"`
	BloodGlucoseLevel float64 `json:"blood_glucose_level"`
}

// ConditionalMeans splits Means by predicted label.
type ConditionalMeans struct {
	Positive Means `json:"positive"`
	Negative Means `json:"negative"`
}

// Rate is the positive rate within one comorbidity value.
type Rate struct {
	Value         int     `json:"value"`
	Count         int     `json:"count"`
	PositiveCases int     `json:"positive_cases"`
	PositiveRate  float64 `json:"positive_rate"`
}

// Comorbidity holds positive rates for hypertension and heart disease.
// Both slices always contain the values 0 and 1, in that order.
type Comorbidity struct {
	Hypertension []Rate `json:"hypertension"`
	HeartDisease []Rate `json:"heart_disease"`
}

// AgeBand returns the band label for an age in whole years.
func AgeBand(age int) string {
	switch {
	case age < 30:
		return BandUnder30
	case age <= 45:
		return Band30To45
	case age <= 60:
		return Band46To60
	default:
		return BandOver60
	}
}

// percent returns count/total*100 rounded to two decimals, or 0 for an
// empty total.
func percent(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return storage.Round2(float64(count) / float64(total) * 100)
}

// mean returns sum/n rounded to two decimals, or 0 for n == 0.
func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return storage.Round2(sum / float64(n))
}
