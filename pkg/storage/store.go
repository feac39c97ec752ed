// Package storage persists prediction records.
//
// Records are append-only: a store never updates or deletes them. Three
// backends implement Store:
//   - SQLStore    database/sql over SQLite (mattn/go-sqlite3) or Postgres (pgx)
//   - RedisStore  JSON documents plus sorted-set indexes in Redis
//   - MemoryStore mutex-guarded slice for tests and single-process demos
//
// Every backend failure is returned as *errs.StorageError.
package storage

import (
	"context"
	"math"
	"time"

	"github.com/HatiCode/glucoguard/pkg/features"
	"github.com/HatiCode/glucoguard/pkg/models"
)

// eachBatch bounds the number of records held in memory by Each.
const eachBatch = 500

// Record is one persisted prediction together with the inputs that
// produced it.
type Record struct {
	ID                int64     `json:"id"`
	Timestamp         time.Time `json:"timestamp"`
	Gender            string    `json:"gender"`
	Age               int       `json:"age"`
	Hypertension      int       `json:"hypertension"`
	HeartDisease      int       `json:"heart_disease"`
	SmokingHistory    string    `json:"smoking_history"`
	BMI               float64   `json:"bmi"`
	HbA1cLevel        float64   `json:"hba1c_level"`
	BloodGlucoseLevel float64   `json:"blood_glucose_level"`
	Prediction        int       `json:"prediction"`
	Probability       float64   `json:"probability"`
}

// Store is implemented by every prediction store.
type Store interface {
	// InitSchema creates tables and indexes if absent. It is idempotent.
	InitSchema(ctx context.Context) error

	// Append persists one prediction atomically and returns the stored
	// record with its assigned id and timestamp.
	Append(ctx context.Context, raw features.RawInput, result models.Result) (Record, error)

	// Recent returns up to limit records, newest first, ties broken by id
	// descending. A limit <= 0 returns no records.
	Recent(ctx context.Context, limit int) ([]Record, error)

	// Each calls fn for every record in id order. Iteration stops at the
	// first error returned by fn.
	Each(ctx context.Context, fn func(Record) error) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}

// NewRecord converts a raw input and classifier result into the persisted
// form: age truncated to whole years, probability rounded to two decimals
// and timestamp in UTC at second precision.
func NewRecord(raw features.RawInput, result models.Result, now time.Time) Record {
	return Record{
		Timestamp:         now.UTC().Truncate(time.Second),
		Gender:            raw.Gender,
		Age:               int(raw.Age),
		Hypertension:      raw.Hypertension,
		HeartDisease:      raw.HeartDisease,
		SmokingHistory:    raw.SmokingHistory,
		BMI:               raw.BMI,
		HbA1cLevel:        raw.HbA1cLevel,
		BloodGlucoseLevel: raw.BloodGlucoseLevel,
		Prediction:        result.Label,
		Probability:       Round2(result.Probability),
	}
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
