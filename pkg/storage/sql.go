package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/HatiCode/glucoguard/pkg/errs"
	"github.com/HatiCode/glucoguard/pkg/features"
	"github.com/HatiCode/glucoguard/pkg/models"
)

// Dialect describes the SQL flavour of a database/sql driver.
type Dialect struct {
	// Name is "sqlite" or "postgres".
	Name string

	// Driver is the database/sql driver name.
	Driver string

	schema   []string
	numbered bool
}

// SQLite uses mattn/go-sqlite3.
var SQLite = Dialect{
	Name:   "sqlite",
	Driver: "sqlite3",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS predictions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			gender TEXT NOT NULL,
			age INTEGER NOT NULL,
			hypertension INTEGER NOT NULL,
			heart_disease INTEGER NOT NULL,
			smoking_history TEXT NOT NULL,
			bmi REAL NOT NULL,
			hba1c_level REAL NOT NULL,
			blood_glucose_level REAL NOT NULL,
			prediction INTEGER NOT NULL,
			probability REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_timestamp ON predictions (timestamp)`,
	},
}

// Postgres uses the pgx stdlib driver.
var Postgres = Dialect{
	Name:   "postgres",
	Driver: "pgx",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS predictions (
			id BIGSERIAL PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
			gender TEXT NOT NULL,
			age INTEGER NOT NULL,
			hypertension INTEGER NOT NULL,
			heart_disease INTEGER NOT NULL,
			smoking_history TEXT NOT NULL,
			bmi DOUBLE PRECISION NOT NULL,
			hba1c_level DOUBLE PRECISION NOT NULL,
			blood_glucose_level DOUBLE PRECISION NOT NULL,
			prediction INTEGER NOT NULL,
			probability DOUBLE PRECISION NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_timestamp ON predictions (timestamp)`,
	},
	numbered: true,
}

// DialectByName returns the dialect called name.
func DialectByName(name string) (Dialect, error) {
	switch name {
	case SQLite.Name:
		return SQLite, nil
	case Postgres.Name:
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unknown SQL dialect %q", name)
	}
}

// Rebind rewrites '?' placeholders into the dialect's form.
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const recordColumns = `id, timestamp, gender, age, hypertension, heart_disease, smoking_history,
	bmi, hba1c_level, blood_glucose_level, prediction, probability`

// SQLStore implements Store on database/sql.
//
// Each call acquires its own connection or transaction and releases it on
// every return path. Consistency between concurrent writers is left to the
// database engine.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// OpenSQL opens dsn with the dialect's driver and verifies connectivity.
// An in-memory SQLite database is pinned to a single connection so every
// caller sees the same data.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, errors.New("sql dsn cannot be empty")
	}

	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, errs.Storage("open", err)
	}
	if dialect.Name == SQLite.Name {
		if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
			db.SetMaxOpenConns(1)
		}
	} else {
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errs.Storage("open", fmt.Errorf("failed to connect to %s: %w", dialect.Name, err))
	}

	return NewSQLStore(db, dialect), nil
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		now:     time.Now,
	}
}

// DB returns the underlying handle, for read-only aggregate queries.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Dialect returns the store's SQL dialect.
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// InitSchema creates the predictions table and its timestamp index.
func (s *SQLStore) InitSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Storage("init schema", err)
	}
	defer tx.Rollback()

	for _, stmt := range s.dialect.schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errs.Storage("init schema", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.Storage("init schema", err)
	}
	return nil
}

// Append inserts one record in a single transaction.
func (s *SQLStore) Append(ctx context.Context, raw features.RawInput, result models.Result) (Record, error) {
	rec := NewRecord(raw, result, s.now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, errs.Storage("append", err)
	}
	defer tx.Rollback()

	query := s.dialect.Rebind(`INSERT INTO predictions (timestamp, gender, age, hypertension, heart_disease,
		smoking_history, bmi, hba1c_level, blood_glucose_level, prediction, probability)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)

	err = tx.QueryRowContext(ctx, query,
		rec.Timestamp, rec.Gender, rec.Age, rec.Hypertension, rec.HeartDisease,
		rec.SmokingHistory, rec.BMI, rec.HbA1cLevel, rec.BloodGlucoseLevel,
		rec.Prediction, rec.Probability,
	).Scan(&rec.ID)
	if err != nil {
		return Record{}, errs.Storage("append", err)
	}

	if err := tx.Commit(); err != nil {
		return Record{}, errs.Storage("append", err)
	}
	return rec, nil
}

// Recent returns up to limit records, newest first.
func (s *SQLStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return []Record{}, nil
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, errs.Storage("recent", err)
	}
	defer conn.Close()

	query := s.dialect.Rebind(`SELECT ` + recordColumns + ` FROM predictions
		ORDER BY timestamp DESC, id DESC LIMIT ?`)

	rows, err := conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errs.Storage("recent", err)
	}

	out, err := scanRecords(rows)
	if err != nil {
		return nil, errs.Storage("recent", err)
	}
	return out, nil
}

// Each pages through the table in id order, eachBatch rows at a time.
func (s *SQLStore) Each(ctx context.Context, fn func(Record) error) error {
	query := s.dialect.Rebind(`SELECT ` + recordColumns + ` FROM predictions
		WHERE id > ? ORDER BY id LIMIT ?`)

	var after int64
	for {
		batch, err := s.page(ctx, query, after)
		if err != nil {
			return errs.Storage("each", err)
		}

		for _, rec := range batch {
			if err := fn(rec); err != nil {
				return err
			}
		}
		if len(batch) < eachBatch {
			return nil
		}
		after = batch[len(batch)-1].ID
	}
}

func (s *SQLStore) page(ctx context.Context, query string, after int64) ([]Record, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query, after, eachBatch)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return errs.Storage("ping", s.db.PingContext(ctx))
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.Timestamp, &rec.Gender, &rec.Age, &rec.Hypertension, &rec.HeartDisease,
			&rec.SmokingHistory, &rec.BMI, &rec.HbA1cLevel, &rec.BloodGlucoseLevel,
			&rec.Prediction, &rec.Probability,
		); err != nil {
			return nil, err
		}
		rec.Timestamp = rec.Timestamp.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}
