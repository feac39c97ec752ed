package inference

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/HatiCode/glucoguard/pkg/analytics"
	"github.com/HatiCode/glucoguard/pkg/errs"
	"github.com/HatiCode/glucoguard/pkg/features"
	"github.com/HatiCode/glucoguard/pkg/models"
	"github.com/HatiCode/glucoguard/pkg/storage"
)

type fakeRecorder struct {
	mu          sync.Mutex
	predictions []int
	failures    []errs.Kind
	storeOps    []string
}

func (r *fakeRecorder) RecordPrediction(label int, _ float64, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predictions = append(r.predictions, label)
}

func (r *fakeRecorder) RecordFailure(kind errs.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, kind)
}

func (r *fakeRecorder) RecordStore(op string, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeOps = append(r.storeOps, op)
}

// brokenStore fails every operation.
type brokenStore struct{}

var errUnavailable = errors.New("database unavailable")

func (brokenStore) Append(context.Context, features.RawInput, models.Result) (storage.Record, error) {
	return storage.Record{}, errs.Storage("append", errUnavailable)
}

func (brokenStore) Recent(context.Context, int) ([]storage.Record, error) {
	return nil, errs.Storage("recent", errUnavailable)
}

func (brokenStore) Each(context.Context, func(storage.Record) error) error {
	return errs.Storage("each", errUnavailable)
}

func (brokenStore) InitSchema(context.Context) error {
	return errs.Storage("init schema", errUnavailable)
}

func (brokenStore) Ping(context.Context) error {
	return errs.Storage("ping", errUnavailable)
}

func (brokenStore) Close() error { return nil }

func newService(t *testing.T, store storage.Store) (*Service, *fakeRecorder) {
	t.Helper()
	rec := &fakeRecorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(newPredictor(t), store, analytics.NewRecordAggregator(store), logger, rec), rec
}

func TestNewService_NilLogger(t *testing.T) {
	store := storage.NewMemoryStore()
	s := NewService(newPredictor(t), store, analytics.NewRecordAggregator(store), nil, nil)
	if s.logger == nil {
		t.Error("logger should default to slog.Default()")
	}
	if s.Store() != store || s.Predictor() == nil {
		t.Error("accessors returned unexpected values")
	}
}

func TestService_PredictPersists(t *testing.T) {
	store := storage.NewMemoryStore()
	s, rec := newService(t, store)

	out, record := s.Predict(context.Background(), goldenInput(), true)
	if !out.OK() {
		t.Fatalf("Predict() failed: %v", out.Err)
	}
	if record == nil {
		t.Fatal("Predict() returned no record")
	}
	if record.ID != 1 || record.Prediction != out.Result.Label || record.Probability != 0.02 {
		t.Errorf("record = %+v", record)
	}
	if store.Len() != 1 {
		t.Errorf("store has %d records, want 1", store.Len())
	}

	recent, err := s.Recent(context.Background(), 1)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	got := recent[0]
	if got.Gender != "Female" || got.Age != 45 || got.SmokingHistory != "never" ||
		got.BMI != 27.5 || got.HbA1cLevel != 5.8 || got.BloodGlucoseLevel != 110 {
		t.Errorf("Recent()[0] does not round-trip: %+v", got)
	}

	if len(rec.predictions) != 1 || len(rec.failures) != 0 {
		t.Errorf("recorder = %+v", rec)
	}
}

func TestService_PredictWithoutPersist(t *testing.T) {
	store := storage.NewMemoryStore()
	s, _ := newService(t, store)

	out, record := s.Predict(context.Background(), goldenInput(), false)
	if !out.OK() || record != nil {
		t.Errorf("Predict() = %+v, %+v", out, record)
	}
	if store.Len() != 0 {
		t.Errorf("store has %d records, want 0", store.Len())
	}
}

func TestService_InvalidInputWritesNothing(t *testing.T) {
	store := storage.NewMemoryStore()
	s, rec := newService(t, store)

	raw := goldenInput()
	raw.SmokingHistory = "occasionally"

	out, record := s.Predict(context.Background(), raw, true)
	if out.OK() || record != nil {
		t.Fatalf("Predict() should fail, got %+v", out)
	}
	if out.Failure().Kind != errs.KindUnknownCategory {
		t.Errorf("Kind = %q", out.Failure().Kind)
	}
	if store.Len() != 0 {
		t.Errorf("failed inference persisted %d records", store.Len())
	}
	if len(rec.failures) != 1 || rec.failures[0] != errs.KindUnknownCategory {
		t.Errorf("recorded failures = %v", rec.failures)
	}
}

func TestService_StorageFailure(t *testing.T) {
	s, rec := newService(t, &brokenStore{})

	out, record := s.Predict(context.Background(), goldenInput(), true)
	if out.OK() || record != nil {
		t.Fatalf("Predict() should fail, got %+v", out)
	}
	if out.Failure().Kind != errs.KindStorage {
		t.Errorf("Kind = %q, want storage", out.Failure().Kind)
	}
	if len(rec.failures) != 1 || rec.failures[0] != errs.KindStorage {
		t.Errorf("recorded failures = %v", rec.failures)
	}

	if _, err := s.Recent(context.Background(), 5); errs.KindOf(err) != errs.KindStorage {
		t.Errorf("Recent() error = %v", err)
	}
	if _, err := s.Summary(context.Background()); errs.KindOf(err) != errs.KindStorage {
		t.Errorf("Summary() error = %v", err)
	}
}

func TestService_PersistAndSummary(t *testing.T) {
	store := storage.NewMemoryStore()
	s, rec := newService(t, store)
	ctx := context.Background()

	for _, r := range []models.Result{{Label: 1, Probability: 0.9}, {Label: 1, Probability: 0.7}, {Label: 0, Probability: 0.1}} {
		if _, err := s.Persist(ctx, goldenInput(), r); err != nil {
			t.Fatalf("Persist() error = %v", err)
		}
	}

	stats, err := s.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if stats.Overall.PositiveCases != 2 || stats.Overall.PositiveRate != 66.67 {
		t.Errorf("Overall = %+v", stats.Overall)
	}

	wantOps := []string{"append", "append", "append", "summary"}
	if len(rec.storeOps) != len(wantOps) {
		t.Fatalf("store ops = %v, want %v", rec.storeOps, wantOps)
	}
	for i, op := range wantOps {
		if rec.storeOps[i] != op {
			t.Errorf("store op %d = %q, want %q", i, rec.storeOps[i], op)
		}
	}
}

func TestService_ConcurrentPredict(t *testing.T) {
	store := storage.NewMemoryStore()
	s, _ := newService(t, store)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if out, _ := s.Predict(context.Background(), goldenInput(), true); !out.OK() {
				t.Errorf("Predict() failed: %v", out.Err)
			}
		}()
	}
	wg.Wait()

	if store.Len() != 20 {
		t.Errorf("store has %d records, want 20", store.Len())
	}
}
