package inference

import (
	"context"
	"log/slog"
	"time"

	"github.com/HatiCode/glucoguard/pkg/analytics"
	"github.com/HatiCode/glucoguard/pkg/errs"
	"github.com/HatiCode/glucoguard/pkg/features"
	"github.com/HatiCode/glucoguard/pkg/models"
	"github.com/HatiCode/glucoguard/pkg/storage"
)

// Recorder receives pipeline measurements. The server's Prometheus metrics
// implement it.
type Recorder interface {
	RecordPrediction(label int, probability float64, seconds float64)
	RecordFailure(kind errs.Kind)
	RecordStore(op string, seconds float64)
}

// Service ties the predictor to a prediction store and an aggregator.
type Service struct {
	predictor  *Predictor
	store      storage.Store
	aggregator analytics.Aggregator
	logger     *slog.Logger
	recorder   Recorder
}

// NewService creates a Service. recorder may be nil.
func NewService(
	predictor *Predictor,
	store storage.Store,
	aggregator analytics.Aggregator,
	logger *slog.Logger,
	recorder Recorder,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		predictor:  predictor,
		store:      store,
		aggregator: aggregator,
		logger:     logger,
		recorder:   recorder,
	}
}

// Predictor returns the underlying predictor.
func (s *Service) Predictor() *Predictor {
	return s.predictor
}

// Store returns the underlying store.
func (s *Service) Store() storage.Store {
	return s.store
}

// Predict classifies raw and, when persist is true, appends the result to
// the store. Nothing is written for a failed inference. A failed write turns
// the outcome into a storage failure and returns no record.
func (s *Service) Predict(ctx context.Context, raw features.RawInput, persist bool) (Outcome, *storage.Record) {
	start := time.Now()
	out := s.predictor.Predict(ctx, raw)
	elapsed := time.Since(start)

	if !out.OK() {
		f := out.Failure()
		if s.recorder != nil {
			s.recorder.RecordFailure(f.Kind)
		}
		if f.Kind == errs.KindInference {
			s.logger.Warn("inference failed", "classifier", s.predictor.Classifier(), "error", out.Err)
		} else {
			s.logger.Debug("input rejected", "kind", f.Kind, "field", f.Field, "error", out.Err)
		}
		return out, nil
	}

	if s.recorder != nil {
		s.recorder.RecordPrediction(out.Result.Label, out.Result.Probability, elapsed.Seconds())
	}
	s.logger.Debug("prediction",
		"label", out.Result.Label,
		"probability", out.Result.Probability,
		"duration_ms", elapsed.Milliseconds(),
	)

	if !persist {
		return out, nil
	}

	rec, err := s.Persist(ctx, raw, out.Result)
	if err != nil {
		return failed(err), nil
	}
	return out, &rec
}

// Persist appends a prediction the caller already holds.
func (s *Service) Persist(ctx context.Context, raw features.RawInput, result models.Result) (storage.Record, error) {
	start := time.Now()
	rec, err := s.store.Append(ctx, raw, result)
	s.observeStore("append", start)
	if err != nil {
		if s.recorder != nil {
			s.recorder.RecordFailure(errs.KindStorage)
		}
		s.logger.Error("failed to persist prediction", "error", err)
		return storage.Record{}, errs.Storage("append", err)
	}

	s.logger.Debug("stored prediction", "id", rec.ID)
	return rec, nil
}

// Recent returns the newest records.
func (s *Service) Recent(ctx context.Context, limit int) ([]storage.Record, error) {
	start := time.Now()
	recs, err := s.store.Recent(ctx, limit)
	s.observeStore("recent", start)
	if err != nil {
		s.logger.Error("failed to read recent predictions", "limit", limit, "error", err)
		return nil, errs.Storage("recent", err)
	}
	return recs, nil
}

// Summary computes the dashboard.
func (s *Service) Summary(ctx context.Context) (analytics.Stats, error) {
	start := time.Now()
	stats, err := s.aggregator.Summary(ctx)
	s.observeStore("summary", start)
	if err != nil {
		s.logger.Error("failed to compute summary", "error", err)
		return analytics.Stats{}, errs.Storage("summary", err)
	}
	return stats, nil
}

// Ping checks store health.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) observeStore(op string, start time.Time) {
	if s.recorder != nil {
		s.recorder.RecordStore(op, time.Since(start).Seconds())
	}
}
