package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/HatiCode/glucoguard/pkg/errs"
	"github.com/HatiCode/glucoguard/pkg/features"
	"github.com/HatiCode/glucoguard/pkg/models"
)

// MemoryStore implements an in-memory prediction store.
// It is safe for concurrent use by multiple goroutines.
//
// Records live only as long as the process. For persistence or
// multi-instance deployments use SQLStore or RedisStore instead.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	nextID  int64
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		now:    time.Now,
	}
}

// InitSchema is a no-op for the memory store.
func (s *MemoryStore) InitSchema(ctx context.Context) error {
	return ctxErr(ctx, "init schema")
}

// Append stores a record and assigns it the next id.
func (s *MemoryStore) Append(ctx context.Context, raw features.RawInput, result models.Result) (Record, error) {
	if err := ctxErr(ctx, "append"); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := NewRecord(raw, result, s.now())
	rec.ID = s.nextID
	s.nextID++
	s.records = append(s.records, rec)
	return rec, nil
}

// Recent returns up to limit records ordered by timestamp then id, newest
// first.
func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if err := ctxErr(ctx, "recent"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []Record{}, nil
	}

	s.mu.RLock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Each calls fn for every record in id order. The lock is released while
// fn runs, so fn may call back into the store.
func (s *MemoryStore) Each(ctx context.Context, fn func(Record) error) error {
	for offset := 0; ; offset += eachBatch {
		if err := ctxErr(ctx, "each"); err != nil {
			return err
		}

		s.mu.RLock()
		end := min(offset+eachBatch, len(s.records))
		var batch []Record
		if offset < end {
			batch = make([]Record, end-offset)
			copy(batch, s.records[offset:end])
		}
		s.mu.RUnlock()

		for _, rec := range batch {
			if err := fn(rec); err != nil {
				return err
			}
		}
		if len(batch) < eachBatch {
			return nil
		}
	}
}

// Ping always succeeds unless ctx is done.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctxErr(ctx, "ping")
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of records currently stored.
// This method is primarily useful for testing and metrics.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func ctxErr(ctx context.Context, op string) error {
	select {
	case <-ctx.Done():
		return errs.Storage(op, ctx.Err())
	default:
		return nil
	}
}
