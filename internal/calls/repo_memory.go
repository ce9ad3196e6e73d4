package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory repository useful for tests.
// It mirrors the conditional-update semantics of the Postgres repo: status
// guards are checked and applied under one lock, so concurrent callbacks
// observe the same no-op behavior.
type MemoryRepo struct {
	mu      sync.Mutex
	records map[string]CallRecord
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{records: make(map[string]CallRecord)}
}

func (r *MemoryRepo) Create(ctx context.Context, rec CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = rec
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepo) List(ctx context.Context, skip, limit int) ([]CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return paginate(r.all(), skip, limit), nil
}

func (r *MemoryRepo) ListByCaller(ctx context.Context, callerID string, skip, limit int) ([]CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var own []CallRecord
	for _, rec := range r.all() {
		if rec.CallerID == callerID {
			own = append(own, rec)
		}
	}
	return paginate(own, skip, limit), nil
}

func (r *MemoryRepo) SetProviderCallID(ctx context.Context, id, providerCallID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.ProviderCallID = providerCallID
	r.records[id] = rec
	return nil
}

func (r *MemoryRepo) MarkInProgress(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Status != StatusRinging {
		return false, nil
	}
	rec.Status = StatusInProgress
	r.records[id] = rec
	return true, nil
}

func (r *MemoryRepo) Finish(ctx context.Context, id string, status Status, endTime time.Time, durationSeconds int) (bool, error) {
	if !status.IsTerminal() {
		return false, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Status.IsTerminal() {
		return false, nil
	}
	rec.Status = status
	rec.EndTime = &endTime
	rec.DurationSeconds = &durationSeconds
	r.records[id] = rec
	return true, nil
}

func (r *MemoryRepo) all() []CallRecord {
	out := make([]CallRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func paginate(recs []CallRecord, skip, limit int) []CallRecord {
	if skip >= len(recs) {
		return nil
	}
	recs = recs[skip:]
	if limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}
	return recs
}
