package reporting

import (
	"context"
	"sync"

	"eldercare-platform/internal/records"
)

// MemoryRepo is a simple in-memory reporting repository for tests.
type MemoryRepo struct {
	mu    sync.Mutex
	Calls []records.CallRecord
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListCalls(ctx context.Context, f records.CallFilter) ([]records.CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[string]bool, len(f.AppointmentIDs))
	for _, id := range f.AppointmentIDs {
		want[id] = true
	}
	out := make([]records.CallRecord, 0)
	for _, c := range r.Calls {
		if !f.From.IsZero() && c.StartTime.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !c.StartTime.Before(f.To) {
			continue
		}
		if len(want) > 0 && !want[c.AppointmentID] {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
