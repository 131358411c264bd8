package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"eldercare-platform/pkg/logger"
	"eldercare-platform/pkg/utils"
)

// backends runs fn against every Store implementation that needs no server.
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore(logger.Discard()))
	})
	t.Run("sqlite", func(t *testing.T) {
		ctx := context.Background()
		db, err := utils.OpenSQLite(ctx, ":memory:")
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })
		s, err := NewSQLStore(db, DialectSQLite, nil, logger.Discard())
		if err != nil {
			t.Fatalf("new store: %v", err)
		}
		if err := s.EnsureSchema(ctx); err != nil {
			t.Fatalf("schema: %v", err)
		}
		fn(t, s)
	})
}

func TestStore_CRUD(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		id, err := s.Create(ctx, "calls", Data{"status": "active", "participantId": 7})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if id == "" {
			t.Fatalf("expected generated id")
		}

		if err := s.Update(ctx, "calls", id, Data{"status": "completed"}); err != nil {
			t.Fatalf("update: %v", err)
		}
		d, err := s.Get(ctx, "calls", id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if d.Data["status"] != "completed" || d.Data["participantId"] != float64(7) {
			t.Fatalf("expected merged fields, got %v", d.Data)
		}

		if err := s.Delete(ctx, "calls", id); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := s.Get(ctx, "calls", id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})
}

func TestStore_UpdateMissingIsNotFound(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		if err := s.Update(context.Background(), "calls", "missing", Data{"status": "completed"}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := s.Delete(context.Background(), "calls", "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound on delete, got %v", err)
		}
	})
}

func TestStore_ServerTimestamp(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		before := time.Now().UTC().Add(-time.Second)
		id, err := s.Create(ctx, "calls", Data{"startTime": ServerTimestamp})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		d, _ := s.Get(ctx, "calls", id)
		var rec struct {
			StartTime time.Time `json:"startTime"`
		}
		if err := d.Decode(&rec); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if rec.StartTime.Before(before) {
			t.Fatalf("expected server timestamp, got %v", rec.StartTime)
		}
	})
}

func TestStore_QueryFiltersOrderLimit(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		seed := []Data{
			{"patientId": "p1", "status": "scheduled", "scheduledAt": base.Add(2 * time.Hour), "order": 3},
			{"patientId": "p1", "status": "completed", "scheduledAt": base, "order": 1},
			{"patientId": "p2", "status": "scheduled", "scheduledAt": base.Add(time.Hour), "order": 2},
			{"patientId": "p1", "status": "scheduled", "scheduledAt": base.Add(3 * time.Hour), "order": 4},
		}
		for _, d := range seed {
			if _, err := s.Create(ctx, "appointments", d); err != nil {
				t.Fatalf("seed: %v", err)
			}
		}

		docs, err := s.Query(ctx, "appointments", Query{}.
			Where("patientId", OpEq, "p1").
			Where("scheduledAt", OpGte, base.Add(time.Hour)).
			Order("scheduledAt", true))
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(docs) != 2 || docs[0].Data["order"] != float64(4) || docs[1].Data["order"] != float64(3) {
			t.Fatalf("unexpected result %v", orders(docs))
		}

		docs, err = s.Query(ctx, "appointments", Query{}.Where("order", OpLt, 3).Order("order", false).WithLimit(1))
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(docs) != 1 || docs[0].Data["order"] != float64(1) {
			t.Fatalf("unexpected limited result %v", orders(docs))
		}

		if _, err := s.Query(ctx, "appointments", Query{}.Where("x", Op("!="), 1)); !errors.Is(err, ErrInvalidFilter) {
			t.Fatalf("expected ErrInvalidFilter, got %v", err)
		}
	})
}

func orders(docs []Document) []any {
	out := make([]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Data["order"])
	}
	return out
}

func TestStore_WatchPushesChanges(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ch, err := s.Watch(ctx, "calls", Query{}.Where("status", OpEq, "active"))
		if err != nil {
			t.Fatalf("watch: %v", err)
		}
		if got := next(t, ch); len(got) != 0 {
			t.Fatalf("expected empty initial result, got %d", len(got))
		}

		id, err := s.Create(ctx, "calls", Data{"status": "active"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if got := next(t, ch); len(got) != 1 || got[0].ID != id {
			t.Fatalf("expected the new active call, got %v", got)
		}

		if err := s.Update(ctx, "calls", id, Data{"status": "completed"}); err != nil {
			t.Fatalf("update: %v", err)
		}
		if got := next(t, ch); len(got) != 0 {
			t.Fatalf("expected completed call to drop out, got %d", len(got))
		}

		cancel()
		for range ch {
		}
	})
}

func next(t *testing.T, ch <-chan []Document) []Document {
	t.Helper()
	select {
	case docs, ok := <-ch:
		if !ok {
			t.Fatalf("watch closed")
		}
		return docs
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for watch update")
	}
	return nil
}

func TestLocalNotifier_CancelStopsDelivery(t *testing.T) {
	n := NewLocalNotifier()
	ch, cancel, _ := n.Subscribe(context.Background(), "calls")
	_ = n.Notify(context.Background(), "calls")
	_ = n.Notify(context.Background(), "calls")
	if _, ok := <-ch; !ok {
		t.Fatalf("expected coalesced signal")
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed after cancel")
	}
	if err := n.Notify(context.Background(), "calls"); err != nil {
		t.Fatalf("notify after cancel: %v", err)
	}
}
