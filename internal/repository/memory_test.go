package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mr1hm/go-relief-pipeline/internal/models"
)

func TestMemoryStore_SaveReturnsCopies(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	inc := &models.Incident{ID: "m-1", Text: "original", Allocation: models.Allocation{"shelter": {"shel-1"}}}
	if err := s.SaveIncident(ctx, inc); err != nil {
		t.Fatalf("SaveIncident: %v", err)
	}

	inc.Text = "mutated after save"
	inc.Allocation["shelter"][0] = "mutated"

	got, err := s.GetIncident(ctx, "m-1")
	if err != nil {
		t.Fatalf("GetIncident: %v", err)
	}
	if got.Text != "original" {
		t.Errorf("Text = %q, want %q", got.Text, "original")
	}
	if got.Allocation["shelter"][0] != "shel-1" {
		t.Errorf("allocation shared memory with caller: %v", got.Allocation)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected created_at to default when zero")
	}
}

func TestMemoryStore_ListOrderAndLimit(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	triaged := base.Add(3 * time.Hour)
	_ = s.SaveIncident(ctx, &models.Incident{ID: "a", CreatedAt: base})
	_ = s.SaveIncident(ctx, &models.Incident{ID: "b", CreatedAt: base.Add(time.Hour)})
	_ = s.SaveIncident(ctx, &models.Incident{ID: "c", CreatedAt: base.Add(-time.Hour), Severity: models.SeverityLow, TriageTS: &triaged})

	list, err := s.ListIncidents(ctx, 2)
	if err != nil {
		t.Fatalf("ListIncidents: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ID != "c" || list[1].ID != "b" {
		t.Errorf("order = [%s %s], want [c b]", list[0].ID, list[1].ID)
	}
}

func TestMemoryStore_Caches(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	if c, _ := s.GetCachedGeocode(ctx, "x"); c != nil {
		t.Fatalf("expected miss, got %+v", c)
	}
	_ = s.CacheGeocode(ctx, "x", models.Coordinates{Latitude: 1, Longitude: 2})
	if c, _ := s.GetCachedGeocode(ctx, "x"); c == nil || c.Latitude != 1 {
		t.Errorf("expected hit (1, 2), got %+v", c)
	}

	if ok, _ := s.IsSeen(ctx, "h"); ok {
		t.Error("expected unseen")
	}
	_ = s.MarkSeen(ctx, "h")
	if ok, _ := s.IsSeen(ctx, "h"); !ok {
		t.Error("expected seen")
	}
}

func TestMemoryStore_ConcurrentSaves(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("inc-%d", n%10)
			_ = s.SaveIncident(ctx, &models.Incident{ID: id, Text: fmt.Sprintf("write %d", n)})
		}(i)
	}
	wg.Wait()

	list, err := s.ListIncidents(ctx, 100)
	if err != nil {
		t.Fatalf("ListIncidents: %v", err)
	}
	if len(list) != 10 {
		t.Errorf("len = %d, want 10 (last writer wins per id)", len(list))
	}
}
