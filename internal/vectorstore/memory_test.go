package vectorstore

import (
	"context"
	"testing"
)

func TestMemory_QueryOrdersByScore(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	points := []Point{
		{ID: 0, Vector: []float32{1, 0}, Path: "a.py"},
		{ID: 1, Vector: []float32{0, 1}, Path: "b.py"},
		{ID: 2, Vector: []float32{0.7071, 0.7071}, Path: "c.py"},
	}
	if err := m.Upsert(ctx, "repo", points); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	hits, err := m.Query(ctx, "repo", []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != 0 {
		t.Errorf("top hit = %d, want 0", hits[0].ID)
	}
	if hits[1].ID != 2 {
		t.Errorf("second hit = %d, want 2", hits[1].ID)
	}
}

// TestMemory_TieBreakByID verifies bit-equal scores keep original chunk
// order.
func TestMemory_TieBreakByID(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	same := []float32{0, 1}
	points := []Point{
		{ID: 2, Vector: same},
		{ID: 0, Vector: same},
		{ID: 1, Vector: same},
	}
	if err := m.Upsert(ctx, "repo", points); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	hits, err := m.Query(ctx, "repo", []float32{0, 1}, 3)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	for i, want := range []uint64{0, 1, 2} {
		if hits[i].ID != want {
			t.Errorf("hit %d = %d, want %d", i, hits[i].ID, want)
		}
	}
}

func TestMemory_UpsertReplacesByID(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Upsert(ctx, "repo", []Point{{ID: 0, Vector: []float32{1, 0}}}); err != nil {
		t.Fatal(err)
	}
	if err := m.Upsert(ctx, "repo", []Point{{ID: 0, Vector: []float32{0, 1}}}); err != nil {
		t.Fatal(err)
	}

	hits, err := m.Query(ctx, "repo", []float32{0, 1}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit after replace, got %d", len(hits))
	}
	if hits[0].Score < 0.99 {
		t.Errorf("replaced vector not in effect, score = %f", hits[0].Score)
	}
}

func TestMemory_EmptyCollection(t *testing.T) {
	m := NewMemory()
	hits, err := m.Query(context.Background(), "missing", []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestDot(t *testing.T) {
	if got := Dot([]float32{1, 2, 3}, []float32{4, 5, 6}); got != 32 {
		t.Errorf("Dot = %f, want 32", got)
	}
	if got := Dot([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("Dot with mismatched lengths = %f, want 0", got)
	}
}
