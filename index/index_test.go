package index

import (
	"sync"
	"testing"
)

func TestInsertAndSearchExactMatch(t *testing.T) {
	ix := New()
	if err := ix.Insert("tier 1 capital ratio", []float32{1, 0, 0}, map[string]string{"filename": "basel.pdf"}); err != nil {
		t.Fatal(err)
	}
	if err := ix.Insert("liquidity coverage ratio", []float32{0, 1, 0}, map[string]string{"filename": "basel.pdf"}); err != nil {
		t.Fatal(err)
	}

	results := ix.Search([]float32{1, 0, 0}, 1)
	if len(results) != 1 || results[0].Text != "tier 1 capital ratio" {
		t.Fatalf("got %+v, want exact match first", results)
	}
}

func TestInsertOverwritesDuplicateText(t *testing.T) {
	ix := New()
	ix.Insert("x", []float32{1, 0}, map[string]string{"v": "1"})
	ix.Insert("x", []float32{0, 1}, map[string]string{"v": "2"})

	if ix.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (overwrite, not append)", ix.Len())
	}
	meta, ok := ix.GetMetadata("x")
	if !ok || meta["v"] != "2" {
		t.Errorf("metadata not overwritten: %+v", meta)
	}
}

func TestInsertDimensionMismatch(t *testing.T) {
	ix := New()
	if err := ix.Insert("a", []float32{1, 0, 0}, nil); err != nil {
		t.Fatal(err)
	}
	err := ix.Insert("b", []float32{1, 0}, nil)
	if err == nil {
		t.Fatal("expected ErrDimension, got nil")
	}
	if ix.Len() != 1 {
		t.Errorf("failed insert must not mutate the index, Len() = %d", ix.Len())
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	ix := New()
	results := ix.Search([]float32{1, 0}, 5)
	if len(results) != 0 {
		t.Errorf("expected empty results, got %+v", results)
	}
}

func TestSearchZeroK(t *testing.T) {
	ix := New()
	ix.Insert("a", []float32{1, 0}, nil)
	results := ix.Search([]float32{1, 0}, 0)
	if len(results) != 0 {
		t.Errorf("k=0 must return empty, got %+v", results)
	}
}

func TestSearchClampsKToSize(t *testing.T) {
	ix := New()
	ix.Insert("a", []float32{1, 0}, nil)
	ix.Insert("b", []float32{0, 1}, nil)
	results := ix.Search([]float32{1, 0}, 10)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (clamped to index size)", len(results))
	}
}

func TestSearchStableTieBreakByInsertionOrder(t *testing.T) {
	ix := New()
	ix.Insert("first", []float32{1, 0}, nil)
	ix.Insert("second", []float32{1, 0}, nil)

	results := ix.Search([]float32{1, 0}, 2)
	if results[0].Text != "first" || results[1].Text != "second" {
		t.Errorf("tie-break not stable by insertion order: %+v", results)
	}
}

func TestDeleteByFilenameRemovesMatchingEntries(t *testing.T) {
	ix := New()
	ix.Insert("a", []float32{1, 0}, map[string]string{"filename": "foo.pdf"})
	ix.Insert("b", []float32{0, 1}, map[string]string{"filename": "foo.pdf"})
	ix.Insert("c", []float32{1, 1}, map[string]string{"filename": "bar.pdf"})

	removed := ix.DeleteByFilename("foo.pdf")
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if ix.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", ix.Len())
	}
	if _, ok := ix.GetMetadata("c"); !ok {
		t.Error("unrelated entry was removed")
	}
}

func TestSnapshotOmitsVectorsPreservesOrder(t *testing.T) {
	ix := New()
	ix.Insert("a", []float32{1, 0}, map[string]string{"k": "1"})
	ix.Insert("b", []float32{0, 1}, map[string]string{"k": "2"})

	snap := ix.Snapshot()
	if len(snap) != 2 || snap[0].Text != "a" || snap[1].Text != "b" {
		t.Fatalf("got %+v, want insertion-ordered snapshot", snap)
	}
}

func TestConcurrentInsertAndSearch(t *testing.T) {
	ix := New()
	ix.Insert("seed", []float32{1, 0}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			ix.Insert(itoa(i), []float32{float32(i % 2), float32((i + 1) % 2)}, map[string]string{"filename": "f.pdf"})
		}(i)
		go func() {
			defer wg.Done()
			ix.Search([]float32{1, 0}, 3)
		}()
	}
	wg.Wait()

	if ix.Len() < 1 {
		t.Fatal("expected entries after concurrent inserts")
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var digits []byte
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}
