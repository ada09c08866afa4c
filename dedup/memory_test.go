package dedup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/zombar/imagefinder/models"
)

func record(content, url string, phash uint64) *models.DedupRecord {
	return &models.DedupRecord{
		ID:             uuid.New().String(),
		ContentHash:    content,
		URLHash:        url,
		PerceptualHash: phash,
		SourceURL:      "https://cdn.example.com/a.jpg",
		AcceptedAt:     time.Now(),
	}
}

func TestInsertAndFind(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	rec := record("content-1", "url-1", 0xDEADBEEF)
	if err := s.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := s.FindByContentHash(ctx, "content-1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.PerceptualHash != 0xDEADBEEF {
		t.Errorf("FindByContentHash = %+v", got)
	}

	got, err = s.FindByURLHash(ctx, "url-1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ContentHash != "content-1" {
		t.Errorf("FindByURLHash = %+v", got)
	}

	if got, _ := s.FindByContentHash(ctx, "nope"); got != nil {
		t.Error("missing hash should return nil, nil")
	}
}

func TestInsertRejectsDuplicateContentHash(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	if err := s.Insert(ctx, record("same", "url-a", 1)); err != nil {
		t.Fatal(err)
	}
	err := s.Insert(ctx, record("same", "url-b", 2))
	if err == nil {
		t.Fatal("expected duplicate error")
	}
	if !IsDuplicate(err) {
		t.Errorf("IsDuplicate(%v) = false", err)
	}

	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestInsertRaceOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs[n] = s.Insert(ctx, record("racy", uuid.New().String(), uint64(n)))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !IsDuplicate(err) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("exactly one racing insert must win, got %d", wins)
	}
}

func TestRecentFingerprintsNewestFirstBounded(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	for i := 0; i < 5; i++ {
		if err := s.Insert(ctx, record(string(rune('a'+i)), uuid.New().String(), uint64(i))); err != nil {
			t.Fatal(err)
		}
	}

	fps, err := s.RecentFingerprints(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(fps) != 3 {
		t.Fatalf("got %d fingerprints, want 3", len(fps))
	}
	if fps[0].PerceptualHash != 4 || fps[2].PerceptualHash != 2 {
		t.Errorf("expected newest first, got %+v", fps)
	}
}
