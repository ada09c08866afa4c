package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/zombar/imagefinder/models"
)

func TestGetPutRoundTrip(t *testing.T) {
	c := New(DefaultConfig(), nil)

	if _, ok := c.Get("https://cdn.example.com/a.jpg"); ok {
		t.Error("empty cache should miss")
	}

	out := models.ValidationOutcome{Accepted: true, ContentType: "image/jpeg", Width: 1200, Height: 630}
	c.Put("https://cdn.example.com/a.jpg", out)

	got, ok := c.Get("https://cdn.example.com/a.jpg")
	if !ok {
		t.Fatal("expected hit")
	}
	if got != out {
		t.Errorf("got %+v, want %+v", got, out)
	}
}

func TestTTLExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	c := New(Config{TTL: time.Hour}, clock)
	c.Put("u", models.ValidationOutcome{Accepted: false, Reason: "too small"})

	if _, ok := c.Get("u"); !ok {
		t.Fatal("expected hit before expiry")
	}

	advance(59 * time.Minute)
	got, ok := c.Get("u")
	if !ok {
		t.Fatal("expected hit at 59m")
	}
	if got.Accepted || got.Reason != "too small" {
		t.Errorf("negative outcome must survive until TTL: %+v", got)
	}

	advance(2 * time.Minute)
	if _, ok := c.Get("u"); ok {
		t.Error("expected miss after TTL")
	}
}

func TestPurge(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	c := New(Config{TTL: time.Minute}, clock)

	c.Put("a", models.ValidationOutcome{})
	c.Put("b", models.ValidationOutcome{})
	now = now.Add(2 * time.Minute)
	c.Put("c", models.ValidationOutcome{})

	if removed := c.Purge(); removed != 2 {
		t.Errorf("Purge removed %d, want 2", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New(DefaultConfig(), nil)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Put("shared", models.ValidationOutcome{Accepted: n%2 == 0})
				c.Get("shared")
			}
		}(i)
	}
	wg.Wait()
}
