package middleware

import (
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestKeyedLimiter_AllowsWithinBurst(t *testing.T) {
	kl := NewKeyedLimiter(KeyedLimiterConfig{Rate: 1, Burst: 5, CleanupInterval: time.Minute})
	defer kl.Stop()

	for i := 0; i < 5; i++ {
		if !kl.Allow("user-1") {
			t.Errorf("request %d should be allowed within burst", i)
		}
	}
	if kl.Allow("user-1") {
		t.Error("request beyond burst should be denied")
	}
}

func TestKeyedLimiter_IsolatesKeys(t *testing.T) {
	kl := NewKeyedLimiter(KeyedLimiterConfig{Rate: rate.Limit(0.001), Burst: 1, CleanupInterval: time.Minute})
	defer kl.Stop()

	if !kl.Allow("user-1") {
		t.Fatal("first request for user-1 should be allowed")
	}
	if kl.Allow("user-1") {
		t.Error("second request for user-1 should be denied")
	}
	if !kl.Allow("user-2") {
		t.Error("user-2 should have an independent budget")
	}
	if kl.Count() != 2 {
		t.Errorf("Count = %d, want 2", kl.Count())
	}
}

func TestKeyedLimiter_ZeroRateDisablesLimit(t *testing.T) {
	kl := NewKeyedLimiter(KeyedLimiterConfig{})
	defer kl.Stop()

	for i := 0; i < 100; i++ {
		if !kl.Allow("user-1") {
			t.Fatalf("request %d denied with limit disabled", i)
		}
	}
	if kl.Count() != 0 {
		t.Errorf("Count = %d, want 0 when disabled", kl.Count())
	}
}

func TestKeyedLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	kl := NewKeyedLimiter(KeyedLimiterConfig{Rate: 1, Burst: 1, CleanupInterval: time.Minute})
	defer kl.Stop()

	kl.Allow("old")
	kl.Allow("fresh")

	kl.mu.Lock()
	kl.limiters["old"].lastAccess = time.Now().Add(-3 * time.Minute)
	kl.mu.Unlock()

	kl.cleanup(time.Now())

	if kl.Count() != 1 {
		t.Fatalf("Count = %d, want 1", kl.Count())
	}
	kl.mu.Lock()
	_, freshExists := kl.limiters["fresh"]
	kl.mu.Unlock()
	if !freshExists {
		t.Error("fresh entry should survive cleanup")
	}
}

func TestKeyedLimiter_StopIsIdempotent(t *testing.T) {
	kl := NewKeyedLimiter(PerMinute(10))
	kl.Stop()
	kl.Stop()
}

func TestKeyedLimiter_ConcurrentAllow(t *testing.T) {
	kl := NewKeyedLimiter(KeyedLimiterConfig{Rate: rate.Limit(0.001), Burst: 10, CleanupInterval: time.Minute})
	defer kl.Stop()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if kl.Allow("user-1") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 10 {
		t.Errorf("allowed = %d, want 10 (burst)", allowed)
	}
}

func TestPerMinute(t *testing.T) {
	cfg := PerMinute(20)
	if cfg.Burst != 20 {
		t.Errorf("Burst = %d, want 20", cfg.Burst)
	}
	want := rate.Limit(20.0 / 60.0)
	if cfg.Rate != want {
		t.Errorf("Rate = %v, want %v", cfg.Rate, want)
	}
	if cfg.CleanupInterval <= 0 {
		t.Error("CleanupInterval should have a default")
	}
}
