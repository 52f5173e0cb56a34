package cache

import (
	"testing"
)

func TestCacheMetrics_CountsAndHitRate(t *testing.T) {
	metrics := NewCacheMetrics()

	if metrics.HitRate() != 0.0 {
		t.Errorf("Expected 0%% hit rate with no operations, got %.2f%%", metrics.HitRate())
	}

	metrics.RecordHit()
	metrics.RecordHit()
	metrics.RecordMiss()
	metrics.RecordSet()
	metrics.RecordDelete()
	metrics.RecordError()

	stats := metrics.GetStats()
	if stats.Hits != 2 || stats.Misses != 1 || stats.Sets != 1 || stats.Deletes != 1 || stats.Errors != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	hitRate := metrics.HitRate()
	if hitRate < 66.57 || hitRate > 66.77 {
		t.Errorf("Expected hit rate around 66.67%%, got %.2f%%", hitRate)
	}

	metrics.Reset()
	stats = metrics.GetStats()
	if stats.Hits != 0 || stats.Misses != 0 {
		t.Error("Expected metrics to be reset to 0")
	}
}

func TestCacheMetrics_Concurrency(t *testing.T) {
	metrics := NewCacheMetrics()

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				metrics.RecordHit()
				metrics.RecordMiss()
			}
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	stats := metrics.GetStats()
	if stats.Hits != 1000 || stats.Misses != 1000 {
		t.Errorf("Expected 1000 hits and misses, got %d/%d", stats.Hits, stats.Misses)
	}
}
