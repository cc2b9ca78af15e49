package batch

import (
	"runtime"
	"sync"
	"testing"

	"go.uber.org/goleak"
)

func TestNewWorkerPool(t *testing.T) {
	pool := NewWorkerPool(4)
	if pool == nil {
		t.Fatal("Expected non-nil worker pool")
	}
	if pool.Workers() != 4 {
		t.Errorf("Expected 4 workers, got %d", pool.Workers())
	}
}

func TestNewWorkerPool_ZeroWorkers(t *testing.T) {
	pool := NewWorkerPool(0)
	// Should default to runtime.NumCPU() when workers <= 0
	if pool.Workers() != runtime.NumCPU() {
		t.Errorf("Expected %d workers, got %d", runtime.NumCPU(), pool.Workers())
	}
}

func TestWorkerPool_Submit(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := NewWorkerPool(2)
	pool.Start()
	defer pool.Close()

	var counter int
	var mu sync.Mutex

	for i := 0; i < 5; i++ {
		pool.Submit(func() {
			mu.Lock()
			counter++
			mu.Unlock()
		})
	}

	pool.Wait()

	if counter != 5 {
		t.Errorf("Expected counter to be 5, got %d", counter)
	}
}

func TestWorkerPool_StartOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := NewWorkerPool(2)

	// Start should be idempotent
	pool.Start()
	pool.Start()
	defer pool.Close()

	var executed bool
	pool.Submit(func() {
		executed = true
	})

	pool.Wait()

	if !executed {
		t.Error("Expected job to be executed")
	}
}

func TestWorkerPool_SubmitAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := NewWorkerPool(2)
	pool.Start()

	var executed bool
	if !pool.Submit(func() { executed = true }) {
		t.Fatal("Expected submit to succeed before close")
	}

	pool.Wait()
	pool.Close()
	pool.Close() // Should not panic

	if !executed {
		t.Error("Expected job to be executed before close")
	}
	if pool.Submit(func() {}) {
		t.Error("Expected submit to fail after close")
	}
}

func TestWorkerPool_AtomicCounters(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := NewWorkerPool(4)
	pool.Start()
	defer pool.Close()

	const numJobs = 5

	for i := 0; i < numJobs; i++ {
		pool.Submit(func() {
			// Simulate some work
			for j := 0; j < 1000; j++ {
				_ = j * j
			}
		})
	}

	pool.Wait()

	stats := pool.GetStats()
	if stats.TotalJobs != int64(numJobs) {
		t.Errorf("Expected %d total jobs, got %d", numJobs, stats.TotalJobs)
	}
	if stats.CompletedJobs != int64(numJobs) {
		t.Errorf("Expected %d completed jobs, got %d", numJobs, stats.CompletedJobs)
	}
	if stats.ActiveWorkers != 0 {
		t.Errorf("Expected 0 active workers after completion, got %d", stats.ActiveWorkers)
	}
}

func TestWorkerPool_BoundedConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := NewWorkerPool(2)
	pool.Start()
	defer pool.Close()

	var mu sync.Mutex
	running, peak := 0, 0
	release := make(chan struct{})

	for i := 0; i < 4; i++ {
		pool.Submit(func() {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()

			<-release

			mu.Lock()
			running--
			mu.Unlock()
		})
	}
	close(release)
	pool.Wait()

	if peak > 2 {
		t.Errorf("Expected at most 2 concurrent jobs, saw %d", peak)
	}
}
