package sched

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMutexMutualExclusion(t *testing.T) {
	s := mksched(t, 4)
	m := MkMutex()
	const n = 8
	counter := 0
	var wg sync.WaitGroup
	wg.Add(n)

	for i := 0; i < n; i++ {
		task := s.Create(nil, func(ctx context.Context, ct *Task_t) {
			defer wg.Done()
			if err := m.Lock(s, ct); err != 0 {
				t.Errorf("Lock failed: %v", err)
				return
			}
			local := counter
			local++
			counter = local
			m.Unlock(s)
		})
		if task == nil {
			t.Fatal("Create failed")
		}
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
	if counter != n {
		t.Fatalf("counter = %d, want %d (mutex failed to serialize increments)", counter, n)
	}
}

func TestMutexTryLock(t *testing.T) {
	s := mksched(t, 1)
	m := MkMutex()
	if !m.TryLock(s) {
		t.Fatal("TryLock should succeed on an unheld mutex")
	}
	if m.TryLock(s) {
		t.Fatal("TryLock should fail while held")
	}
	m.Unlock(s)
	if !m.TryLock(s) {
		t.Fatal("TryLock should succeed after Unlock")
	}
}
