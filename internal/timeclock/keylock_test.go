package timeclock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyLockSerializesSameKey(t *testing.T) {
	l := newKeyLock()
	var inside, maxInside int32

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.lock(context.Background(), "m1")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxInside)
	}
	if l.size() != 0 {
		t.Errorf("size() = %d after all unlocks, want 0", l.size())
	}
}

func TestKeyLockDifferentKeysDontBlock(t *testing.T) {
	l := newKeyLock()
	unlockA, err := l.lock(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.lock(ctx, "b")
	if err != nil {
		t.Fatalf("lock(b) while a is held: %v", err)
	}
	unlockB()
}

func TestKeyLockHonoursContext(t *testing.T) {
	l := newKeyLock()
	unlock, err := l.lock(context.Background(), "m1")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.lock(ctx, "m1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("lock while held = %v, want DeadlineExceeded", err)
	}

	unlock()
	unlock() // second call is a no-op
	if l.size() != 0 {
		t.Errorf("size() = %d, want 0", l.size())
	}
}
