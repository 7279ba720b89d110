package symlock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockSerializesOneKey(t *testing.T) {
	table := New()

	const workers = 16
	const perWorker = 100

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				unlock := table.Lock("AAPL")
				counter++
				unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, counter)
}

func TestLockIndependentKeysDoNotBlock(t *testing.T) {
	table := New()

	unlockA := table.Lock("AAPL")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := table.Lock("XOM")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on an unrelated key blocked")
	}
}

func TestLockReacquireAfterUnlock(t *testing.T) {
	table := New()

	unlock := table.Lock("AAPL")
	unlock()

	unlock = table.Lock("AAPL")
	unlock()
}
