package rotation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelLocks_SerializesSameChannel(t *testing.T) {
	locks := NewChannelLocks()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("chan-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, counter)
}

func TestChannelLocks_IndependentChannels(t *testing.T) {
	locks := NewChannelLocks()

	unlockA := locks.Lock("a")
	defer unlockA()

	// Locking another channel must not block while "a" is held.
	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("b")
		unlockB()
		close(done)
	}()
	<-done
}
