package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_StartsAtEpoch(t *testing.T) {
	c := NewClock()
	assert.Equal(t, Epoch, c.Now())
	assert.Equal(t, Epoch, c.Now(), "reading must not move the clock")
}

func TestClock_Advance(t *testing.T) {
	c := NewClock()
	got := c.Advance(time.Hour)
	assert.Equal(t, Epoch.Add(time.Hour), got)
	assert.Equal(t, got, c.Now())
}

func TestClock_Set(t *testing.T) {
	c := NewClock()
	at := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Set(at)
	assert.Equal(t, at, c.Now())
}

func TestClock_ConcurrentAdvance(t *testing.T) {
	c := NewClock()
	const goroutines = 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(time.Second)
		}()
	}
	wg.Wait()

	assert.Equal(t, Epoch.Add(goroutines*time.Second), c.Now())
}
