package querycache_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlfredDev/orchestratord/internal/querycache"
)

func TestGetCachesWithinTTL(t *testing.T) {
	c := querycache.New(50 * time.Millisecond)
	var calls int32

	compute := func() (any, error) {
		atomic.AddInt32(&calls, 1)
		return 42, nil
	}

	v, err := c.Get("k", compute)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = c.Get("k", compute)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetRecomputesAfterTTL(t *testing.T) {
	c := querycache.New(10 * time.Millisecond)
	var calls int32
	compute := func() (any, error) {
		n := atomic.AddInt32(&calls, 1)
		return int(n), nil
	}

	_, _ = c.Get("k", compute)
	time.Sleep(20 * time.Millisecond)
	v, err := c.Get("k", compute)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestConcurrentMissesCoalesce(t *testing.T) {
	c := querycache.New(time.Second)
	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})

	compute := func() (any, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-release
		}
		return "v", nil
	}

	results := make(chan any, 2)
	go func() {
		v, _ := c.Get("shared", compute)
		results <- v
	}()
	<-started
	go func() {
		v, _ := c.Get("shared", compute)
		results <- v
	}()

	close(release)
	r1 := <-results
	r2 := <-results
	assert.Equal(t, "v", r1)
	assert.Equal(t, "v", r2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestInvalidateForcesRecompute(t *testing.T) {
	c := querycache.New(time.Hour)
	var calls int32
	compute := func() (any, error) {
		n := atomic.AddInt32(&calls, 1)
		return int(n), nil
	}

	_, _ = c.Get("k", compute)
	c.Invalidate("k")
	v, _ := c.Get("k", compute)
	assert.Equal(t, 2, v)
}
