package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-engine/internal/executor"
)

func kpiFragment(value float64) *executor.Fragment {
	return &executor.Fragment{
		Kind: "kpi",
		Ref:  "kpi.sales_summary",
		KPIs: map[string]float64{"total_sales": value},
	}
}

func TestGetReturnsFreshValue(t *testing.T) {
	c := New(time.Minute)
	c.Set("k", kpiFragment(100))

	frag := c.Get("k")
	require.NotNil(t, frag)
	assert.InDelta(t, 100, frag.KPIs["total_sales"], 0.001)
}

func TestGetExpiresLazily(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.Set("k", kpiFragment(100))

	time.Sleep(40 * time.Millisecond)
	assert.Nil(t, c.Get("k"))

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.Misses)
}

func TestLastWriterWins(t *testing.T) {
	c := New(time.Minute)
	c.Set("k", kpiFragment(1))
	c.Set("k", kpiFragment(2))

	frag := c.Get("k")
	require.NotNil(t, frag)
	assert.InDelta(t, 2, frag.KPIs["total_sales"], 0.001)
}

func TestGetOrLoadCachesResult(t *testing.T) {
	c := New(time.Minute)
	var loads atomic.Int32

	load := func(context.Context) (*executor.Fragment, error) {
		loads.Add(1)
		return kpiFragment(7), nil
	}

	frag, hit, err := c.GetOrLoad(context.Background(), "k", load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.InDelta(t, 7, frag.KPIs["total_sales"], 0.001)

	_, hit, err = c.GetOrLoad(context.Background(), "k", load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.EqualValues(t, 1, loads.Load())
}

// Concurrent callers with the same key share one upstream fetch.
func TestGetOrLoadSingleFlight(t *testing.T) {
	c := New(time.Minute)
	var loads atomic.Int32
	gate := make(chan struct{})

	load := func(context.Context) (*executor.Fragment, error) {
		loads.Add(1)
		<-gate
		return kpiFragment(9), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			frag, _, err := c.GetOrLoad(context.Background(), "k", load)
			assert.NoError(t, err)
			assert.NotNil(t, frag)
		}()
	}

	time.Sleep(30 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.EqualValues(t, 1, loads.Load())
}

func TestGetOrLoadPropagatesError(t *testing.T) {
	c := New(time.Minute)

	_, _, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (*executor.Fragment, error) {
		return nil, assert.AnError
	})
	require.Error(t, err)

	// Failures are not cached.
	assert.Nil(t, c.Get("k"))
}

func TestInvalidateDropsEverything(t *testing.T) {
	c := New(time.Minute)
	c.Set("a", kpiFragment(1))
	c.Set("b", kpiFragment(2))

	c.Invalidate()
	assert.Nil(t, c.Get("a"))
	assert.Nil(t, c.Get("b"))
	assert.Equal(t, 0, c.Stats().Size)
}
