package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpDistill, 10*time.Millisecond)
	c.RecordTiming(OpDistill, 30*time.Millisecond)

	snap := c.Snapshot()
	require.NotNil(t, snap.Distill)
	assert.Equal(t, int64(2), snap.Distill.Count)
	assert.Equal(t, int64(10), snap.Distill.MinTimeMs)
	assert.Equal(t, int64(30), snap.Distill.MaxTimeMs)
	assert.InDelta(t, 20.0, snap.Distill.AvgTimeMs, 0.001)
	assert.Nil(t, snap.Distill.TotalInputTokens)
	assert.Nil(t, snap.DBQuery)
}

func TestRecordLLMUsage(t *testing.T) {
	c := NewCollector()
	c.RecordLLMUsage(OpLLMGenerate, time.Second, 100, 40)
	c.RecordLLMUsage(OpLLMGenerate, time.Second, 50, 60)

	snap := c.Snapshot().LLMGenerate
	require.NotNil(t, snap)
	assert.Equal(t, int64(150), *snap.TotalInputTokens)
	assert.Equal(t, int64(50), *snap.MinInputTokens)
	assert.Equal(t, int64(60), *snap.MaxOutputTokens)
}

func TestCountersConcurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Add(CountFactsSaved, 2)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(100), c.Snapshot().Counters[CountFactsSaved])
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.Add(CountSessionsStarted, 1)
		c.RecordTiming(OpDBQuery, time.Millisecond)
		c.Time(OpDBWrite, time.Now())
		_ = c.Snapshot()
	})
}

func TestTimingOnlyHasNoTokens(t *testing.T) {
	c := NewCollector()
	c.RecordLLMUsage(OpLLMGenerate, 5*time.Millisecond, 0, 0)
	snap := c.Snapshot().LLMGenerate
	require.NotNil(t, snap)
	assert.Equal(t, int64(1), snap.Count)
	assert.Nil(t, snap.TotalInputTokens)
}

func TestTimeDefer(t *testing.T) {
	c := NewCollector()
	func() {
		defer c.Time(OpDBWrite, time.Now().Add(-20*time.Millisecond))
	}()
	snap := c.Snapshot().DBWrite
	require.NotNil(t, snap)
	assert.GreaterOrEqual(t, snap.MinTimeMs, int64(20))
}
