// Package metrics keeps in-memory runtime statistics: operation timings,
// generator token usage and named counters. Nothing is exported to an
// external system; the numbers are served by the stats endpoint.
package metrics

import (
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpLLMGenerate = "llm_generate"
	OpDistill     = "distill"
	OpDBQuery     = "db_query"
	OpDBWrite     = "db_write"
)

// Counter names.
const (
	CountSessionsStarted   = "sessions_started"
	CountSessionsCompleted = "sessions_completed"
	CountSessionsEvicted   = "sessions_evicted"
	CountFactsSaved        = "facts_saved"
	CountDistillDropped    = "distill_dropped"
	CountProtocolErrors    = "protocol_errors"
)

// span tracks count, total, min and max of one quantity.
type span struct {
	n        int64
	sum      int64
	min, max int64
}

func (s *span) observe(v int64) {
	if s.n == 0 || v < s.min {
		s.min = v
	}
	if s.n == 0 || v > s.max {
		s.max = v
	}
	s.n++
	s.sum += v
}

func (s span) avg() float64 {
	if s.n == 0 {
		return 0
	}
	return float64(s.sum) / float64(s.n)
}

type opStats struct {
	duration span // nanoseconds
	input    span
	output   span
}

// OperationSnapshot provides computed stats for one operation.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`

	// Token stats, set only for generator calls that reported usage
	TotalInputTokens  *int64   `json:"total_input_tokens,omitempty"`
	TotalOutputTokens *int64   `json:"total_output_tokens,omitempty"`
	AvgInputTokens    *float64 `json:"avg_input_tokens,omitempty"`
	AvgOutputTokens   *float64 `json:"avg_output_tokens,omitempty"`
	MinInputTokens    *int64   `json:"min_input_tokens,omitempty"`
	MaxInputTokens    *int64   `json:"max_input_tokens,omitempty"`
	MinOutputTokens   *int64   `json:"min_output_tokens,omitempty"`
	MaxOutputTokens   *int64   `json:"max_output_tokens,omitempty"`
}

// Snapshot is the full statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptime_seconds"`
	LLMGenerate   *OperationSnapshot `json:"llm_generate,omitempty"`
	Distill       *OperationSnapshot `json:"distill,omitempty"`
	DBQuery       *OperationSnapshot `json:"db_query,omitempty"`
	DBWrite       *OperationSnapshot `json:"db_write,omitempty"`
	Counters      map[string]int64   `json:"counters"`
}

// Collector aggregates runtime statistics.
// All methods are safe for concurrent use and on a nil *Collector.
type Collector struct {
	mu       sync.Mutex
	started  time.Time
	ops      map[string]*opStats
	counters map[string]int64
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		started:  time.Now(),
		ops:      make(map[string]*opStats),
		counters: make(map[string]int64),
	}
}

// Add increments a named counter by n.
func (c *Collector) Add(name string, n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.counters[name] += n
	c.mu.Unlock()
}

// Time records the duration since start for op. Intended for defer.
func (c *Collector) Time(op string, start time.Time) {
	c.RecordTiming(op, time.Since(start))
}

// RecordTiming records one call of op.
func (c *Collector) RecordTiming(op string, d time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.op(op).duration.observe(int64(d))
	c.mu.Unlock()
}

// RecordLLMUsage records one generator call with its token usage.
func (c *Collector) RecordLLMUsage(op string, d time.Duration, inputTokens, outputTokens int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	s := c.op(op)
	s.duration.observe(int64(d))
	s.input.observe(inputTokens)
	s.output.observe(outputTokens)
	c.mu.Unlock()
}

// op returns the stats of name, creating them. Caller holds mu.
func (c *Collector) op(name string) *opStats {
	s, ok := c.ops[name]
	if !ok {
		s = &opStats{}
		c.ops[name] = s
	}
	return s
}

func (s *opStats) snapshot() *OperationSnapshot {
	if s == nil || s.duration.n == 0 {
		return nil
	}
	ms := func(ns int64) int64 { return time.Duration(ns).Milliseconds() }
	snap := &OperationSnapshot{
		Count:       s.duration.n,
		TotalTimeMs: ms(s.duration.sum),
		AvgTimeMs:   float64(ms(s.duration.sum)) / float64(s.duration.n),
		MinTimeMs:   ms(s.duration.min),
		MaxTimeMs:   ms(s.duration.max),
	}
	if s.input.sum == 0 && s.output.sum == 0 {
		return snap
	}
	in, out := s.input, s.output
	avgIn, avgOut := in.avg(), out.avg()
	snap.TotalInputTokens, snap.TotalOutputTokens = &in.sum, &out.sum
	snap.AvgInputTokens, snap.AvgOutputTokens = &avgIn, &avgOut
	snap.MinInputTokens, snap.MaxInputTokens = &in.min, &in.max
	snap.MinOutputTokens, snap.MaxOutputTokens = &out.min, &out.max
	return snap
}

// Snapshot returns a copy of the current statistics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{Counters: map[string]int64{}}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	counters := make(map[string]int64, len(c.counters))
	for k, v := range c.counters {
		counters[k] = v
	}
	return Snapshot{
		UptimeSeconds: time.Since(c.started).Seconds(),
		LLMGenerate:   c.ops[OpLLMGenerate].snapshot(),
		Distill:       c.ops[OpDistill].snapshot(),
		DBQuery:       c.ops[OpDBQuery].snapshot(),
		DBWrite:       c.ops[OpDBWrite].snapshot(),
		Counters:      counters,
	}
}
