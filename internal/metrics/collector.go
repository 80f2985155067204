// Package metrics keeps in-memory timing and token statistics for the server.
package metrics

import (
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpEmbedding     = "embedding"
	OpLLMGenerate   = "llm_generate"
	OpTranscription = "transcription"
	OpDBQuery       = "db_query"
	OpVectorSearch  = "vector_search"
	OpStageJob      = "stage_job"
)

// span tracks the running total and extremes of one measured quantity.
type span struct {
	total    int64
	min, max int64
	seen     bool
}

func (s *span) add(v int64) {
	s.total += v
	if !s.seen || v < s.min {
		s.min = v
	}
	if !s.seen || v > s.max {
		s.max = v
	}
	s.seen = true
}

// opStats aggregates everything recorded under one operation name.
type opStats struct {
	count    int64
	failures int64
	elapsed  span // nanoseconds
	input    span
	output   span
	tokens   bool
}

// OperationSnapshot is the computed view of one operation.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	Failures    int64   `json:"failures,omitempty"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`

	// Token stats, only set for LLM operations that reported usage.
	TotalInputTokens  *int64   `json:"total_input_tokens,omitempty"`
	TotalOutputTokens *int64   `json:"total_output_tokens,omitempty"`
	AvgInputTokens    *float64 `json:"avg_input_tokens,omitempty"`
	AvgOutputTokens   *float64 `json:"avg_output_tokens,omitempty"`
	MinInputTokens    *int64   `json:"min_input_tokens,omitempty"`
	MaxInputTokens    *int64   `json:"max_input_tokens,omitempty"`
	MinOutputTokens   *int64   `json:"min_output_tokens,omitempty"`
	MaxOutputTokens   *int64   `json:"max_output_tokens,omitempty"`
}

// Snapshot is the server's statistics at a point in time. Operations that
// were never recorded are nil.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptime_seconds"`
	Embedding     *OperationSnapshot `json:"embedding,omitempty"`
	LLMGenerate   *OperationSnapshot `json:"llm_generate,omitempty"`
	Transcription *OperationSnapshot `json:"transcription,omitempty"`
	DBQuery       *OperationSnapshot `json:"db_query,omitempty"`
	VectorSearch  *OperationSnapshot `json:"vector_search,omitempty"`
	StageJob      *OperationSnapshot `json:"stage_job,omitempty"`
}

// Collector aggregates statistics. All methods are safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	started time.Time
	ops     map[string]*opStats
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{started: time.Now(), ops: make(map[string]*opStats)}
}

// stats returns the entry for op, creating it. Caller holds mu.
func (c *Collector) stats(op string) *opStats {
	s, ok := c.ops[op]
	if !ok {
		s = &opStats{}
		c.ops[op] = s
	}
	return s
}

// Track returns a func that records the time elapsed since Track was called.
// Safe to call on a nil Collector.
//
//	defer collector.Track(metrics.OpEmbedding)()
func (c *Collector) Track(op string) func() {
	start := time.Now()
	return func() {
		if c != nil {
			c.RecordTiming(op, time.Since(start))
		}
	}
}

// RecordTiming records one call of op.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats(op)
	s.count++
	s.elapsed.add(int64(duration))
}

// RecordFailure counts a failed call of op. The call's timing is recorded separately.
func (c *Collector) RecordFailure(op string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats(op).failures++
}

// RecordLLMUsage records one LLM call with its token usage.
func (c *Collector) RecordLLMUsage(op string, duration time.Duration, inputTokens, outputTokens int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats(op)
	s.count++
	s.elapsed.add(int64(duration))
	s.input.add(inputTokens)
	s.output.add(outputTokens)
	s.tokens = s.tokens || inputTokens > 0 || outputTokens > 0
}

func (s *opStats) snapshot() *OperationSnapshot {
	if s == nil || s.count == 0 {
		return nil
	}

	total := time.Duration(s.elapsed.total).Milliseconds()
	snap := &OperationSnapshot{
		Count:       s.count,
		Failures:    s.failures,
		TotalTimeMs: total,
		AvgTimeMs:   float64(total) / float64(s.count),
		MinTimeMs:   time.Duration(s.elapsed.min).Milliseconds(),
		MaxTimeMs:   time.Duration(s.elapsed.max).Milliseconds(),
	}
	if !s.tokens {
		return snap
	}

	in, out := s.input, s.output
	avgIn := float64(in.total) / float64(s.count)
	avgOut := float64(out.total) / float64(s.count)
	snap.TotalInputTokens, snap.TotalOutputTokens = &in.total, &out.total
	snap.AvgInputTokens, snap.AvgOutputTokens = &avgIn, &avgOut
	snap.MinInputTokens, snap.MaxInputTokens = &in.min, &in.max
	snap.MinOutputTokens, snap.MaxOutputTokens = &out.min, &out.max
	return snap
}

// Snapshot returns a copy of the current statistics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.started).Seconds(),
		Embedding:     c.ops[OpEmbedding].snapshot(),
		LLMGenerate:   c.ops[OpLLMGenerate].snapshot(),
		Transcription: c.ops[OpTranscription].snapshot(),
		DBQuery:       c.ops[OpDBQuery].snapshot(),
		VectorSearch:  c.ops[OpVectorSearch].snapshot(),
		StageJob:      c.ops[OpStageJob].snapshot(),
	}
}
