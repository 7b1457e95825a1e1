// Package trace implements the per-request trace collector: an
// operation-scoped object bound into the request's context.Context for the
// lifetime of one HTTP handler, aggregating events, counters, and gauges
// with a drop-on-overflow discipline. A disabled collector makes every
// method a near-no-op so untraced requests pay almost nothing.
//
// This is an application-level business summary, complementary to the
// ambient OpenTelemetry spans in internal/pkg/tracing; it is what the
// client sees back in the response's trace sub-object, not what lands in
// the tracing backend.
package trace

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openviking/openviking/internal/models"
)

// DefaultMaxEvents bounds the event list of one collector. Events past the
// budget are counted in dropped_events and events_truncated is set.
const DefaultMaxEvents = 500

// Collector is the request-scoped trace collector. It tolerates concurrent
// event/count/set calls from multiple goroutines sharing one request.
type Collector struct {
	Operation string
	TraceID   string

	// Publish, when set, receives the finished summary exactly once; the
	// HTTP layer points it at the live stream hub.
	Publish func(models.TraceSummary)

	enabled   bool
	maxEvents int
	start     time.Time

	mu            sync.Mutex
	events        []models.TraceEvent
	counters      map[string]float64
	gauges        map[string]interface{}
	droppedEvents int
	errStage      string
	errCode       string
	errMessage    string
}

// NewCollector creates a collector for one operation. When enabled is
// false every method returns immediately and Finish returns nil.
func NewCollector(operation string, enabled bool) *Collector {
	return NewCollectorWithBudget(operation, enabled, DefaultMaxEvents)
}

// NewCollectorWithBudget creates a collector with an explicit event budget.
func NewCollectorWithBudget(operation string, enabled bool, maxEvents int) *Collector {
	c := &Collector{
		Operation: operation,
		enabled:   enabled,
		maxEvents: maxEvents,
		start:     time.Now(),
	}
	if enabled {
		c.TraceID = "tr_" + uuid.NewString()
		c.counters = make(map[string]float64)
		c.gauges = make(map[string]interface{})
	}
	return c
}

// Enabled reports whether this collector records anything.
func (c *Collector) Enabled() bool {
	return c != nil && c.enabled
}

// Event appends one structured event. Past maxEvents the event is dropped
// and counted instead of grown.
func (c *Collector) Event(stage, name string, attrs map[string]interface{}, status string) {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) >= c.maxEvents {
		c.droppedEvents++
		return
	}
	if status == "" {
		status = "ok"
	}
	c.events = append(c.events, models.TraceEvent{
		Stage:  stage,
		Name:   name,
		Attrs:  attrs,
		Status: status,
	})
}

// Count adds delta to the named counter.
func (c *Collector) Count(key string, delta float64) {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	c.counters[key] += delta
	c.mu.Unlock()
}

// Set records a gauge value, replacing any previous one.
func (c *Collector) Set(key string, value interface{}) {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	c.gauges[key] = value
	c.mu.Unlock()
}

// AddTokenUsage accumulates LLM token counts. Negative inputs clamp to 0.
func (c *Collector) AddTokenUsage(inputTokens, outputTokens int64) {
	if !c.Enabled() {
		return
	}
	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}
	c.Count("token.input_tokens", float64(inputTokens))
	c.Count("token.output_tokens", float64(outputTokens))
}

// SetError records the failing stage/code/message echoed into the summary.
func (c *Collector) SetError(stage, code, message string) {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	c.errStage = stage
	c.errCode = code
	c.errMessage = message
	c.mu.Unlock()
}

// DroppedEvents returns the number of events dropped past the budget.
func (c *Collector) DroppedEvents() int {
	if !c.Enabled() {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.droppedEvents
}

func (c *Collector) intCounter(key string) int {
	return int(c.counters[key])
}

func (c *Collector) intGaugeOrCounter(key string) int {
	if v, ok := c.gauges[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return c.intCounter(key)
}

// Finish freezes the collector into a TraceResult with the normalized
// summary. Returns nil for a disabled collector.
func (c *Collector) Finish(status string) *models.TraceResult {
	if !c.Enabled() {
		return nil
	}
	durationMS := float64(time.Since(c.start).Microseconds()) / 1000

	c.mu.Lock()
	defer c.mu.Unlock()

	counters := make(map[string]int64, len(c.counters))
	for k, v := range c.counters {
		counters[k] = int64(v)
	}
	gauges := make(map[string]float64)
	for k, v := range c.gauges {
		switch n := v.(type) {
		case int:
			gauges[k] = float64(n)
		case int64:
			gauges[k] = float64(n)
		case float64:
			gauges[k] = n
		}
	}

	scanReason := ""
	if v, ok := c.gauges["vector.scan_unavailable_reason"].(string); ok {
		scanReason = v
	}

	summary := models.TraceSummary{
		TraceID:         c.TraceID,
		Operation:       c.Operation,
		Status:          status,
		TotalDurationMS: durationMS,
		TokenUsage: models.TokenUsage{
			InputTokens:  int64(c.counters["token.input_tokens"]),
			OutputTokens: int64(c.counters["token.output_tokens"]),
		},
		Vector: models.VectorTraceSummary{
			SearchCalls:           c.intCounter("vector.search_calls"),
			CandidatesConsidered:  c.intCounter("vector.candidates_considered"),
			CandidatesReturned:    c.intCounter("vector.candidates_returned"),
			Returned:              c.intGaugeOrCounter("vector.returned"),
			VectorsScanned:        int64(c.intGaugeOrCounter("vector.vectors_scanned")),
			ScanUnavailableReason: scanReason,
		},
		SemanticNodes: models.SemanticNodesTraceSummary{
			Total:      c.intGaugeOrCounter("semantic_nodes.total"),
			Done:       c.intGaugeOrCounter("semantic_nodes.done"),
			Pending:    c.intGaugeOrCounter("semantic_nodes.pending"),
			InProgress: c.intGaugeOrCounter("semantic_nodes.in_progress"),
		},
		Memory: models.MemoryTraceSummary{
			MemoriesExtracted: c.intGaugeOrCounter("memory.memories_extracted"),
		},
		DroppedEvents:   c.droppedEvents,
		EventsTruncated: c.droppedEvents > 0,
		Counters:        counters,
		Gauges:          gauges,
	}
	if c.errStage != "" || c.errCode != "" || c.errMessage != "" {
		summary.Errors = &models.TraceError{
			Stage:   c.errStage,
			Code:    c.errCode,
			Message: c.errMessage,
		}
	}

	events := make([]models.TraceEvent, len(c.events))
	copy(events, c.events)
	if c.Publish != nil {
		c.Publish(summary)
	}
	return &models.TraceResult{Summary: summary, Events: events}
}
