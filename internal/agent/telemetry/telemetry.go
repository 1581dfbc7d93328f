package telemetry

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohammad-safakhou/concierge/config"
)

// Telemetry provides monitoring for routing cycles, tool calls and LLM use.
type Telemetry struct {
	config  config.TelemetryConfig
	logger  *log.Logger
	metrics *Metrics
	mu      sync.RWMutex
}

// Metrics holds various performance metrics
type Metrics struct {
	// Cycle metrics
	TotalCycles      int64
	SuccessfulCycles int64
	FailedCycles     int64
	AverageCycleTime time.Duration

	// Tool metrics
	ToolInvocations map[string]int64
	ToolFailures    map[string]int64
	ToolAverageTime map[string]time.Duration

	// Plan metrics
	PlansProduced  int64
	FallbackPlans  int64
	AveragePlanLen float64
}

// CycleEvent represents one complete user-message cycle
type CycleEvent struct {
	ID        string
	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string
	Intent    string
	ToolsUsed []string
}

// PlanEvent represents one planner run
type PlanEvent struct {
	Tools    []string
	Fallback bool
	Duration time.Duration
}

// ToolEvent represents one tool adapter invocation
type ToolEvent struct {
	Tool     string
	Duration time.Duration
	Failed   bool
}

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concierge_cycles_total",
		Help: "Completed message cycles by outcome.",
	}, []string{"outcome", "intent"})
	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "concierge_cycle_duration_seconds",
		Help:    "End-to-end duration of a message cycle.",
		Buckets: prometheus.DefBuckets,
	})
	toolInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concierge_tool_invocations_total",
		Help: "Tool adapter invocations by tool and outcome.",
	}, []string{"tool", "outcome"})
	planFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "concierge_plan_fallbacks_total",
		Help: "Plans that degraded to the default [qa_agent] plan.",
	})
)

// NewTelemetry creates a new telemetry instance
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			ToolInvocations: make(map[string]int64),
			ToolFailures:    make(map[string]int64),
			ToolAverageTime: make(map[string]time.Duration),
		},
	}
	if cfg.LogFile != "" {
		if f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
			t.logger = log.New(f, "[TELEMETRY] ", log.LstdFlags)
		}
	}
	return t
}

// RecordCycleEvent records one completed (or failed) message cycle.
func (t *Telemetry) RecordCycleEvent(_ context.Context, event CycleEvent) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.metrics.TotalCycles++
	if event.Success {
		t.metrics.SuccessfulCycles++
	} else {
		t.metrics.FailedCycles++
	}
	// running average
	n := t.metrics.TotalCycles
	t.metrics.AverageCycleTime += (event.Duration - t.metrics.AverageCycleTime) / time.Duration(n)
	t.mu.Unlock()

	outcome := "success"
	if !event.Success {
		outcome = "failure"
	}
	intent := event.Intent
	if intent == "" {
		intent = "unknown"
	}
	cyclesTotal.WithLabelValues(outcome, intent).Inc()
	cycleDuration.Observe(event.Duration.Seconds())

	if t.config.Enabled && t.config.PeriodicLogs {
		t.logger.Printf("cycle %s outcome=%s intent=%s tools=%v duration=%v", event.ID, outcome, intent, event.ToolsUsed, event.Duration)
	}
}

// RecordPlanEvent records one planner run.
func (t *Telemetry) RecordPlanEvent(_ context.Context, event PlanEvent) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.metrics.PlansProduced++
	n := float64(t.metrics.PlansProduced)
	t.metrics.AveragePlanLen += (float64(len(event.Tools)) - t.metrics.AveragePlanLen) / n
	if event.Fallback {
		t.metrics.FallbackPlans++
	}
	t.mu.Unlock()

	if event.Fallback {
		planFallbacks.Inc()
	}
}

// RecordToolEvent records one tool adapter invocation.
func (t *Telemetry) RecordToolEvent(_ context.Context, event ToolEvent) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.metrics.ToolInvocations[event.Tool]++
	if event.Failed {
		t.metrics.ToolFailures[event.Tool]++
	}
	n := t.metrics.ToolInvocations[event.Tool]
	prev := t.metrics.ToolAverageTime[event.Tool]
	t.metrics.ToolAverageTime[event.Tool] = prev + (event.Duration-prev)/time.Duration(n)
	t.mu.Unlock()

	outcome := "success"
	if event.Failed {
		outcome = "failure"
	}
	toolInvocations.WithLabelValues(event.Tool, outcome).Inc()
}

// GetMetrics returns a snapshot of the in-process metrics.
func (t *Telemetry) GetMetrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snapshot := Metrics{
		TotalCycles:      t.metrics.TotalCycles,
		SuccessfulCycles: t.metrics.SuccessfulCycles,
		FailedCycles:     t.metrics.FailedCycles,
		AverageCycleTime: t.metrics.AverageCycleTime,
		PlansProduced:    t.metrics.PlansProduced,
		FallbackPlans:    t.metrics.FallbackPlans,
		AveragePlanLen:   t.metrics.AveragePlanLen,
		ToolInvocations:  make(map[string]int64, len(t.metrics.ToolInvocations)),
		ToolFailures:     make(map[string]int64, len(t.metrics.ToolFailures)),
		ToolAverageTime:  make(map[string]time.Duration, len(t.metrics.ToolAverageTime)),
	}
	for k, v := range t.metrics.ToolInvocations {
		snapshot.ToolInvocations[k] = v
	}
	for k, v := range t.metrics.ToolFailures {
		snapshot.ToolFailures[k] = v
	}
	for k, v := range t.metrics.ToolAverageTime {
		snapshot.ToolAverageTime[k] = v
	}
	return snapshot
}
