package core

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Test PanicHandler
// =============================================================================

// TestPanicHandler is a mock panic handler for testing
type TestPanicHandler struct {
	mu    sync.Mutex
	calls []PanicCall
}

type PanicCall struct {
	SchedulerName string
	TaskName      string
	PanicInfo     any
}

func NewTestPanicHandler() *TestPanicHandler {
	return &TestPanicHandler{}
}

func (h *TestPanicHandler) HandlePanic(schedulerName string, task Task, panicInfo any, stackTrace []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, PanicCall{
		SchedulerName: schedulerName,
		TaskName:      task.Name(),
		PanicInfo:     panicInfo,
	})
}

func (h *TestPanicHandler) GetCalls() []PanicCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]PanicCall(nil), h.calls...)
}

// =============================================================================
// Test Metrics
// =============================================================================

// TestMetrics records every call for assertions
type TestMetrics struct {
	mu        sync.Mutex
	durations []time.Duration
	panics    int
	canceled  map[string]int
	depths    []int
	rejected  []string
}

var _ Metrics = (*TestMetrics)(nil)

func NewTestMetrics() *TestMetrics {
	return &TestMetrics{canceled: make(map[string]int)}
}

func (m *TestMetrics) RecordTaskDuration(schedulerName string, priority TaskPriority, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations = append(m.durations, duration)
}

func (m *TestMetrics) RecordTaskPanic(schedulerName string, panicInfo any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics++
}

func (m *TestMetrics) RecordTaskCanceled(schedulerName string, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canceled[state]++
}

func (m *TestMetrics) RecordQueueDepth(schedulerName string, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depths = append(m.depths, depth)
}

func (m *TestMetrics) RecordTaskRejected(schedulerName string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected = append(m.rejected, reason)
}

func (m *TestMetrics) Canceled(state string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canceled[state]
}

func (m *TestMetrics) Panics() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.panics
}

func (m *TestMetrics) Rejected() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.rejected...)
}

func (m *TestMetrics) DurationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.durations)
}

// TestDefaultPanicHandler_LogsThroughLogger verifies panics are reported at error level
// Given: A DefaultPanicHandler writing to a buffer-backed logger
// When: HandlePanic is called
// Then: The log line names the scheduler, task and panic value
func TestDefaultPanicHandler_LogsThroughLogger(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	handler := &DefaultPanicHandler{Logger: NewConsoleLogger(&buf, "debug")}
	task := newNamedTask("exploding", TaskPriorityUserVisible, true)

	// Act
	handler.HandlePanic("sched-a", task, "test panic", []byte("stack trace"))

	// Assert
	out := buf.String()
	for _, want := range []string{"task panicked", "sched-a", "exploding", "test panic"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output %q missing %q", out, want)
		}
	}
}

func TestNilMetrics_DoesNotPanic(t *testing.T) {
	m := &NilMetrics{}
	m.RecordTaskDuration("s", TaskPriorityUserVisible, time.Second)
	m.RecordTaskPanic("s", "p")
	m.RecordTaskCanceled("s", CanceledWhileQueued)
	m.RecordQueueDepth("s", 3)
	m.RecordTaskRejected("s", "shutdown")
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "debug",
		" WARN ":  "warn",
		"error":   "error",
		"":        "info",
		"verbose": "info",
	}
	for in, want := range tests {
		if got := ParseLogLevel(in).String(); got != want {
			t.Errorf("ParseLogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

// TestConsoleLogger_FiltersBelowLevel verifies level filtering and field rendering
func TestConsoleLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLogger(&buf, "warn")

	logger.Info("hidden")
	logger.Warn("shown", F("priority", TaskPriorityUserBlocking), F("threads", 3))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line logged at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "2000") {
		t.Fatalf("warn line missing content: %q", out)
	}
}
