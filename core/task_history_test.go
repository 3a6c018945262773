package core

import (
	"errors"
	"fmt"
	"testing"
)

// TestExecutionHistory_RingBuffer verifies the bounded newest-first history
// Given: A history of capacity 3
// When: Five records are added
// Then: Only the last three are kept, newest first
func TestExecutionHistory_RingBuffer(t *testing.T) {
	// Arrange
	h := newExecutionHistory(3)

	// Act
	for i := range 5 {
		h.Add(TaskExecutionRecord{Name: fmt.Sprintf("task-%d", i)})
	}

	// Assert
	got := h.Recent(0)
	if len(got) != 3 || got[0].Name != "task-4" || got[2].Name != "task-2" {
		t.Fatalf("Recent(0) = %+v", got)
	}
	if limited := h.Recent(1); len(limited) != 1 || limited[0].Name != "task-4" {
		t.Fatalf("Recent(1) = %+v", limited)
	}
	if last, ok := h.Last(); !ok || last.Name != "task-4" {
		t.Fatalf("Last() = (%+v, %v)", last, ok)
	}
}

func TestExecutionHistory_Empty(t *testing.T) {
	h := newExecutionHistory(0)

	if h.Recent(5) != nil {
		t.Fatal("Recent() on empty history != nil")
	}
	if _, ok := h.Last(); ok {
		t.Fatal("Last() ok on empty history")
	}
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeSucceeded},
		{errors.New("x"), OutcomeFailed},
		{ErrTaskCanceled, OutcomeCanceled},
		{fmt.Errorf("wrapped: %w", ErrSchedulerClosed), OutcomeCanceled},
		{&TaskPanicError{Value: "p"}, OutcomePanicked},
	}
	for _, tt := range tests {
		if got := outcomeOf(tt.err); got != tt.want {
			t.Errorf("outcomeOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
