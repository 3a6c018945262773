package core

import "testing"

func TestCancelationResult_MergeAndCompletion(t *testing.T) {
	a := newNamedTask("a", TaskPriorityUserVisible, true)
	b := newNamedTask("b", TaskPriorityUserVisible, false)

	merged := newCancelationResult([]Task{a}).Merge(nil, newCancelationResult([]Task{b}))

	if !equalNames(taskNames(merged.Tasks()), "a", "b") {
		t.Fatalf("Merge() = %v", taskNames(merged.Tasks()))
	}
	done := merged.Completion()
	a.Complete()
	if done.IsReady() {
		t.Fatal("completion resolved before every matched task")
	}
	b.Complete()
	if err := merged.Wait(testContext(t)); err != nil {
		t.Fatalf("Wait() = %v", err)
	}
}

func TestCancelationResult_Nil(t *testing.T) {
	var r *CancelationResult
	if r.Len() != 0 || r.Tasks() != nil || !r.Completion().IsReady() {
		t.Fatal("nil CancelationResult not empty and resolved")
	}
}
