package core

import (
	"fmt"
	"slices"
	"strings"
)

// ThreadAllocation reserves Slots concurrently running tasks for priorities up to Threshold.
type ThreadAllocation struct {
	Threshold TaskPriority
	Slots     int
}

// ThreadAllocationsMap is a list of tiers sorted by ascending threshold. Total thread
// count is the sum of all tier slots.
type ThreadAllocationsMap []ThreadAllocation

// NewThreadAllocationsMap builds a sorted map from threshold → slots.
// Tiers with non-positive slots are dropped.
func NewThreadAllocationsMap(tiers map[TaskPriority]int) ThreadAllocationsMap {
	m := make(ThreadAllocationsMap, 0, len(tiers))
	for threshold, slots := range tiers {
		if slots > 0 {
			m = append(m, ThreadAllocation{Threshold: threshold, Slots: slots})
		}
	}
	m.sort()
	return m
}

// UniformAllocations gives every priority access to n shared slots.
func UniformAllocations(n int) ThreadAllocationsMap {
	if n <= 0 {
		return ThreadAllocationsMap{}
	}
	return ThreadAllocationsMap{{Threshold: TaskPriorityMax, Slots: n}}
}

func (m ThreadAllocationsMap) sort() {
	slices.SortStableFunc(m, func(a, b ThreadAllocation) int {
		switch {
		case a.Threshold < b.Threshold:
			return -1
		case a.Threshold > b.Threshold:
			return 1
		default:
			return 0
		}
	})
}

// Normalize returns a sorted copy with duplicate thresholds merged.
func (m ThreadAllocationsMap) Normalize() ThreadAllocationsMap {
	out := make(ThreadAllocationsMap, 0, len(m))
	for _, a := range m.Clone().sorted() {
		if a.Slots <= 0 {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Threshold == a.Threshold {
			out[n-1].Slots += a.Slots
			continue
		}
		out = append(out, a)
	}
	return out
}

func (m ThreadAllocationsMap) sorted() ThreadAllocationsMap {
	m.sort()
	return m
}

func (m ThreadAllocationsMap) Clone() ThreadAllocationsMap {
	return slices.Clone(m)
}

func (m ThreadAllocationsMap) String() string {
	parts := make([]string, 0, len(m))
	for _, a := range m {
		parts = append(parts, fmt.Sprintf("%d:%d", a.Threshold, a.Slots))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// FindAllocationSlot returns the index of the tier a task of the given priority would
// take a slot from. Tiers are scanned in ascending threshold order; the last tier with
// spare slots wins, and the scan stops at the first tier whose threshold covers the
// priority. A task may therefore spill into a lower tier with spare capacity but never
// into a tier above its own.
func FindAllocationSlot(m ThreadAllocationsMap, priority TaskPriority) (int, bool) {
	match := -1
	for i, a := range m {
		if a.Slots > 0 {
			match = i
		}
		if a.Threshold >= priority {
			break
		}
	}
	return match, match >= 0
}

// SubtractAllocations returns a copy of m with one slot consumed for each priority in use.
// Priorities with no slot available are skipped.
func SubtractAllocations(m ThreadAllocationsMap, priorities []TaskPriority) ThreadAllocationsMap {
	out := m.Clone()
	for _, p := range priorities {
		if i, ok := FindAllocationSlot(out, p); ok {
			out[i].Slots--
		}
	}
	return out
}

// ComputeThreadsCount sums the slots of every tier.
func ComputeThreadsCount(m ThreadAllocationsMap) int {
	total := 0
	for _, a := range m {
		total += a.Slots
	}
	return total
}
