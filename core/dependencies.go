package core

// SelectionInfo identifies the selection state a task was computed against.
type SelectionInfo struct {
	ProviderName   string
	IsSubSelection bool
	Timestamp      uint64
}

// TaskDependencies describes what a task's result depends on. Cancel and completion
// queries match tasks through it, e.g. "everything for connection X".
type TaskDependencies struct {
	ConnectionID  string
	RulesetID     string
	DisplayType   string
	SelectionInfo *SelectionInfo
}

// TaskPredicate selects tasks. Predicates are evaluated under the scheduler lock and
// must not call back into the scheduler.
type TaskPredicate func(Task) bool

// AllTasks matches every task.
func AllTasks() TaskPredicate {
	return func(Task) bool { return true }
}

// And matches tasks matched by every predicate. Nil predicates are ignored.
func And(preds ...TaskPredicate) TaskPredicate {
	return func(t Task) bool {
		for _, p := range preds {
			if p != nil && !p(t) {
				return false
			}
		}
		return true
	}
}

// Or matches tasks matched by any predicate.
func Or(preds ...TaskPredicate) TaskPredicate {
	return func(t Task) bool {
		for _, p := range preds {
			if p != nil && p(t) {
				return true
			}
		}
		return false
	}
}

func Not(pred TaskPredicate) TaskPredicate {
	return func(t Task) bool { return pred == nil || !pred(t) }
}

func ByID(id TaskID) TaskPredicate {
	return func(t Task) bool { return t.ID() == id }
}

func ByConnection(connectionID string) TaskPredicate {
	return func(t Task) bool { return t.Dependencies().ConnectionID == connectionID }
}

func ByRuleset(rulesetID string) TaskPredicate {
	return func(t Task) bool { return t.Dependencies().RulesetID == rulesetID }
}

func ByDisplayType(displayType string) TaskPredicate {
	return func(t Task) bool { return t.Dependencies().DisplayType == displayType }
}

// BySelectionProvider matches tasks depending on a selection from the given provider.
func BySelectionProvider(providerName string) TaskPredicate {
	return func(t Task) bool {
		sel := t.Dependencies().SelectionInfo
		return sel != nil && sel.ProviderName == providerName
	}
}

// WithStaleSelection matches tasks that depend on a selection from the same provider
// and sub-selection level as sel but taken at a different time.
func WithStaleSelection(sel SelectionInfo) TaskPredicate {
	return func(t Task) bool {
		dep := t.Dependencies().SelectionInfo
		return dep != nil &&
			dep.ProviderName == sel.ProviderName &&
			dep.IsSubSelection == sel.IsSubSelection &&
			dep.Timestamp != sel.Timestamp
	}
}

// ByRulesetWithStaleSelection matches tasks of a ruleset computed for an outdated selection.
func ByRulesetWithStaleSelection(rulesetID string, sel SelectionInfo) TaskPredicate {
	return And(ByRuleset(rulesetID), WithStaleSelection(sel))
}

// Cancelable matches tasks carrying a cancellation token.
func Cancelable() TaskPredicate {
	return func(t Task) bool { return t.IsCancelable() }
}

func matches(pred TaskPredicate, t Task) bool {
	return pred == nil || pred(t)
}
