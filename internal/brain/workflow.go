package brain

import (
	"fmt"
	"strings"
)

// WorkflowState is the research checkpoint a chat turn has reached.
type WorkflowState string

const (
	WorkflowResearching WorkflowState = "researching"
	WorkflowFactChecked WorkflowState = "fact_checked"
	WorkflowSummarized  WorkflowState = "summarized"
)

// Workflow tracks the fact-check and summarize checkpoints of one turn.
// When enforced, summarize is refused until a fact-check succeeded, and a
// final answer given before summarizing is sent back to the model.
// Unenforced, it only records what happened.
type Workflow struct {
	enforced bool
	state    WorkflowState
}

func NewWorkflow(enforced bool) *Workflow {
	return &Workflow{enforced: enforced, state: WorkflowResearching}
}

func (w *Workflow) State() WorkflowState {
	return w.state
}

func (w *Workflow) Enforced() bool {
	return w.enforced
}

// Complete reports whether the turn reached summarized.
func (w *Workflow) Complete() bool {
	return w.state == WorkflowSummarized
}

// Allow checks whether tool may run in the current state.
func (w *Workflow) Allow(tool string) error {
	if !w.enforced {
		return nil
	}
	if tool == toolSummarize && w.state == WorkflowResearching {
		return fmt.Errorf("call %s before %s", toolFactCheck, toolSummarize)
	}
	return nil
}

// Record advances the state after tool succeeded.
func (w *Workflow) Record(tool string) {
	switch tool {
	case toolFactCheck:
		if w.state == WorkflowResearching {
			w.state = WorkflowFactChecked
		}
	case toolSummarize:
		if w.state == WorkflowFactChecked || !w.enforced {
			w.state = WorkflowSummarized
		}
	}
}

// Missing names the checkpoints still outstanding.
func (w *Workflow) Missing() []string {
	switch w.state {
	case WorkflowResearching:
		return []string{toolFactCheck, toolSummarize}
	case WorkflowFactChecked:
		return []string{toolSummarize}
	default:
		return nil
	}
}

// Nudge is the corrective message sent when the model stops early.
func (w *Workflow) Nudge() string {
	return fmt.Sprintf(workflowNudge, "call "+strings.Join(w.Missing(), ", then "))
}
