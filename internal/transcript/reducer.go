package transcript

import (
	"context"
	"strings"
	"sync"

	"github.com/kenzic/unhinged-side-quest-research-agent/internal/stream"
)

// SearchEntry is one line of the search log.
type SearchEntry struct {
	Query  string `json:"query"`
	Reason string `json:"reason,omitempty"`
}

// Counters are the side-quest tallies shown next to a message.
type Counters struct {
	Tangents int           `json:"tangents"`
	Searches []SearchEntry `json:"searches"`
}

// Snapshot is the reducer state at a point in the event log.
type Snapshot struct {
	Message  Message           `json:"message"`
	Status   stream.TurnStatus `json:"status"`
	Steps    int               `json:"steps"`
	Counters Counters          `json:"counters"`
	Reason   string            `json:"reason,omitempty"`
	Error    string            `json:"error,omitempty"`
	LastSeq  int64             `json:"last_seq"`
	Rejected int               `json:"rejected"`
}

// Reducer rebuilds the assistant message of one turn from its events. Each
// event is applied at most once, keyed by Seq, so replaying a log that
// overlaps what was already seen yields the same result.
type Reducer struct {
	mu sync.Mutex

	message  Message
	status   stream.TurnStatus
	steps    int
	counters Counters
	reason   string
	errText  string
	lastSeq  int64
	rejected int

	// stepEnded starts a new text part on the next delta.
	stepEnded bool

	toolIndex map[string]int
	searched  map[string]bool
}

func NewReducer() *Reducer {
	return &Reducer{
		message:   Message{Role: RoleAssistant},
		status:    stream.TurnIdle,
		toolIndex: make(map[string]int),
		searched:  make(map[string]bool),
	}
}

// Write lets a Reducer consume an emitter directly.
func (r *Reducer) Write(_ context.Context, ev stream.Event) error {
	r.Apply(ev)
	return nil
}

// Apply folds ev into the message. It reports false for events that were
// already applied or that would move a tool call backwards.
func (r *Reducer) Apply(ev stream.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.Seq <= r.lastSeq {
		return false
	}
	r.lastSeq = ev.Seq

	applied := r.apply(ev)
	if !applied {
		r.rejected++
	}
	return applied
}

func (r *Reducer) apply(ev stream.Event) bool {
	if r.status.Terminal() {
		return false
	}

	switch ev.Type {
	case stream.EventTurnStart:
		r.message.ID = ev.MessageID
		r.status = stream.TurnStreaming

	case stream.EventTextDelta:
		if n := len(r.message.Parts); n > 0 && r.message.Parts[n-1].Type == PartText && !r.stepEnded {
			r.message.Parts[n-1].Text += ev.Delta
		} else {
			r.message.Parts = append(r.message.Parts, TextPart(ev.Delta))
		}
		r.stepEnded = false

	case stream.EventToolCallStart:
		if _, ok := r.toolIndex[ev.ToolCallID]; ok {
			return false
		}
		r.toolIndex[ev.ToolCallID] = len(r.message.Parts)
		r.message.Parts = append(r.message.Parts, Part{
			Type:       PartToolCall,
			ToolCallID: ev.ToolCallID,
			ToolName:   ev.ToolName,
			State:      StateInputStreaming,
		})

	case stream.EventToolCallArgs:
		return r.advance(ev, StateInputAvailable, func(p *Part) { p.Input = ev.Input })

	case stream.EventToolCallResult:
		return r.advance(ev, StateOutputAvailable, func(p *Part) { p.Output = ev.Output })

	case stream.EventToolCallError:
		return r.advance(ev, StateOutputError, func(p *Part) { p.ErrorText = ev.ErrorText })

	case stream.EventSourceURL:
		r.message.Parts = append(r.message.Parts, Part{Type: PartSourceURL, URL: ev.URL, Title: ev.Title})

	case stream.EventTangentDetected:
		if ev.Count > r.counters.Tangents {
			r.counters.Tangents = ev.Count
		}

	case stream.EventSearchLogged:
		key := normalizeQuery(ev.Query)
		if key == "" || r.searched[key] {
			return true
		}
		r.searched[key] = true
		r.counters.Searches = append(r.counters.Searches, SearchEntry{Query: ev.Query, Reason: ev.Reason})

	case stream.EventStepFinish:
		r.steps = ev.Step
		r.stepEnded = true

	case stream.EventTurnFinish:
		r.status = stream.TurnReady
		if ev.Step > 0 {
			r.steps = ev.Step
		}

	case stream.EventTurnError:
		r.status = stream.TurnError
		r.reason = ev.Reason
		r.errText = ev.Message

	default:
		return false
	}
	return true
}

// advance moves a tool-call part forward. A part first seen mid-lifecycle
// (a replay that starts late) is created in place.
func (r *Reducer) advance(ev stream.Event, to ToolState, set func(p *Part)) bool {
	idx, ok := r.toolIndex[ev.ToolCallID]
	if !ok {
		idx = len(r.message.Parts)
		r.toolIndex[ev.ToolCallID] = idx
		r.message.Parts = append(r.message.Parts, Part{
			Type:       PartToolCall,
			ToolCallID: ev.ToolCallID,
			ToolName:   ev.ToolName,
		})
	}

	part := &r.message.Parts[idx]
	if !CanAdvance(part.State, to) {
		return false
	}
	part.State = to
	if part.ToolName == "" {
		part.ToolName = ev.ToolName
	}
	set(part)
	return true
}

// Message returns a copy of the message built so far.
func (r *Reducer) Message() Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.message.clone()
}

// Snapshot returns a copy of the full reducer state.
func (r *Reducer) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	searches := make([]SearchEntry, len(r.counters.Searches))
	copy(searches, r.counters.Searches)

	return Snapshot{
		Message:  r.message.clone(),
		Status:   r.status,
		Steps:    r.steps,
		Counters: Counters{Tangents: r.counters.Tangents, Searches: searches},
		Reason:   r.reason,
		Error:    r.errText,
		LastSeq:  r.lastSeq,
		Rejected: r.rejected,
	}
}

// Replay reduces a complete event log into a fresh snapshot.
func Replay(events []stream.Event) Snapshot {
	r := NewReducer()
	for _, ev := range events {
		r.Apply(ev)
	}
	return r.Snapshot()
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}
