package example

type EventType string

const (
	EventTurnStart  EventType = "turn-start"
	EventTextDelta  EventType = "text-delta"
	EventTurnFinish EventType = "turn-finish"
)

type ToolState string

const (
	StateInputAvailable  ToolState = "input-available"
	StateOutputAvailable ToolState = "output-available"
)

type PartType string

const (
	PartText PartType = "text"
)

type Event struct {
	Type EventType
}

type Part struct {
	Type  PartType
	State ToolState
	Text  string
}

func bad() {
	ev := &Event{}
	ev.Type = "turn-start" // want "enum field Type assigned string literal"

	p := &Part{}
	p.State = "output-available" // want "enum field State assigned string literal"

	_ = Part{Type: "text", Text: "hi"} // want "enum field Type assigned string literal"
}

func good() {
	ev := &Event{}
	ev.Type = EventTurnStart // OK: using constant

	p := &Part{}
	p.State = StateOutputAvailable // OK: using constant
	p.Text = "plain strings are fine"

	_ = Part{Type: PartText, Text: "hi"}
}

func alsoGood() {
	// OK: Variable, not literal
	state := StateInputAvailable
	p := &Part{State: state}
	_ = p
}
