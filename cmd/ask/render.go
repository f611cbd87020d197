package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/kenzic/unhinged-side-quest-research-agent/internal/model"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/stream"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/transcript"
)

var (
	activityStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	headingStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type renderer struct {
	w     io.Writer
	plain bool
	md    *glamour.TermRenderer
}

func newRenderer(w io.Writer, plain bool) *renderer {
	r := &renderer{w: w, plain: plain}
	if !plain {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err == nil {
			r.md = md
		}
	}
	return r
}

func (r *renderer) style(s lipgloss.Style, text string) string {
	if r.plain {
		return text
	}
	return s.Render(text)
}

func (r *renderer) activity(label string) {
	fmt.Fprintln(r.w, r.style(activityStyle, "… "+label))
}

func (r *renderer) markdown(text string) {
	if r.md != nil {
		if out, err := r.md.Render(text); err == nil {
			fmt.Fprint(r.w, out)
			return
		}
	}
	fmt.Fprintln(r.w, text)
}

// turn prints the answer followed by its sources and side-quest counters.
func (r *renderer) turn(snap transcript.Snapshot, outcome model.TurnOutcome) {
	text := snap.Message.Text()
	if strings.TrimSpace(text) != "" {
		r.markdown(text)
	}

	switch outcome.Status {
	case model.TurnAborted:
		fmt.Fprintln(r.w, r.style(errorStyle, "aborted"))
	case model.TurnError:
		fmt.Fprintln(r.w, r.style(errorStyle, snap.Error))
	}

	if sources := transcript.Sources(snap.Message); len(sources) > 0 {
		fmt.Fprintln(r.w, r.style(headingStyle, fmt.Sprintf("Sources (%d)", len(sources))))
		for i, s := range sources {
			title := s.Title
			if title == "" {
				title = s.URL
			}
			fmt.Fprintf(r.w, "  %d. %s %s\n", i+1, title, r.style(dimStyle, s.URL))
		}
	}

	counters := transcript.MergeCounters(snap.Counters, transcript.ScanText(text))
	fmt.Fprintln(r.w, r.style(dimStyle, fmt.Sprintf("🌀 %d tangents · 🔍 %d searches · %d steps",
		counters.Tangents, len(counters.Searches), snap.Steps)))
}

// progress is a stream sink that prints the activity label whenever it changes.
type progress struct {
	reducer *transcript.Reducer
	out     *renderer
	last    string
}

func newProgress(out *renderer) *progress {
	return &progress{reducer: transcript.NewReducer(), out: out}
}

func (p *progress) Write(_ context.Context, ev stream.Event) error {
	if !p.reducer.Apply(ev) {
		return nil
	}
	label := transcript.ActivityLabel([]transcript.Message{p.reducer.Message()})
	if label != "" && label != p.last {
		p.out.activity(label)
	}
	p.last = label
	return nil
}
