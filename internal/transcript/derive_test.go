package transcript_test

import (
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/transcript"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Sources", func() {
	It("keeps one entry per URL with the first title seen", func() {
		msg := transcript.Message{Parts: []transcript.Part{
			{Type: transcript.PartToolCall, ToolName: "webSearch", State: transcript.StateOutputAvailable,
				Output: `[{"url":"https://example.com/beirut","title":"Beirut overview"}]`},
			{Type: transcript.PartToolCall, ToolName: "webSearch", State: transcript.StateOutputAvailable,
				Output: `[{"url":"https://example.com/beirut","title":"Different title"},{"url":"https://example.com/lebanon","title":"Lebanon"}]`},
			{Type: transcript.PartSourceURL, URL: "https://example.com/lebanon", Title: "Later"},
		}}

		Expect(transcript.Sources(msg)).To(Equal([]transcript.Source{
			{URL: "https://example.com/beirut", Title: "Beirut overview"},
			{URL: "https://example.com/lebanon", Title: "Lebanon"},
		}))
	})

	It("ignores unfinished calls and non-JSON outputs", func() {
		msg := transcript.Message{Parts: []transcript.Part{
			{Type: transcript.PartToolCall, State: transcript.StateOutputError, Output: `[{"url":"https://a"}]`},
			{Type: transcript.PartToolCall, State: transcript.StateOutputAvailable, Output: "### ✅ Verified Claims"},
		}}
		Expect(transcript.Sources(msg)).To(BeEmpty())
	})
})

var _ = Describe("ActivityLabel", func() {
	inFlight := func(name string) transcript.Part {
		return transcript.Part{Type: transcript.PartToolCall, ToolName: name, State: transcript.StateInputAvailable}
	}

	DescribeTable("maps tool names",
		func(tool, label string) {
			msgs := []transcript.Message{{Parts: []transcript.Part{inFlight(tool)}}}
			Expect(transcript.ActivityLabel(msgs)).To(Equal(label))
		},
		Entry("web search", "webSearch", "Searching web"),
		Entry("fact check", "factCheck", "Fact-checking"),
		Entry("summarize", "summarize", "Summarizing findings"),
		Entry("tangent", "tangentDiscovery", "Chasing a tangent"),
		Entry("unknown passes through", "lookupWeather", "lookupWeather"),
	)

	It("only looks at the most recent message", func() {
		msgs := []transcript.Message{
			{Parts: []transcript.Part{inFlight("webSearch")}},
			{Parts: []transcript.Part{transcript.TextPart("done")}},
		}
		Expect(transcript.ActivityLabel(msgs)).To(BeEmpty())
	})

	It("uses the latest in-flight call", func() {
		done := transcript.Part{Type: transcript.PartToolCall, ToolName: "summarize", State: transcript.StateOutputAvailable}
		msgs := []transcript.Message{{Parts: []transcript.Part{inFlight("webSearch"), inFlight("factCheck"), done}}}
		Expect(transcript.ActivityLabel(msgs)).To(Equal("Fact-checking"))
	})
})

var _ = Describe("ScanText", func() {
	It("reads the search log and tangent sections", func() {
		text := `## Answer
Beirut is the capital of Lebanon.

## 🌀 Random Tangents
### The Phoenicians
They invented an alphabet.
### Cedars
The cedar is on the flag.

## 🔍 Searches I ran
- **capital of Lebanon** — initial lookup
- Phoenician alphabet: tangent
- capital of lebanon — duplicate
`
		h := transcript.ScanText(text)
		Expect(h.Tangents).To(Equal(2))
		Expect(h.Searches).To(Equal([]transcript.SearchEntry{
			{Query: "capital of Lebanon", Reason: "initial lookup"},
			{Query: "Phoenician alphabet", Reason: "tangent"},
		}))
	})

	It("keeps search entries in document order across repeated sections", func() {
		text := "## 🔍 Searches I ran\n- capital of Lebanon — first\n\n## Answer\nBeirut.\n\n## Searches I ran (continued)\n- Phoenician alphabet — second\n- cedar flag — third\n"
		for range 20 {
			h := transcript.ScanText(text)
			Expect(h.Searches).To(Equal([]transcript.SearchEntry{
				{Query: "capital of Lebanon", Reason: "first"},
				{Query: "Phoenician alphabet", Reason: "second"},
				{Query: "cedar flag", Reason: "third"},
			}))
		}
	})

	It("falls back to distraction phrasing", func() {
		h := transcript.ScanText("Quick side quest: I got distracted by cedars.")
		Expect(h.Tangents).To(Equal(2))
		Expect(h.Searches).To(BeEmpty())
	})

	It("prefers typed counters when merging", func() {
		typed := transcript.Counters{Tangents: 1}
		merged := transcript.MergeCounters(typed, transcript.TextHeuristics{
			Tangents: 4,
			Searches: []transcript.SearchEntry{{Query: "q"}},
		})
		Expect(merged.Tangents).To(Equal(1))
		Expect(merged.Searches).To(HaveLen(1))
	})
})
