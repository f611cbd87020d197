package transcript

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Source is a distinct citation within a message.
type Source struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Sources lists the distinct citations of m in first-seen order. Both
// source-url parts and search results inside tool outputs count; the first
// title seen for a URL wins.
func Sources(m Message) []Source {
	var out []Source
	seen := make(map[string]bool)
	add := func(url, title string) {
		url = strings.TrimSpace(url)
		if url == "" || seen[url] {
			return
		}
		seen[url] = true
		out = append(out, Source{URL: url, Title: title})
	}

	for _, p := range m.Parts {
		switch p.Type {
		case PartSourceURL:
			add(p.URL, p.Title)
		case PartToolCall:
			if p.State != StateOutputAvailable {
				continue
			}
			for _, s := range sourcesInOutput(p.Output) {
				add(s.URL, s.Title)
			}
		}
	}
	return out
}

// sourcesInOutput reads a search tool output. Anything that is not a JSON
// list of {url, title} objects yields nothing.
func sourcesInOutput(output string) []Source {
	trimmed := strings.TrimSpace(output)
	if !strings.HasPrefix(trimmed, "[") {
		return nil
	}
	var results []Source
	if err := json.Unmarshal([]byte(trimmed), &results); err != nil {
		return nil
	}
	return results
}

var activityLabels = map[string]string{
	"webSearch":        "Searching web",
	"factCheck":        "Fact-checking",
	"summarize":        "Summarizing findings",
	"tangentDiscovery": "Chasing a tangent",
}

// ActivityLabel describes what the latest tool call still in flight in the
// most recent message is doing. Unknown tool names pass through unchanged.
// It returns "" when nothing is running.
func ActivityLabel(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}
	parts := messages[len(messages)-1].Parts
	for i := len(parts) - 1; i >= 0; i-- {
		p := parts[i]
		if p.Type != PartToolCall || !p.State.InFlight() {
			continue
		}
		if label, ok := activityLabels[p.ToolName]; ok {
			return label
		}
		return p.ToolName
	}
	return ""
}

var (
	headerRe      = regexp.MustCompile(`^#{1,6}\s+(.*)$`)
	listItemRe    = regexp.MustCompile(`^\s{0,3}(?:[-*+]|\d+[.)])\s+(.*)$`)
	subheaderRe   = regexp.MustCompile(`^#{3,6}\s+`)
	distractionRe = regexp.MustCompile(`(?i)\b(side[- ]quest|got distracted|rabbit hole|tangent alert)\b`)
	emphasisRe    = regexp.MustCompile(`[*_` + "`" + `"“”]+`)
)

// TextHeuristics are counters guessed from the markdown of a finished answer.
// They are lossy and only meant for display when typed events are missing.
type TextHeuristics struct {
	Searches []SearchEntry
	Tangents int
}

// ScanText looks for the "Searches I ran" and "Random Tangents" sections.
func ScanText(text string) TextHeuristics {
	var h TextHeuristics
	sections := splitSections(text)

	seen := make(map[string]bool)
	for _, sec := range sections {
		lower, lines := strings.ToLower(sec.title), sec.lines
		switch {
		case strings.Contains(lower, "searches i ran"):
			for _, line := range lines {
				m := listItemRe.FindStringSubmatch(line)
				if m == nil {
					continue
				}
				entry := parseSearchEntry(m[1])
				key := normalizeQuery(entry.Query)
				if key == "" || seen[key] {
					continue
				}
				seen[key] = true
				h.Searches = append(h.Searches, entry)
			}
		case strings.Contains(lower, "random tangents"):
			h.Tangents += countTangents(lines)
		}
	}

	if h.Tangents == 0 {
		h.Tangents = len(distractionRe.FindAllString(text, -1))
	}
	return h
}

type section struct {
	title string
	lines []string
}

// splitSections returns the top-level sections of text in document order.
func splitSections(text string) []section {
	var sections []section
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if m := headerRe.FindStringSubmatch(trimmed); m != nil && !subheaderRe.MatchString(trimmed) {
			sections = append(sections, section{title: m[1]})
			continue
		}
		if n := len(sections); n > 0 {
			sections[n-1].lines = append(sections[n-1].lines, line)
		}
	}
	return sections
}

// countTangents counts ### entries, falling back to top-level list items,
// with a floor of one when the section has any content.
func countTangents(lines []string) int {
	subheaders, items, content := 0, 0, false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		content = true
		switch {
		case subheaderRe.MatchString(trimmed):
			subheaders++
		case listItemRe.MatchString(line) && !strings.HasPrefix(line, "  "):
			items++
		}
	}
	switch {
	case subheaders > 0:
		return subheaders
	case items > 0:
		return items
	case content:
		return 1
	default:
		return 0
	}
}

// parseSearchEntry splits "query — reason" style lines.
func parseSearchEntry(item string) SearchEntry {
	for _, sep := range []string{" — ", " – ", " - ", ": "} {
		if query, reason, ok := strings.Cut(item, sep); ok {
			return SearchEntry{Query: cleanQuery(query), Reason: strings.TrimSpace(reason)}
		}
	}
	return SearchEntry{Query: cleanQuery(item)}
}

func cleanQuery(q string) string {
	return strings.TrimSpace(emphasisRe.ReplaceAllString(q, ""))
}

// MergeCounters prefers the typed counters and fills gaps from the text.
func MergeCounters(typed Counters, text TextHeuristics) Counters {
	out := Counters{Tangents: typed.Tangents, Searches: typed.Searches}
	if out.Tangents == 0 {
		out.Tangents = text.Tangents
	}
	if len(out.Searches) == 0 {
		out.Searches = text.Searches
	}
	return out
}
