package brain

import (
	"regexp"
	"strings"
)

// Findings is a fact-check report split by category.
type Findings struct {
	Verified     []string
	Uncertain    []string
	Contradicted []string

	// HasVerifiedSection is false when the input did not follow the
	// three-section format at all.
	HasVerifiedSection bool
}

var (
	findingsHeaderRe = regexp.MustCompile(`^#{1,6}\s+(.*)$`)
	findingsItemRe   = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+(.*)$`)
	// Placeholder items are the whole item, e.g. "None." or "_No claims found_".
	noneItemRe       = regexp.MustCompile(`(?i)^[*_(\s]*(none|n/a|no (verified |uncertain |contradicted )?claims?)( (found|identified|verified|could be verified))?[.!)*_\s]*$`)
)

type findingsSection int

const (
	sectionOther findingsSection = iota
	sectionVerified
	sectionUncertain
	sectionContradicted
)

func classifyHeader(title string) findingsSection {
	lower := strings.ToLower(title)
	switch {
	case strings.Contains(lower, "unverified"), strings.Contains(lower, "uncertain"):
		return sectionUncertain
	case strings.Contains(lower, "verified"):
		return sectionVerified
	case strings.Contains(lower, "contradicted"):
		return sectionContradicted
	default:
		return sectionOther
	}
}

// ParseFindings reads the Verified / Uncertain / Contradicted sections of a
// fact-check report. Placeholder items such as "None" are dropped.
func ParseFindings(markdown string) Findings {
	var (
		f       Findings
		current = sectionOther
	)

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if m := findingsHeaderRe.FindStringSubmatch(trimmed); m != nil {
			current = classifyHeader(m[1])
			if current == sectionVerified {
				f.HasVerifiedSection = true
			}
			continue
		}

		m := findingsItemRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		item := strings.TrimSpace(m[1])
		if item == "" || noneItemRe.MatchString(item) {
			continue
		}

		switch current {
		case sectionVerified:
			f.Verified = append(f.Verified, item)
		case sectionUncertain:
			f.Uncertain = append(f.Uncertain, item)
		case sectionContradicted:
			f.Contradicted = append(f.Contradicted, item)
		}
	}
	return f
}

// NoneVerified reports a structured report with an empty Verified section.
func (f Findings) NoneVerified() bool {
	return f.HasVerifiedSection && len(f.Verified) == 0
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "- None"
	}
	return "- " + strings.Join(items, "\n- ")
}
