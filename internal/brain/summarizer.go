package brain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kenzic/unhinged-side-quest-research-agent/common/llm"
	"github.com/kenzic/unhinged-side-quest-research-agent/common/logger"
)

// Summarizer writes the final answer from verified claims only.
type Summarizer struct {
	llm llm.AgentClient
	cfg SubAgentConfig
}

func NewSummarizer(client llm.AgentClient, cfg SubAgentConfig) *Summarizer {
	return &Summarizer{llm: client, cfg: cfg}
}

// SummarizeArgs are the arguments of the summarize tool.
type SummarizeArgs struct {
	FactCheckedFindings string `json:"factCheckedFindings" jsonschema:"required,description=The complete output of factCheck" validate:"required,notblank"`
	OriginalQuestion    string `json:"originalQuestion,omitempty" jsonschema:"description=The user's original question"`
}

// Summarize returns a single "## Final Answer" section. A report whose
// Verified section is empty gets a fixed limitation statement and the model
// is not called.
func (s *Summarizer) Summarize(ctx context.Context, args SummarizeArgs) (string, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "sidequest.brain.summarizer"})

	findings := ParseFindings(args.FactCheckedFindings)
	if findings.NoneVerified() {
		slog.InfoContext(ctx, "no verified claims, returning limitation answer",
			"uncertain", len(findings.Uncertain),
			"contradicted", len(findings.Contradicted))
		return noVerifiedClaimsAnswer, nil
	}

	l := &loop{
		agent:     agentSummarize,
		client:    s.llm,
		maxSteps:  s.cfg.steps(),
		maxTokens: s.cfg.MaxTokens,
	}
	res, err := l.run(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: summarizeSystemPrompt},
		{Role: llm.RoleUser, Content: summarizeInput(args, findings)},
	})
	if err != nil {
		return "", err
	}
	if res.Text == "" {
		return "", errors.New("summarizer returned no answer")
	}

	slog.InfoContext(ctx, "summary completed", "steps", res.Steps, "verified", len(findings.Verified))
	return res.Text, nil
}

// summarizeInput passes structured findings with the excluded categories
// labelled, or the raw text when it did not parse.
func summarizeInput(args SummarizeArgs, f Findings) string {
	var b strings.Builder
	if q := strings.TrimSpace(args.OriginalQuestion); q != "" {
		fmt.Fprintf(&b, "Original question: %s\n\n", q)
	}

	if !f.HasVerifiedSection {
		b.WriteString("Fact-checked findings:\n\n")
		b.WriteString(args.FactCheckedFindings)
		return b.String()
	}

	fmt.Fprintf(&b, "### Verified claims (use these)\n%s\n\n", bulletList(f.Verified))
	fmt.Fprintf(&b, "### Uncertain claims (excluded unless critical, hedge if used)\n%s\n\n", bulletList(f.Uncertain))
	fmt.Fprintf(&b, "### Contradicted claims (excluded unless critical, hedge if used)\n%s\n", bulletList(f.Contradicted))
	return b.String()
}
