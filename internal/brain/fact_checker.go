package brain

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kenzic/unhinged-side-quest-research-agent/common/llm"
	"github.com/kenzic/unhinged-side-quest-research-agent/common/logger"
)

// SubAgentConfig bounds a sub-agent loop.
type SubAgentConfig struct {
	MaxSteps  int
	MaxTokens int
}

func (c SubAgentConfig) steps() int {
	if c.MaxSteps <= 0 {
		return defaultSubAgentSteps
	}
	return c.MaxSteps
}

// FactChecker sorts research claims into verified, uncertain and
// contradicted. It has no tools; the categorization is the model's call.
type FactChecker struct {
	llm llm.AgentClient
	cfg SubAgentConfig
}

func NewFactChecker(client llm.AgentClient, cfg SubAgentConfig) *FactChecker {
	return &FactChecker{llm: client, cfg: cfg}
}

// FactCheckArgs are the arguments of the factCheck tool.
type FactCheckArgs struct {
	ResearchNotes string `json:"researchNotes" jsonschema:"required,description=All claims you intend to make with the source URL for each" validate:"required,notblank"`
}

// Check fact-checks notes and returns the three-section markdown report.
func (f *FactChecker) Check(ctx context.Context, notes string) (string, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "sidequest.brain.fact_checker"})

	l := &loop{
		agent:     agentFactCheck,
		client:    f.llm,
		maxSteps:  f.cfg.steps(),
		maxTokens: f.cfg.MaxTokens,
	}
	res, err := l.run(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: factCheckSystemPrompt},
		{Role: llm.RoleUser, Content: "Research notes to fact-check:\n\n" + notes},
	})
	if err != nil {
		return "", err
	}
	if res.Text == "" {
		return "", errors.New("fact-checker returned no report")
	}

	findings := ParseFindings(res.Text)
	slog.InfoContext(ctx, "fact check completed",
		"steps", res.Steps,
		"verified", len(findings.Verified),
		"uncertain", len(findings.Uncertain),
		"contradicted", len(findings.Contradicted))

	return res.Text, nil
}
