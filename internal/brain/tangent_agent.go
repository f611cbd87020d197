package brain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kenzic/unhinged-side-quest-research-agent/common/llm"
	"github.com/kenzic/unhinged-side-quest-research-agent/common/logger"
)

// TangentAgent runs one or two searches on topics next to the main one and
// narrates what it found.
type TangentAgent struct {
	llm    llm.AgentClient
	search *SearchTool
	cfg    SubAgentConfig
}

func NewTangentAgent(client llm.AgentClient, search *SearchTool, cfg SubAgentConfig) *TangentAgent {
	return &TangentAgent{llm: client, search: search, cfg: cfg}
}

// TangentArgs are the arguments of the tangentDiscovery tool.
type TangentArgs struct {
	MainTopic     string `json:"mainTopic" jsonschema:"required,description=The main topic of the user's question" validate:"required,notblank"`
	ResearchNotes string `json:"researchNotes" jsonschema:"required,description=What you have found so far" validate:"required,notblank"`
}

// Discover returns the tangent narrative. observe sees each nested search.
func (t *TangentAgent) Discover(ctx context.Context, args TangentArgs, observe ResultsFunc) (string, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "sidequest.brain.tangent"})

	tools := NewToolset()
	t.search.register(tools, observe)

	l := &loop{
		agent:     agentTangent,
		client:    t.llm,
		maxSteps:  t.cfg.steps(),
		maxTokens: t.cfg.MaxTokens,
		tools:     tools,
	}
	res, err := l.run(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: tangentSystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Main topic: %s\n\nResearch notes:\n%s", args.MainTopic, args.ResearchNotes)},
	})
	if err != nil {
		return "", err
	}
	if res.Text == "" {
		return "", errors.New("tangent agent returned no narrative")
	}

	slog.InfoContext(ctx, "tangent discovery completed",
		"steps", res.Steps,
		"searches", res.ToolCalls,
		"stop_reason", string(res.StopReason))
	return res.Text, nil
}
