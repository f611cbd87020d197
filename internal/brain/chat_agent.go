package brain

import (
	"context"
	"log/slog"
	"time"

	"github.com/kenzic/unhinged-side-quest-research-agent/common/llm"
	"github.com/kenzic/unhinged-side-quest-research-agent/common/logger"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/search"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/stream"
	"go.opentelemetry.io/otel/attribute"
)

// Tool names the chat agent exposes to the model.
const (
	toolWebSearch = "webSearch"
	toolTangent   = "tangentDiscovery"
	toolFactCheck = "factCheck"
	toolSummarize = "summarize"
)

// Agent names used in logs and spans.
const (
	agentChat      = "chat"
	agentFactCheck = "fact_check"
	agentSummarize = "summarize"
	agentTangent   = "tangent"
)

const (
	defaultChatSteps     = 15
	defaultSubAgentSteps = 5
)

type ChatAgentConfig struct {
	MaxSteps        int
	MaxTokens       int
	EnforceWorkflow bool
}

// ChatAgent orchestrates a turn: it searches, delegates to the sub-agents
// and streams the final markdown answer.
type ChatAgent struct {
	llm         llm.AgentClient
	search      *SearchTool
	tangent     *TangentAgent
	factChecker *FactChecker
	summarizer  *Summarizer
	cfg         ChatAgentConfig
}

// ChatAgentDeps are the tools the chat agent delegates to.
type ChatAgentDeps struct {
	Search      *SearchTool
	Tangent     *TangentAgent
	FactChecker *FactChecker
	Summarizer  *Summarizer
}

func NewChatAgent(client llm.AgentClient, deps ChatAgentDeps, cfg ChatAgentConfig) *ChatAgent {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = defaultChatSteps
	}
	return &ChatAgent{
		llm:         client,
		search:      deps.Search,
		tangent:     deps.Tangent,
		factChecker: deps.FactChecker,
		summarizer:  deps.Summarizer,
		cfg:         cfg,
	}
}

// TurnResult is the outcome of one chat turn. Reaching the step limit is a
// normal result, not an error.
type TurnResult struct {
	Text          string
	Steps         int
	ToolCalls     int
	StopReason    StopReason
	WorkflowState WorkflowState
}

// Run answers the conversation in history, emitting text and tool events to
// em as they happen. em must already be streaming; Run does not open or
// close the turn. A canceled ctx stops the loop at the next step or tool
// boundary and is returned as the context error.
func (a *ChatAgent) Run(ctx context.Context, history []llm.Message, em *stream.Emitter) (TurnResult, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "sidequest.brain.chat"})
	span := logger.StartSpan(ctx, "brain.chat.turn", attribute.Int("history_len", len(history)))
	defer span.End()
	ctx = span.Context()

	start := time.Now()
	workflow := NewWorkflow(a.cfg.EnforceWorkflow)

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: chatSystemPrompt})
	messages = append(messages, history...)

	l := &loop{
		agent:     agentChat,
		client:    a.llm,
		maxSteps:  a.cfg.MaxSteps,
		maxTokens: a.cfg.MaxTokens,
		tools:     a.toolset(em),
		workflow:  workflow,
		observer:  emitterObserver{em: em},
		onDelta: func(delta string) {
			_ = em.TextDelta(ctx, delta)
		},
		onStep: func(ctx context.Context, step int) {
			_ = em.StepFinish(ctx, step)
		},
	}

	res, err := l.run(ctx, messages)
	result := TurnResult{
		Text:          res.Text,
		Steps:         res.Steps,
		ToolCalls:     res.ToolCalls,
		StopReason:    res.StopReason,
		WorkflowState: workflow.State(),
	}
	span.SetAttributes(attribute.Int("steps", res.Steps), attribute.Int("tool_calls", res.ToolCalls))

	if err != nil {
		if llm.IsCanceled(err) {
			slog.InfoContext(ctx, "chat turn aborted", "steps", res.Steps, "tool_calls", res.ToolCalls)
		} else {
			span.RecordError(err)
		}
		return result, err
	}

	if !workflow.Complete() {
		slog.InfoContext(ctx, "chat turn finished without completing the research workflow",
			"workflow_state", string(workflow.State()))
	}
	slog.InfoContext(ctx, "chat turn completed",
		"steps", res.Steps,
		"tool_calls", res.ToolCalls,
		"stop_reason", string(res.StopReason),
		"duration_ms", time.Since(start).Milliseconds())

	return result, nil
}

// toolset builds the per-turn tools; handlers report sources and counters
// to em.
func (a *ChatAgent) toolset(em *stream.Emitter) *Toolset {
	ts := NewToolset()

	a.search.register(ts, func(ctx context.Context, call llm.ToolCall, args WebSearchArgs, results []search.Result) {
		_ = em.SearchLogged(ctx, call.ID, args.Query, args.Reason)
		citeResults(ctx, em, call.ID, results)
	})

	AddTool(ts, toolTangent,
		"Find one or two surprising tangents related to the main topic. Runs its own web searches.",
		func(ctx context.Context, call llm.ToolCall, args TangentArgs) (string, error) {
			out, err := a.tangent.Discover(ctx, args, func(ctx context.Context, _ llm.ToolCall, nested WebSearchArgs, results []search.Result) {
				reason := nested.Reason
				if reason == "" {
					reason = "tangent"
				}
				_ = em.SearchLogged(ctx, call.ID, nested.Query, reason)
				citeResults(ctx, em, call.ID, results)
			})
			if err != nil {
				return "", err
			}
			_ = em.TangentDetected(ctx, call.ID)
			return out, nil
		})

	AddTool(ts, toolFactCheck,
		"Fact-check research notes. Returns claims sorted into Verified, Uncertain and Contradicted sections.",
		func(ctx context.Context, _ llm.ToolCall, args FactCheckArgs) (string, error) {
			return a.factChecker.Check(ctx, args.ResearchNotes)
		})

	AddTool(ts, toolSummarize,
		"Write the final answer from fact-checked findings, using verified claims only.",
		func(ctx context.Context, _ llm.ToolCall, args SummarizeArgs) (string, error) {
			return a.summarizer.Summarize(ctx, args)
		})

	return ts
}

func citeResults(ctx context.Context, em *stream.Emitter, parentID string, results []search.Result) {
	for _, r := range results {
		_ = em.SourceURL(ctx, parentID, r.URL, r.Title)
	}
}

// emitterObserver turns top-level tool dispatch into tool-call events.
// Nested sub-agent calls never reach it.
type emitterObserver struct {
	em *stream.Emitter
}

func (o emitterObserver) toolStarted(ctx context.Context, call llm.ToolCall) {
	if err := o.em.ToolCallStart(ctx, call.ID, call.Name); err != nil {
		slog.WarnContext(ctx, "tool call start not emitted", "error", err)
		return
	}
	if err := o.em.ToolCallArgs(ctx, call.ID, call.Name, call.Arguments); err != nil {
		slog.WarnContext(ctx, "tool call args not emitted", "error", err)
	}
}

func (o emitterObserver) toolFinished(ctx context.Context, call llm.ToolCall, output string, err error) {
	var emitErr error
	if err != nil {
		emitErr = o.em.ToolCallError(ctx, call.ID, call.Name, err.Error())
	} else {
		emitErr = o.em.ToolCallResult(ctx, call.ID, call.Name, output)
	}
	if emitErr != nil {
		slog.WarnContext(ctx, "tool call outcome not emitted", "error", emitErr)
	}
}
