package brain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kenzic/unhinged-side-quest-research-agent/common/llm"
	"github.com/kenzic/unhinged-side-quest-research-agent/common/logger"
	"go.opentelemetry.io/otel/attribute"
)

// StopReason records why a loop ended. Both reasons are normal termination;
// callers only log the difference.
type StopReason string

const (
	StopNatural   StopReason = "natural"
	StopStepLimit StopReason = "step_limit"
)

// abortedToolText is recorded for a tool call interrupted by cancellation.
const abortedToolText = "aborted"

// LoopResult is what a bounded loop produced.
type LoopResult struct {
	Text       string
	Steps      int
	ToolCalls  int
	StopReason StopReason
}

// toolObserver sees every dispatched tool call of a loop.
type toolObserver interface {
	toolStarted(ctx context.Context, call llm.ToolCall)
	toolFinished(ctx context.Context, call llm.ToolCall, output string, err error)
}

// loop is one bounded tool-calling conversation with a model. A step is a
// single model round-trip plus the sequential dispatch of every tool call
// it requested.
type loop struct {
	agent     string
	client    llm.AgentClient
	maxSteps  int
	maxTokens int
	tools     *Toolset
	workflow  *Workflow

	observer toolObserver
	onDelta  llm.TextDeltaFunc
	onStep   func(ctx context.Context, step int)
}

func (l *loop) run(ctx context.Context, messages []llm.Message) (LoopResult, error) {
	var (
		result LoopResult
		texts  []string
	)

	ctx = logger.WithLogFields(ctx, logger.LogFields{Agent: l.agent})

	for step := 1; step <= l.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			result.Text = joinTexts(texts)
			return result, err
		}

		stepCtx := logger.WithLogFields(ctx, logger.LogFields{Step: logger.Ptr(step)})
		span := logger.StartSpan(stepCtx, "brain."+l.agent+".step", attribute.Int("step", step))
		stepCtx = span.Context()

		resp, err := l.client.ChatWithTools(stepCtx, llm.AgentRequest{
			Messages:    messages,
			Tools:       l.tools.Definitions(),
			MaxTokens:   l.maxTokens,
			OnTextDelta: l.onDelta,
		})
		result.Steps = step
		if err != nil {
			span.RecordError(err)
			span.End()
			result.Text = joinTexts(texts)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			slog.ErrorContext(stepCtx, "model call failed",
				"error", err,
				"error_kind", llm.ErrorKind(err))
			return result, fmt.Errorf("%s step %d: %w", l.agent, step, err)
		}

		if text := strings.TrimSpace(resp.Content); text != "" {
			texts = append(texts, resp.Content)
		}

		slog.DebugContext(stepCtx, "agent step completed",
			"tool_calls", len(resp.ToolCalls),
			"finish_reason", resp.FinishReason,
			"prompt_tokens", resp.PromptTokens,
			"completion_tokens", resp.CompletionTokens)

		if len(resp.ToolCalls) == 0 {
			if l.workflow != nil && l.workflow.Enforced() && !l.workflow.Complete() && step < l.maxSteps {
				slog.InfoContext(stepCtx, "final answer before workflow completed, nudging model",
					"workflow_state", string(l.workflow.State()))
				messages = append(messages,
					llm.Message{Role: llm.RoleAssistant, Content: resp.Content},
					llm.Message{Role: llm.RoleUser, Content: l.workflow.Nudge()},
				)
				l.stepDone(stepCtx, step)
				span.End()
				continue
			}

			l.stepDone(stepCtx, step)
			span.End()
			result.Text = joinTexts(texts)
			result.StopReason = StopNatural
			return result, nil
		}

		for i := range resp.ToolCalls {
			if resp.ToolCalls[i].ID == "" {
				resp.ToolCalls[i].ID = fmt.Sprintf("%s_%d_%d", l.agent, step, i)
			}
		}
		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			if err := ctx.Err(); err != nil {
				span.End()
				result.Text = joinTexts(texts)
				return result, err
			}

			result.ToolCalls++
			output, toolErr := l.dispatch(stepCtx, call)
			if errors.Is(toolErr, context.Canceled) || ctx.Err() != nil {
				span.End()
				result.Text = joinTexts(texts)
				if ctxErr := ctx.Err(); ctxErr != nil {
					return result, ctxErr
				}
				return result, toolErr
			}

			msg := llm.Message{Role: llm.RoleTool, ToolCallID: call.ID, Content: output}
			if toolErr != nil {
				msg.Content = toolErr.Error()
				msg.IsError = true
			}
			messages = append(messages, msg)
		}

		l.stepDone(stepCtx, step)
		span.End()
	}

	slog.InfoContext(ctx, "agent reached step limit", "max_steps", l.maxSteps)
	result.Text = joinTexts(texts)
	result.StopReason = StopStepLimit
	return result, nil
}

// dispatch runs one tool call. Failures come back as errors for the model
// to read; they never end the loop.
func (l *loop) dispatch(ctx context.Context, call llm.ToolCall) (string, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{ToolCallID: logger.Ptr(call.ID)})
	span := logger.StartSpan(ctx, "brain.tool."+call.Name, attribute.String("tool_call_id", call.ID))
	defer span.End()
	ctx = span.Context()

	if l.observer != nil {
		l.observer.toolStarted(ctx, call)
	}

	var (
		output string
		err    error
	)
	if l.workflow != nil {
		err = l.workflow.Allow(call.Name)
	}
	if err == nil {
		output, err = l.tools.Execute(ctx, call)
	}

	switch {
	case err != nil && ctx.Err() != nil:
		err = fmt.Errorf("%s: %w", abortedToolText, ctx.Err())
		slog.InfoContext(ctx, "tool call aborted", "tool", call.Name)
	case err != nil:
		span.RecordError(err)
		slog.WarnContext(ctx, "tool call failed",
			"tool", call.Name,
			"error", err,
			"arguments", logger.Truncate(call.Arguments, 200))
	default:
		if l.workflow != nil {
			l.workflow.Record(call.Name)
		}
		slog.DebugContext(ctx, "tool call completed",
			"tool", call.Name,
			"output_len", len(output))
	}

	if l.observer != nil {
		l.observer.toolFinished(ctx, call, output, err)
	}
	return output, err
}

func (l *loop) stepDone(ctx context.Context, step int) {
	if l.onStep != nil {
		l.onStep(ctx, step)
	}
}

func joinTexts(texts []string) string {
	return strings.TrimSpace(strings.Join(texts, "\n\n"))
}
