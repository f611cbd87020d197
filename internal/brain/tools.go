package brain

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kenzic/unhinged-side-quest-research-agent/common/llm"
)

var (
	ErrUnknownTool          = errors.New("unknown tool")
	ErrInvalidToolArguments = errors.New("invalid tool arguments")
)

// ToolFunc runs one tool call with decoded, validated arguments.
type ToolFunc[T any] func(ctx context.Context, call llm.ToolCall, args T) (string, error)

type toolEntry struct {
	def llm.Tool
	run func(ctx context.Context, call llm.ToolCall) (string, error)
}

// Toolset holds the tools one agent loop may call. Arguments are checked
// against the tool's struct tags before the tool runs, so malformed model
// output never reaches a search or a sub-agent.
type Toolset struct {
	tools    map[string]toolEntry
	order    []string
	validate *validator.Validate
}

func NewToolset() *Toolset {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	return &Toolset{
		tools:    make(map[string]toolEntry),
		validate: v,
	}
}

// AddTool registers a tool whose parameters schema is generated from T.
func AddTool[T any](ts *Toolset, name, description string, fn ToolFunc[T]) {
	var zero T
	if _, exists := ts.tools[name]; !exists {
		ts.order = append(ts.order, name)
	}
	ts.tools[name] = toolEntry{
		def: llm.Tool{
			Name:        name,
			Description: description,
			Parameters:  llm.GenerateSchemaFrom(zero),
		},
		run: func(ctx context.Context, call llm.ToolCall) (string, error) {
			args, err := llm.ParseToolArguments[T](call.Arguments)
			if err != nil {
				return "", fmt.Errorf("%w: %v", ErrInvalidToolArguments, err)
			}
			if err := ts.validate.Struct(args); err != nil {
				return "", fmt.Errorf("%w: %s", ErrInvalidToolArguments, describeValidation(err))
			}
			return fn(ctx, call, args)
		},
	}
}

// Definitions returns the tools in registration order.
func (ts *Toolset) Definitions() []llm.Tool {
	if ts == nil {
		return nil
	}
	defs := make([]llm.Tool, 0, len(ts.order))
	for _, name := range ts.order {
		defs = append(defs, ts.tools[name].def)
	}
	return defs
}

// Execute validates and runs call.
func (ts *Toolset) Execute(ctx context.Context, call llm.ToolCall) (string, error) {
	if ts == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}
	entry, ok := ts.tools[call.Name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}
	return entry.run(ctx, call)
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "notblank":
			msgs = append(msgs, fe.Field()+" must not be blank")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
