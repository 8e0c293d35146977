package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/relay/pkg/models"
)

// maxToolOutputSize caps tool output persisted to history.
const maxToolOutputSize = 100_000

// ToolExecutor executes a single tool call and reports its outcome.
type ToolExecutor interface {
	Execute(ctx context.Context, call models.ToolCall) models.ToolExecutionOutcome
}

// ExecutorConfig configures tool execution.
type ExecutorConfig struct {
	// Timeout bounds a single tool execution.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout"`

	// ValidateArguments enables JSON-schema validation of tool arguments.
	// Default: true
	ValidateArguments bool `yaml:"validate_arguments"`
}

// DefaultExecutorConfig returns the default executor configuration.
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		Timeout:           60 * time.Second,
		ValidateArguments: true,
	}
}

// Executor runs tools from a registry with argument validation, timeouts,
// and panic recovery. Failures are captured in the outcome rather than
// returned; the loop decides how to proceed.
type Executor struct {
	registry *ToolRegistry
	config   *ExecutorConfig
	logger   *slog.Logger

	schemaMu sync.Mutex
	schemas  map[string]*jsonschema.Schema
}

// NewExecutor creates a tool executor over the given registry.
func NewExecutor(registry *ToolRegistry, config *ExecutorConfig, logger *slog.Logger) *Executor {
	if registry == nil {
		registry = NewToolRegistry()
	}
	if config == nil {
		config = DefaultExecutorConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultExecutorConfig().Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		config:   config,
		logger:   logger.With("component", "executor"),
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

// Execute runs one tool call to completion.
func (e *Executor) Execute(ctx context.Context, call models.ToolCall) models.ToolExecutionOutcome {
	tool, ok := e.registry.Get(call.Name)
	if !ok || !tool.Enabled() {
		return e.failure(call, models.ToolFailureNotFound, "tool not found: "+call.Name)
	}

	if e.config.ValidateArguments {
		if err := e.validateArguments(tool, call.Arguments); err != nil {
			return e.failure(call, models.ToolFailureValidation, err.Error())
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	start := time.Now()
	output, err := e.run(execCtx, tool, call.Arguments)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		e.logger.Debug("tool executed", "tool", call.Name, "duration", elapsed)
		if len(output) > maxToolOutputSize {
			output = output[:maxToolOutputSize] + "..."
		}
		return models.ToolExecutionOutcome{
			ToolCallID:     call.ID,
			ToolName:       call.Name,
			Result:         models.ToolSuccess(output),
			MessageContent: output,
		}
	case execCtx.Err() == context.DeadlineExceeded:
		e.logger.Warn("tool timed out", "tool", call.Name, "timeout", e.config.Timeout)
		return e.failure(call, models.ToolFailureTimeout,
			fmt.Sprintf("tool %s timed out after %s", call.Name, e.config.Timeout))
	default:
		e.logger.Warn("tool failed", "tool", call.Name, "error", err)
		return e.failure(call, models.ToolFailureExecution, err.Error())
	}
}

// run executes the tool with panic recovery.
func (e *Executor) run(ctx context.Context, tool Tool, args map[string]any) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return tool.Execute(ctx, args)
}

func (e *Executor) failure(call models.ToolCall, kind models.ToolFailureKind, message string) models.ToolExecutionOutcome {
	return models.ToolExecutionOutcome{
		ToolCallID:     call.ID,
		ToolName:       call.Name,
		Result:         models.ToolFailure(kind, message),
		MessageContent: message,
	}
}

// validateArguments checks call arguments against the tool's JSON schema.
// Tools without a schema accept any arguments.
func (e *Executor) validateArguments(tool Tool, args map[string]any) error {
	raw := tool.Schema()
	if len(raw) == 0 {
		return nil
	}

	schema, err := e.compiledSchema(tool.Name(), raw)
	if err != nil {
		// A broken schema should not block the tool.
		e.logger.Warn("invalid tool schema", "tool", tool.Name(), "error", err)
		return nil
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := schema.Validate(normalizeForSchema(args)); err != nil {
		return fmt.Errorf("invalid arguments for %s: %v", tool.Name(), err)
	}
	return nil
}

func (e *Executor) compiledSchema(name string, raw map[string]any) (*jsonschema.Schema, error) {
	e.schemaMu.Lock()
	defer e.schemaMu.Unlock()

	if schema, ok := e.schemas[name]; ok {
		return schema, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name+".json", bytes.NewReader(data)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(name + ".json")
	if err != nil {
		return nil, err
	}
	e.schemas[name] = schema
	return schema, nil
}

// normalizeForSchema round-trips args through JSON so numeric types match
// what the validator expects.
func normalizeForSchema(args map[string]any) any {
	data, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var normalized any
	if err := json.Unmarshal(data, &normalized); err != nil {
		return args
	}
	return normalized
}
