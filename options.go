package toolgram

import (
	"context"
	"log/slog"
	"time"

	"github.com/fogfish/opts"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// toolConfig collects ToolOption values before a Tool is built.
type toolConfig struct {
	name        string
	description string
	doc         string
	grammar     string
	paramNames  []string
	defaults    map[string]any
}

// ToolOption configures NewTool and NewDynamicTool.
type ToolOption = opts.Option[toolConfig]

var (
	// Name overrides the tool name (by default the function identifier).
	Name = opts.ForName[toolConfig, string]("name")

	// Description sets the human description; it wins over the summary line of Doc.
	Description = opts.ForName[toolConfig, string]("description")

	// Doc sets the documentation block. Its first line becomes the description and a
	// "Grammar:" section becomes the custom grammar (see ExtractDoc).
	Doc = opts.ForName[toolConfig, string]("doc")

	// GrammarOverride sets a custom grammar fragment that replaces the generated production.
	GrammarOverride = opts.ForName[toolConfig, string]("grammar")
)

// Params names the tool's parameters in declaration order (context.Context excluded).
func Params(names ...string) ToolOption {
	return opts.Type[toolConfig](func(c *toolConfig) error {
		c.paramNames = names
		return nil
	})
}

// Default marks the named parameter as optional with the given value. The generated grammar
// wraps it in [ ], and the dispatcher uses value when a trailing argument is omitted.
func Default(param string, value any) ToolOption {
	return opts.Type[toolConfig](func(c *toolConfig) error {
		if c.defaults == nil {
			c.defaults = make(map[string]any)
		}
		c.defaults[param] = value
		return nil
	})
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	logger        *slog.Logger
	recoverPanics bool
	strictArity   bool
	onBefore      func(context.Context, ParsedCall)
	onAfter       func(context.Context, ParsedCall, Invocation, error)
}

// WithLogger sets the logger used for registration and grammar diagnostics.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(o *registryOptions) {
		o.logger = logger
	}
}

// WithRecoverPanics controls whether handler panics are packaged as ExecutionError (default true).
func WithRecoverPanics(enable bool) RegistryOption {
	return func(o *registryOptions) {
		o.recoverPanics = enable
	}
}

// WithStrictArity requires every declared parameter to be present in the call, including
// parameters with defaults.
func WithStrictArity() RegistryOption {
	return func(o *registryOptions) {
		o.strictArity = true
	}
}

// WithOnBeforeInvoke sets a hook called before each call is validated.
func WithOnBeforeInvoke(fn func(context.Context, ParsedCall)) RegistryOption {
	return func(o *registryOptions) {
		o.onBefore = fn
	}
}

// WithOnAfterInvoke sets a hook called after each call, on success and on failure.
func WithOnAfterInvoke(fn func(context.Context, ParsedCall, Invocation, error)) RegistryOption {
	return func(o *registryOptions) {
		o.onAfter = fn
	}
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*pipelineOptions)

type pipelineOptions struct {
	timeout     time.Duration
	maxTokens   int
	temperature float64
	logger      *slog.Logger
	guard       *Guard

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// WithGenerateTimeout bounds each engine call made by Ask. Zero disables the timeout.
func WithGenerateTimeout(d time.Duration) PipelineOption {
	return func(o *pipelineOptions) {
		o.timeout = d
	}
}

// WithMaxTokens sets the generation budget passed to the engine.
func WithMaxTokens(n int) PipelineOption {
	return func(o *pipelineOptions) {
		o.maxTokens = n
	}
}

// WithTemperature sets the sampling temperature passed to the engine.
func WithTemperature(t float64) PipelineOption {
	return func(o *pipelineOptions) {
		o.temperature = t
	}
}

// WithPipelineLogger sets the logger for pipeline failures.
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(o *pipelineOptions) {
		o.logger = logger
	}
}

// WithGuard shares a Guard between pipelines that drive the same engine.
func WithGuard(g *Guard) PipelineOption {
	return func(o *pipelineOptions) {
		o.guard = g
	}
}
