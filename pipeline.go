package toolgram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Pipeline connects a Registry to a generation engine: prompt, guarded generation under the
// registry's grammar, parsing and invocation.
type Pipeline struct {
	reg     *Registry
	engine  Engine
	opts    pipelineOptions
	guard   *Guard
	metrics *metrics
	tracer  trace.Tracer

	requests atomic.Int64
	failures atomic.Int64
}

// Stats are the pipeline's lifetime counters. Each GuardedGenerate, Execute or Ask call is one
// request and fails at most once, so Failures never exceeds Requests.
type Stats struct {
	Requests int64 `json:"requests"`
	Failures int64 `json:"failures"`
}

// NewPipeline creates a Pipeline. By default the engine is asked for 64 tokens at temperature 0,
// generation has no timeout and each Pipeline has its own Guard.
func NewPipeline(reg *Registry, engine Engine, opts ...PipelineOption) (*Pipeline, error) {
	if reg == nil {
		return nil, errors.New("pipeline needs a registry")
	}
	if engine == nil {
		return nil, errors.New("pipeline needs an engine")
	}
	o := pipelineOptions{
		maxTokens: 64,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	guard := o.guard
	if guard == nil {
		guard = NewGuard()
	}
	m, err := newMetrics(o.meterProvider)
	if err != nil {
		return nil, err
	}
	tp := o.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Pipeline{
		reg:     reg,
		engine:  engine,
		opts:    o,
		guard:   guard,
		metrics: m,
		tracer:  tp.Tracer(instrumentationName),
	}, nil
}

// Registry returns the registry the pipeline dispatches to.
func (p *Pipeline) Registry() *Registry { return p.reg }

// Stats returns the request and failure counts so far.
func (p *Pipeline) Stats() Stats {
	return Stats{Requests: p.requests.Load(), Failures: p.failures.Load()}
}

// GuardedGenerate asks the engine for a completion of prompt under the registry's grammar. Only
// one generation per Guard runs at a time. A positive timeout bounds the engine call and yields
// *TimeoutError when exceeded.
func (p *Pipeline) GuardedGenerate(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	p.requests.Add(1)
	return p.generate(ctx, prompt, timeout)
}

func (p *Pipeline) generate(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	ctx, span := p.tracer.Start(ctx, "toolgram.generate")
	defer span.End()

	req := GenerateRequest{
		Prompt:      prompt,
		Grammar:     p.reg.Grammar().String(),
		MaxTokens:   p.opts.maxTokens,
		Temperature: p.opts.temperature,
	}
	start := time.Now()
	var out string
	err := p.guard.Do(ctx, timeout, func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("engine panic: %v", r)
			}
		}()
		text, err := p.engine.Generate(ctx, req)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	dur := time.Since(start)
	if err != nil {
		p.failures.Add(1)
		code := CodeOf(err)
		p.metrics.recordGenerate(ctx, dur, string(code))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(code))
		p.opts.logger.ErrorContext(ctx, "generation failed", "code", code, "duration", dur, "error", err)
		return "", err
	}
	p.metrics.recordGenerate(ctx, dur, "ok")
	span.SetAttributes(attribute.Int("toolgram.output_bytes", len(out)))
	return out, nil
}

// Execute parses model output and invokes the call it names. Every failure is reported in the
// Response; ElapsedMicros covers parsing and invocation, ParseMicros parsing alone.
func (p *Pipeline) Execute(ctx context.Context, text string) Response {
	p.requests.Add(1)
	return p.execute(ctx, text)
}

func (p *Pipeline) execute(ctx context.Context, text string) Response {
	ctx, span := p.tracer.Start(ctx, "toolgram.execute")
	defer span.End()

	start := time.Now()
	call, err := Parse(text)
	parsed := time.Since(start)
	if err != nil {
		return p.fail(ctx, span, "", err)
	}
	span.SetAttributes(attribute.String("toolgram.tool", call.Name))
	inv, err := p.reg.Invoke(ctx, call)
	if err != nil {
		p.metrics.recordInvoke(ctx, call.Name, inv.Elapsed, string(CodeOf(err)))
		return p.fail(ctx, span, call.Name, err)
	}
	p.metrics.recordInvoke(ctx, call.Name, inv.Elapsed, "ok")
	return Response{
		Result:        inv.Result,
		ElapsedMicros: time.Since(start).Microseconds(),
		ParseMicros:   parsed.Microseconds(),
	}
}

// Ask prompts the engine with the tool list and question, then executes what it generates.
func (p *Pipeline) Ask(ctx context.Context, question string) Response {
	p.requests.Add(1)
	prompt := BuildSystemPrompt(p.reg.Tools()) + "\n" + question
	text, err := p.generate(ctx, prompt, p.opts.timeout)
	if err != nil {
		return NewErrorResponse(err)
	}
	p.opts.logger.DebugContext(ctx, "model output", "text", text)
	return p.execute(ctx, text)
}

func (p *Pipeline) fail(ctx context.Context, span trace.Span, tool string, err error) Response {
	p.failures.Add(1)
	resp := NewErrorResponse(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(resp.Code))
	p.opts.logger.ErrorContext(ctx, "execution failed", "tool", tool, "code", resp.Code, "error", err)
	return resp
}
