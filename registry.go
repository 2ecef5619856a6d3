package toolgram

import (
	"context"
	"log/slog"
	"regexp"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/google/uuid"
)

// Registry holds the tools the model may call, compiles their grammar and dispatches parsed calls.
// Lookups are lock-free; registration takes a mutex. Tools are listed in registration order.
type Registry struct {
	index       *haxmap.Map[string, *Tool]
	mu          sync.Mutex
	order       []string
	middlewares []Middleware
	grammar     atomic.Pointer[Grammar]
	opts        registryOptions
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	o := registryOptions{
		logger:        slog.Default(),
		recoverPanics: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Registry{
		index: haxmap.New[string, *Tool](),
		opts:  o,
	}
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Register adds a tool. Registering a name again replaces the earlier tool but keeps its position.
// A tool with an invalid name, a missing handler, duplicate parameter names, a parameter without
// a declared type or a default that does not fit its type is rejected with *RegistrationError.
//
// Register does not touch a grammar that has already been compiled; call RegenerateGrammar.
func (r *Registry) Register(t *Tool) error {
	if err := checkTool(t); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.index.Get(t.name); !exists {
		r.order = append(r.order, t.name)
	} else {
		r.opts.logger.Debug("tool replaced", "tool", t.name)
	}
	r.index.Set(t.name, t)
	return nil
}

// RegisterFunc builds a tool from fn with NewTool and registers it.
func (r *Registry) RegisterFunc(fn any, options ...ToolOption) (*Tool, error) {
	t, err := NewTool(fn, options...)
	if err != nil {
		return nil, &RegistrationError{Tool: FunctionName(fn), Reason: err.Error()}
	}
	if err := r.Register(t); err != nil {
		return nil, err
	}
	return t, nil
}

// MustRegister registers tools and panics on the first failure. Use it at program start.
func (r *Registry) MustRegister(tools ...*Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

func checkTool(t *Tool) error {
	if t == nil {
		return &RegistrationError{Reason: "tool is nil"}
	}
	if !identPattern.MatchString(t.name) {
		return &RegistrationError{Tool: t.name, Reason: "name must be an identifier"}
	}
	if t.handler == nil {
		return &RegistrationError{Tool: t.name, Reason: "handler is nil"}
	}
	seen := make(map[string]bool, len(t.params))
	for _, p := range t.params {
		if p.Name == "" {
			return &RegistrationError{Tool: t.name, Reason: "parameter without a name"}
		}
		if seen[p.Name] {
			return &RegistrationError{Tool: t.name, Param: p.Name, Reason: "duplicate parameter name"}
		}
		seen[p.Name] = true
		if !p.Type.valid() {
			return &RegistrationError{Tool: t.name, Param: p.Name, Reason: "parameter has no declared type"}
		}
		if p.HasDefault && p.Default != nil {
			if _, err := coerce(p.Default, p.Type); err != nil {
				return &RegistrationError{Tool: t.name, Param: p.Name, Reason: "default value: " + err.Error()}
			}
		}
	}
	return nil
}

// Tool returns the registered tool with the given name.
func (r *Registry) Tool(name string) (*Tool, bool) {
	return r.index.Get(name)
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []*Tool {
	r.mu.Lock()
	names := slices.Clone(r.order)
	r.mu.Unlock()
	out := make([]*Tool, 0, len(names))
	for _, name := range names {
		if t, ok := r.index.Get(name); ok {
			out = append(out, t)
		}
	}
	return out
}

// Grammar returns the compiled grammar, compiling it on first use. Later calls return the cached
// grammar until RegenerateGrammar replaces it.
func (r *Registry) Grammar() *Grammar {
	if g := r.grammar.Load(); g != nil {
		return g
	}
	g := r.compile()
	if r.grammar.CompareAndSwap(nil, g) {
		return g
	}
	return r.grammar.Load()
}

// RegenerateGrammar recompiles the grammar from the current tools and replaces the cache.
func (r *Registry) RegenerateGrammar() *Grammar {
	g := r.compile()
	r.grammar.Store(g)
	return g
}

func (r *Registry) compile() *Grammar {
	tools := r.Tools()
	g := CompileGrammar(tools)
	if err := g.Check(); err != nil {
		r.opts.logger.Warn("grammar has unresolved productions", "error", err)
	}
	r.opts.logger.Debug("grammar compiled", "tools", len(tools), "rules", len(g.Rules))
	return g
}

// Invoke validates call against the named tool and runs it. Failures are typed:
// *UnknownToolError, *ArityError, *TypeCoercionError or *ExecutionError. Elapsed covers
// validation and the handler.
func (r *Registry) Invoke(ctx context.Context, call ParsedCall) (inv Invocation, err error) {
	start := time.Now()
	inv = Invocation{ID: newInvocationID(), Tool: call.Name}
	if r.opts.onBefore != nil {
		r.opts.onBefore(ctx, call)
	}
	defer func() {
		inv.Elapsed = time.Since(start)
		if r.opts.onAfter != nil {
			r.opts.onAfter(ctx, call, inv, err)
		}
	}()

	t, ok := r.index.Get(call.Name)
	if !ok {
		return inv, &UnknownToolError{Name: call.Name}
	}
	args, err := t.bind(call.Args, r.opts.strictArity)
	if err != nil {
		return inv, err
	}
	res, err := r.run(ctx, t, args)
	if err != nil {
		return inv, err
	}
	inv.Result = res
	return inv, nil
}

func (r *Registry) run(ctx context.Context, t *Tool, args []any) (res any, err error) {
	if r.opts.recoverPanics {
		defer func() {
			if p := recover(); p != nil {
				res = nil
				err = &ExecutionError{Tool: t.name, Err: &panicError{p: p}}
			}
		}()
	}
	r.mu.Lock()
	chain := r.middlewares
	r.mu.Unlock()
	h := t.handler
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](t, h)
	}
	res, err = h(ctx, args)
	if err != nil {
		if _, ok := err.(*ExecutionError); !ok {
			err = &ExecutionError{Tool: t.name, Err: err}
		}
		return nil, err
	}
	return res, nil
}

// bind checks the argument count and coerces every argument to its declared type. Omitted
// trailing parameters take their defaults unless strict is set.
func (t *Tool) bind(lits []any, strict bool) ([]any, error) {
	total := len(t.params)
	required := t.requiredParams()
	if strict {
		required = total
	}
	if len(lits) < required || len(lits) > total {
		return nil, &ArityError{Tool: t.name, Min: required, Max: total, Got: len(lits)}
	}
	args := make([]any, total)
	for i, p := range t.params {
		if i >= len(lits) {
			if p.Default == nil {
				continue
			}
			v, err := coerceArg(t.name, p, nil, p.Default)
			if err != nil {
				return nil, err
			}
			args[i] = v
			continue
		}
		var validator schemaValidator
		if i < len(t.validators) {
			validator = t.validators[i]
		}
		v, err := coerceArg(t.name, p, validator, lits[i])
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func newInvocationID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

