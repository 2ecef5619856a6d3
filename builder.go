package toolgram

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"slices"
	"strings"

	"github.com/fogfish/opts"
	"github.com/invopop/jsonschema"
)

// Tool is an immutable tool descriptor: name, documentation, ordered typed parameters and the
// handler that runs it. Build one with NewTool or NewDynamicTool and add it to a Registry.
type Tool struct {
	name        string
	description string
	grammar     string
	params      []Param
	handler     HandlerFunc
	schema      *jsonschema.Schema
	// validators holds the compiled struct-literal schema per parameter index (nil for non-structs).
	validators []schemaValidator
}

var contextType = reflect.TypeFor[context.Context]()

// NewTool builds a Tool from a Go function. A leading context.Context parameter is supplied by
// the dispatcher and is not part of the tool's signature. The function may return nothing, a
// value, an error, or (value, error).
//
// Go does not keep parameter names at runtime; pass them with Params, otherwise they are
// named param0, param1, ... The tool name defaults to the function's identifier.
//
// Parameters whose Go type has no declared Kind (interfaces, maps, channels) are kept as
// KindInvalid and rejected by Registry.Register.
func NewTool(fn any, options ...ToolOption) (*Tool, error) {
	val := reflect.ValueOf(fn)
	if !val.IsValid() || val.Kind() != reflect.Func || val.IsNil() {
		return nil, errors.New("tool handler must be a non-nil function")
	}
	var cfg toolConfig
	if err := opts.Apply(&cfg, options); err != nil {
		return nil, err
	}
	typ := val.Type()
	if typ.IsVariadic() {
		return nil, errors.New("variadic functions are not supported as tools")
	}
	if err := checkResults(typ); err != nil {
		return nil, err
	}
	start := 0
	if typ.NumIn() > 0 && typ.In(0) == contextType {
		start = 1
	}
	params := make([]Param, 0, typ.NumIn()-start)
	for i := start; i < typ.NumIn(); i++ {
		idx := i - start
		name := fmt.Sprintf("param%d", idx)
		if idx < len(cfg.paramNames) && cfg.paramNames[idx] != "" {
			name = cfg.paramNames[idx]
		}
		p := Param{Name: name, Type: TypeOf(typ.In(i))}
		if d, ok := cfg.defaults[name]; ok {
			p.HasDefault = true
			p.Default = d
		}
		params = append(params, p)
	}
	if cfg.name == "" {
		cfg.name = FunctionName(fn)
	}
	t, err := newTool(cfg, params, funcHandler(val, start == 1))
	if err != nil {
		return nil, err
	}
	t.schema = reflectParamsSchema(typ, start, params)
	return t, nil
}

// NewDynamicTool builds a Tool from an explicit descriptor. Structured parameters are passed to
// fn as map[string]any and lists as []any; primitives as string, int64, float64 or bool.
// The params slice is copied.
func NewDynamicTool(name string, params []Param, fn HandlerFunc, options ...ToolOption) (*Tool, error) {
	if fn == nil {
		return nil, errors.New("dynamic tool handler must not be nil")
	}
	var cfg toolConfig
	if err := opts.Apply(&cfg, options); err != nil {
		return nil, err
	}
	if cfg.name == "" {
		cfg.name = name
	}
	params = slices.Clone(params)
	for i := range params {
		if d, ok := cfg.defaults[params[i].Name]; ok {
			params[i].HasDefault = true
			params[i].Default = d
		}
	}
	t, err := newTool(cfg, params, fn)
	if err != nil {
		return nil, err
	}
	t.schema = paramsSchema(params)
	return t, nil
}

func newTool(cfg toolConfig, params []Param, handler HandlerFunc) (*Tool, error) {
	doc := ExtractDoc(cfg.doc)
	t := &Tool{
		name:        cfg.name,
		description: cfg.description,
		grammar:     cfg.grammar,
		params:      params,
		handler:     handler,
		validators:  make([]schemaValidator, len(params)),
	}
	if t.description == "" {
		t.description = doc.Summary
	}
	if t.grammar == "" {
		t.grammar = doc.Grammar
	}
	for i, p := range params {
		if !p.Type.valid() || !p.Type.needsSchema() {
			continue
		}
		v, err := compileTypeValidator(p.Type)
		if err != nil {
			return nil, fmt.Errorf("compile schema for parameter %q: %w", p.Name, err)
		}
		t.validators[i] = v
	}
	return t, nil
}

func (t *Tool) Name() string        { return t.name }
func (t *Tool) Description() string { return t.description }

// Params returns a copy of the parameter list in declaration order.
func (t *Tool) Params() []Param { return slices.Clone(t.params) }

// CustomGrammar returns the author-supplied grammar fragment, if any.
func (t *Tool) CustomGrammar() (string, bool) { return t.grammar, t.grammar != "" }

// Schema returns the JSON Schema of the tool's parameters as an object keyed by parameter name.
// Callers must not mutate it.
func (t *Tool) Schema() *jsonschema.Schema { return t.schema }

// requiredParams is the number of leading parameters the model must always supply.
func (t *Tool) requiredParams() int {
	n := 0
	for i, p := range t.params {
		if !p.HasDefault {
			n = i + 1
		}
	}
	return n
}

// FunctionName returns the identifier of a Go function: the last path element of its runtime
// name, without the method-value suffix. Anonymous functions get names like "func1".
func FunctionName(fn any) string {
	val := reflect.ValueOf(fn)
	if !val.IsValid() || val.Kind() != reflect.Func {
		return ""
	}
	rf := runtime.FuncForPC(val.Pointer())
	if rf == nil {
		return val.Type().String()
	}
	name := rf.Name()
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}

var errorType = reflect.TypeFor[error]()

func checkResults(typ reflect.Type) error {
	switch typ.NumOut() {
	case 0, 1:
		return nil
	case 2:
		if typ.Out(1) != errorType {
			return fmt.Errorf("second result of a tool must be error, got %s", typ.Out(1))
		}
		return nil
	default:
		return fmt.Errorf("tool functions return at most (value, error), got %d results", typ.NumOut())
	}
}

// funcHandler adapts a Go function to HandlerFunc. Arguments arrive already coerced to the exact
// parameter types, so only interface-typed defaults need converting here.
func funcHandler(fn reflect.Value, withCtx bool) HandlerFunc {
	typ := fn.Type()
	return func(ctx context.Context, args []any) (any, error) {
		in := make([]reflect.Value, 0, typ.NumIn())
		if withCtx {
			if ctx == nil {
				ctx = context.Background()
			}
			in = append(in, reflect.ValueOf(ctx))
		}
		for _, a := range args {
			pt := typ.In(len(in))
			if a == nil {
				in = append(in, reflect.Zero(pt))
				continue
			}
			av := reflect.ValueOf(a)
			if av.Type() != pt {
				if !av.Type().ConvertibleTo(pt) {
					return nil, fmt.Errorf("argument %d: cannot use %s as %s", len(in), av.Type(), pt)
				}
				av = av.Convert(pt)
			}
			in = append(in, av)
		}
		return unpackResults(fn.Call(in))
	}
}

func unpackResults(out []reflect.Value) (any, error) {
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if out[0].Type() == errorType {
			return nil, asError(out[0])
		}
		return out[0].Interface(), nil
	default:
		return out[0].Interface(), asError(out[1])
	}
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}
