package toolgram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func multiply(a, b int) int { return a * b }

func echo(it Item) string { return it.Name }

func newDemoRegistry(t *testing.T, opts ...RegistryOption) *Registry {
	t.Helper()
	reg := NewRegistry(opts...)
	_, err := reg.RegisterFunc(multiply, Params("a", "b"), Doc("Multiply two numbers"))
	require.NoError(t, err)
	_, err = reg.RegisterFunc(echo, Params("item"), Doc("Echo an item name"))
	require.NoError(t, err)
	_, err = reg.RegisterFunc(func(name, punct string) string { return "Hello, " + name + punct },
		Name("greet"), Params("name", "punct"), Default("punct", "!"), Doc("Greet someone"))
	require.NoError(t, err)
	return reg
}

func invokeText(t *testing.T, reg *Registry, text string) (Invocation, error) {
	t.Helper()
	call, err := Parse(text)
	require.NoError(t, err)
	return reg.Invoke(context.Background(), call)
}

func TestRegistry_Register_Invoke(t *testing.T) {
	t.Parallel()
	reg := newDemoRegistry(t)
	inv, err := invokeText(t, reg, "multiply(2, 3)")
	require.NoError(t, err)
	assert.Equal(t, 6, inv.Result)
	assert.Equal(t, "multiply", inv.Tool)
	assert.Equal(t, uuid.Version(7), inv.ID.Version())
	assert.Positive(t, inv.Elapsed)
}

func TestRegistry_Invoke_StructArgument(t *testing.T) {
	t.Parallel()
	reg := newDemoRegistry(t)
	inv, err := invokeText(t, reg, "echo({'name': 'hi'})")
	require.NoError(t, err)
	assert.Equal(t, "hi", inv.Result)
}

func TestRegistry_Invoke_UnknownTool(t *testing.T) {
	t.Parallel()
	reg := newDemoRegistry(t)
	_, err := invokeText(t, reg, "unknown(1)")
	require.Error(t, err)
	var unknown *UnknownToolError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "unknown", unknown.Name)
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestRegistry_Invoke_Arity(t *testing.T) {
	t.Parallel()
	reg := newDemoRegistry(t)
	_, err := invokeText(t, reg, "multiply(2)")
	var arity *ArityError
	require.ErrorAs(t, err, &arity)
	assert.Equal(t, ArityError{Tool: "multiply", Min: 2, Max: 2, Got: 1}, *arity)
	assert.Equal(t, "multiply: expected 2 arguments, got 1", err.Error())

	_, err = invokeText(t, reg, "multiply(1, 2, 3)")
	require.ErrorIs(t, err, ErrArity)

	_, err = invokeText(t, reg, "greet()")
	require.ErrorAs(t, err, &arity)
	assert.Equal(t, "greet: expected 1 to 2 arguments, got 0", err.Error())
}

func TestRegistry_Invoke_TrailingDefault(t *testing.T) {
	t.Parallel()
	reg := newDemoRegistry(t)
	inv, err := invokeText(t, reg, `greet("Ann")`)
	require.NoError(t, err)
	assert.Equal(t, "Hello, Ann!", inv.Result)

	inv, err = invokeText(t, reg, `greet("Ann", )`)
	require.NoError(t, err)
	assert.Equal(t, "Hello, Ann!", inv.Result)

	inv, err = invokeText(t, reg, `greet("Ann", "?")`)
	require.NoError(t, err)
	assert.Equal(t, "Hello, Ann?", inv.Result)
}

func TestRegistry_Invoke_SeveralOmittedDefaults(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	_, err := reg.RegisterFunc(func(a, b, c int) int { return a + b + c },
		Name("f"), Params("a", "b", "c"), Default("b", 10), Default("c", 100))
	require.NoError(t, err)
	assert.Contains(t, reg.Grammar().String(), `<f> ::= "f(" <int> ", " [ <int> ] ", " [ <int> ] ")"`)

	tests := []struct {
		text string
		want int
	}{
		{"f(1, , )", 111},
		{"f(1, 2, )", 103},
		{"f(1, 2, 3)", 6},
		{"f(1)", 111},
	}
	for _, tt := range tests {
		inv, err := invokeText(t, reg, tt.text)
		require.NoError(t, err, tt.text)
		assert.Equal(t, tt.want, inv.Result, tt.text)
	}

	_, err = Parse("f(1, , 3)")
	require.ErrorIs(t, err, ErrParse)
}

func TestRegistry_Invoke_StrictArity(t *testing.T) {
	t.Parallel()
	reg := newDemoRegistry(t, WithStrictArity())
	_, err := invokeText(t, reg, `greet("Ann")`)
	var arity *ArityError
	require.ErrorAs(t, err, &arity)
	assert.Equal(t, 2, arity.Min)
}

func TestRegistry_Invoke_Coercion(t *testing.T) {
	t.Parallel()
	reg := newDemoRegistry(t)
	inv, err := invokeText(t, reg, `multiply("4", 2.0)`)
	require.NoError(t, err)
	assert.Equal(t, 8, inv.Result)

	_, err = invokeText(t, reg, `multiply("four", 2)`)
	var typeErr *TypeCoercionError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, "a", typeErr.Param)

	_, err = invokeText(t, reg, `echo({'title': 'hi'})`)
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, "item", typeErr.Param)
	assert.Contains(t, err.Error(), "name")
}

func TestRegistry_Invoke_ExecutionError(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	_, err := reg.RegisterFunc(func(n int) (int, error) {
		if n == 0 {
			return 0, errors.New("division by zero")
		}
		return 10 / n, nil
	}, Name("divide"), Params("n"))
	require.NoError(t, err)

	_, err = invokeText(t, reg, "divide(0)")
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "division by zero", err.Error())
	assert.Equal(t, "divide", execErr.Tool)
	assert.True(t, IsSystemError(err))
	assert.False(t, IsClientError(err))
}

func TestRegistry_Invoke_PanicRecovery(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	_, err := reg.RegisterFunc(func() int { panic("oops") }, Name("boom"))
	require.NoError(t, err)
	_, err = invokeText(t, reg, "boom()")
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, err.Error(), "panic: oops")
}

func TestRegistry_Invoke_PanicWithoutRecovery(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(WithRecoverPanics(false))
	_, err := reg.RegisterFunc(func() int { panic("oops") }, Name("boom"))
	require.NoError(t, err)
	assert.Panics(t, func() {
		_, _ = reg.Invoke(context.Background(), ParsedCall{Name: "boom", Args: []any{}})
	})
}

func TestRegistry_Register_Rejects(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	var regErr *RegistrationError

	err := reg.Register(nil)
	require.ErrorAs(t, err, &regErr)

	_, err = reg.RegisterFunc(func(v any) any { return v }, Name("untyped"), Params("v"))
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "untyped", regErr.Tool)
	assert.Equal(t, "v", regErr.Param)
	assert.ErrorIs(t, err, ErrRegistration)

	_, err = reg.RegisterFunc(func(int) {}, Name("bad name"))
	require.ErrorAs(t, err, &regErr)

	dup, err := NewDynamicTool("dup", []Param{{Name: "a", Type: Int}, {Name: "a", Type: Int}}, noop)
	require.NoError(t, err)
	require.ErrorAs(t, reg.Register(dup), &regErr)

	badDefault, err := NewDynamicTool("bd", []Param{{Name: "n", Type: Int, HasDefault: true, Default: "many"}}, noop)
	require.NoError(t, err)
	require.ErrorAs(t, reg.Register(badDefault), &regErr)
	assert.Contains(t, regErr.Error(), "default value")

	_, err = reg.RegisterFunc("not a func")
	require.ErrorAs(t, err, &regErr)

	assert.Empty(t, reg.Tools())
}

func TestRegistry_MustRegister_Panics(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	untyped, err := NewTool(func(v any) {}, Name("untyped"))
	require.NoError(t, err)
	assert.Panics(t, func() { reg.MustRegister(untyped) })
}

func TestRegistry_Tools_Order(t *testing.T) {
	t.Parallel()
	reg := newDemoRegistry(t)
	names := func() []string {
		var out []string
		for _, tool := range reg.Tools() {
			out = append(out, tool.Name())
		}
		return out
	}
	assert.Equal(t, []string{"multiply", "echo", "greet"}, names())

	replacement, err := NewTool(func(a, b int) int { return a + b }, Name("multiply"), Params("a", "b"))
	require.NoError(t, err)
	require.NoError(t, reg.Register(replacement))
	assert.Equal(t, []string{"multiply", "echo", "greet"}, names())
	got, ok := reg.Tool("multiply")
	require.True(t, ok)
	require.Same(t, replacement, got)

	_, ok = reg.Tool("missing")
	assert.False(t, ok)
}

func TestRegistry_Grammar_RootOrder(t *testing.T) {
	t.Parallel()
	reg := newDemoRegistry(t)
	g := reg.Grammar()
	assert.Equal(t, "<root> ::= <multiply> | <echo> | <greet>", g.Root)
	text := g.String()
	for _, name := range []string{"multiply", "echo", "greet"} {
		assert.Equal(t, 1, strings.Count(text, "\n<"+name+"> ::= "), name)
	}
}

func TestRegistry_Grammar_CachedAndRegenerated(t *testing.T) {
	t.Parallel()
	reg := newDemoRegistry(t)
	first := reg.Grammar()
	require.Same(t, first, reg.Grammar())
	assert.Equal(t, first.String(), reg.Grammar().String())

	_, err := reg.RegisterFunc(func() string { return "pong" }, Name("ping"))
	require.NoError(t, err)
	assert.NotContains(t, reg.Grammar().String(), "<ping>")

	regenerated := reg.RegenerateGrammar()
	assert.Contains(t, regenerated.String(), `<ping> ::= "ping("  ")"`)
	assert.Equal(t, "<root> ::= <multiply> | <echo> | <greet> | <ping>", regenerated.Root)
	require.Same(t, regenerated, reg.Grammar())
}

func TestRegistry_ConcurrentRegisterAndInvoke(t *testing.T) {
	t.Parallel()
	reg := newDemoRegistry(t)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			tool, err := NewDynamicTool("dyn", []Param{{Name: "n", Type: Int}}, func(_ context.Context, args []any) (any, error) {
				return args[0], nil
			})
			if err == nil {
				_ = reg.Register(tool)
			}
			_, _ = reg.Invoke(context.Background(), ParsedCall{Name: "multiply", Args: []any{int64(i), int64(2)}})
			_ = reg.RegenerateGrammar()
		})
	}
	wg.Wait()
	assert.Len(t, reg.Tools(), 4)
}

func TestRegistry_Hooks(t *testing.T) {
	t.Parallel()
	var before []ParsedCall
	var after []Invocation
	var afterErrs []error
	reg := newDemoRegistry(t,
		WithOnBeforeInvoke(func(_ context.Context, call ParsedCall) {
			before = append(before, call)
		}),
		WithOnAfterInvoke(func(_ context.Context, _ ParsedCall, inv Invocation, err error) {
			after = append(after, inv)
			afterErrs = append(afterErrs, err)
		}),
	)
	_, err := invokeText(t, reg, "multiply(2, 5)")
	require.NoError(t, err)
	_, err = invokeText(t, reg, "nope()")
	require.Error(t, err)

	require.Len(t, before, 2)
	assert.Equal(t, "multiply", before[0].Name)
	require.Len(t, after, 2)
	assert.Equal(t, 10, after[0].Result)
	require.NoError(t, afterErrs[0])
	assert.Equal(t, "nope", after[1].Tool)
	assert.ErrorIs(t, afterErrs[1], ErrToolNotFound)
}
