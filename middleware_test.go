package toolgram

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithLogging(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	reg := newDemoRegistry(t)
	reg.Use(WithLogging(logger))
	inv, err := invokeText(t, reg, "multiply(3, 3)")
	require.NoError(t, err)
	assert.Equal(t, 9, inv.Result)
	logStr := buf.String()
	assert.Contains(t, logStr, "tool start")
	assert.Contains(t, logStr, "tool end")
	assert.Contains(t, logStr, "multiply")
}

func TestWithLogging_Error(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	reg := NewRegistry()
	reg.Use(WithLogging(logger))
	_, err := reg.RegisterFunc(func() error { return assert.AnError }, Name("fail"))
	require.NoError(t, err)
	_, err = reg.Invoke(context.Background(), ParsedCall{Name: "fail"})
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, buf.String(), "tool error")
}

func TestWithRecovery(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(WithRecoverPanics(false))
	reg.Use(WithRecovery())
	_, err := reg.RegisterFunc(func() int { panic("test panic") }, Name("panic_me"))
	require.NoError(t, err)
	inv, err := reg.Invoke(context.Background(), ParsedCall{Name: "panic_me"})
	require.Error(t, err)
	assert.Nil(t, inv.Result)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "panic_me", execErr.Tool)
	assert.Contains(t, execErr.Err.Error(), "panic")
}

func TestWithTimeoutMiddleware(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.Use(WithTimeoutMiddleware(5 * time.Millisecond))
	_, err := reg.RegisterFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, Name("slow"))
	require.NoError(t, err)
	_, err = reg.Invoke(context.Background(), ParsedCall{Name: "slow"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrExecution)
}

func TestWithTimeoutMiddleware_Disabled(t *testing.T) {
	t.Parallel()
	called := false
	next := func(context.Context, []any) (any, error) {
		called = true
		return nil, nil
	}
	h := WithTimeoutMiddleware(0)(nil, next)
	_, err := h(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestRegistry_Use_Order(t *testing.T) {
	t.Parallel()
	var trace []string
	mark := func(name string) Middleware {
		return func(_ *Tool, next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, args []any) (any, error) {
				trace = append(trace, name)
				return next(ctx, args)
			}
		}
	}
	reg := newDemoRegistry(t)
	reg.Use(mark("outer"), mark("inner"))
	_, err := invokeText(t, reg, "multiply(1, 1)")
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, trace)

	// Use replaces the chain instead of stacking it.
	trace = nil
	reg.Use(mark("only"))
	_, err = invokeText(t, reg, "multiply(1, 1)")
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, trace)
}
