package testutil

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/skosovsky/toolgram"
)

// Item is the structured argument of the echo tool in NewTestRegistry.
type Item struct {
	Name string `json:"name"`
}

// NewTestRegistry returns a Registry with a discarding logger and panic recovery enabled,
// holding the given tools. With no tools it registers a small demo set:
//
//	add(a: int, b: int)
//	echo(item: Item)
//	greet(name: string, punct: string = "!")
//	fail()
//
// fail always returns an error.
func NewTestRegistry(tools ...*toolgram.Tool) *toolgram.Registry {
	reg := toolgram.NewRegistry(
		toolgram.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		toolgram.WithRecoverPanics(true),
	)
	if len(tools) == 0 {
		tools = demoTools()
	}
	reg.MustRegister(tools...)
	return reg
}

// NewTool is toolgram.NewTool that panics on error.
func NewTool(fn any, options ...toolgram.ToolOption) *toolgram.Tool {
	t, err := toolgram.NewTool(fn, options...)
	if err != nil {
		panic(err)
	}
	return t
}

func demoTools() []*toolgram.Tool {
	return []*toolgram.Tool{
		NewTool(func(a, b int) int { return a + b },
			toolgram.Name("add"), toolgram.Params("a", "b"), toolgram.Doc("Add two numbers")),
		NewTool(func(it Item) string { return it.Name },
			toolgram.Name("echo"), toolgram.Params("item"), toolgram.Doc("Echo an item name")),
		NewTool(func(name, punct string) string { return "Hello, " + name + punct },
			toolgram.Name("greet"), toolgram.Params("name", "punct"), toolgram.Default("punct", "!"),
			toolgram.Doc("Greet someone")),
		NewTool(func(context.Context) (string, error) { return "", ErrToolFailed },
			toolgram.Name("fail"), toolgram.Doc("Always fails")),
	}
}

// ErrToolFailed is returned by the fail tool of the demo set.
var ErrToolFailed = errors.New("tool failed on purpose")
