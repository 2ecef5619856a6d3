package main

import (
	"errors"
	"strings"

	"github.com/skosovsky/toolgram"
)

// Item is the structured argument of echo.
type Item struct {
	Name string   `json:"name"`
	Tags []string `json:"tags,omitempty"`
}

func (it Item) Validate() error {
	if strings.TrimSpace(it.Name) == "" {
		return errors.New("name must not be blank")
	}
	return nil
}

func add(a, b float64) float64 { return a + b }

func multiply(a, b int) int { return a * b }

func echo(it Item) string {
	if len(it.Tags) == 0 {
		return it.Name
	}
	return it.Name + " [" + strings.Join(it.Tags, ", ") + "]"
}

func greet(name, punct string) string { return "Hello, " + name + punct }

func repeat(n int, s string) string {
	if n < 0 {
		n = 0
	}
	return strings.Repeat(s, n)
}

const repeatDoc = `Repeat a string n times.

Grammar:
    <repeat> ::= "repeat(" <int> ", " <string> ")"
`

// demoRegistry registers the tools the CLI and HTTP API serve.
func demoRegistry(opts ...toolgram.RegistryOption) (*toolgram.Registry, error) {
	reg := toolgram.NewRegistry(opts...)
	specs := []struct {
		fn      any
		options []toolgram.ToolOption
	}{
		{add, []toolgram.ToolOption{toolgram.Params("a", "b"), toolgram.Doc("Add two numbers")}},
		{multiply, []toolgram.ToolOption{toolgram.Params("a", "b"), toolgram.Doc("Multiply two integers")}},
		{echo, []toolgram.ToolOption{toolgram.Params("item"), toolgram.Doc("Echo an item name and its tags")}},
		{greet, []toolgram.ToolOption{
			toolgram.Params("name", "punct"), toolgram.Default("punct", "!"), toolgram.Doc("Greet someone"),
		}},
		{repeat, []toolgram.ToolOption{toolgram.Params("n", "s"), toolgram.Doc(repeatDoc)}},
	}
	for _, s := range specs {
		if _, err := reg.RegisterFunc(s.fn, s.options...); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
