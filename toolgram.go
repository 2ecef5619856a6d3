package toolgram

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Kind is the closed set of parameter type categories a tool may declare.
// The zero value means "no declared type" and is rejected at registration.
type Kind int

const (
	KindInvalid Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindStruct
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindStruct:
		return "object"
	case KindList:
		return "list"
	default:
		return "invalid"
	}
}

// Type describes a declared parameter type. Fields is set for KindStruct, Elem for KindList.
type Type struct {
	Kind   Kind
	Fields []Field
	Elem   *Type

	// goType is the exact Go type the handler expects; nil for dynamic tools,
	// in which case structs coerce to map[string]any and lists to []any.
	goType reflect.Type
	// index is the struct field index path inside the parent struct (fields only).
	index []int
}

// Field is one named member of a structured type.
type Field struct {
	Name     string
	Type     Type
	Required bool
}

// Primitive type shorthands for NewDynamicTool descriptors.
var (
	String = Type{Kind: KindString}
	Int    = Type{Kind: KindInt}
	Float  = Type{Kind: KindFloat}
	Bool   = Type{Kind: KindBool}
)

// Struct builds a structured type from its fields.
func Struct(fields ...Field) Type {
	return Type{Kind: KindStruct, Fields: fields}
}

// List builds a list type with the given element type.
func List(elem Type) Type {
	return Type{Kind: KindList, Elem: &elem}
}

// Param is one positional tool parameter in declaration order.
type Param struct {
	Name       string
	Type       Type
	HasDefault bool
	Default    any
}

// HandlerFunc receives coerced arguments in declaration order.
type HandlerFunc func(ctx context.Context, args []any) (any, error)

// ParsedCall is a call recovered from model output, before any tool-type knowledge is applied.
// Args hold string, int64, float64, bool, []any or map[string]any values.
type ParsedCall struct {
	Name string
	Args []any
}

// Invocation is the outcome of a successful validate-and-invoke step.
type Invocation struct {
	ID      uuid.UUID
	Tool    string
	Result  any
	Elapsed time.Duration
}

// GenerateRequest is what the pipeline hands to a generation engine.
type GenerateRequest struct {
	Prompt      string
	Grammar     string
	MaxTokens   int
	Temperature float64
}

// Engine is an external text generator that enforces Grammar during decoding.
// Implementations are not required to be safe for concurrent use; Pipeline serializes calls.
type Engine interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, req GenerateRequest) (string, error)

func (f EngineFunc) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return f(ctx, req)
}
