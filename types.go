package toolgram

import (
	"reflect"
	"strings"
)

// TypeOf maps a Go type to its declared Type. Strings, integers, floats, bools, structs and
// slices/arrays are recognized; pointers map to their element. Anything else (interfaces,
// maps, channels, functions, recursive structs) maps to KindInvalid.
//
// Struct fields follow encoding/json naming: the json tag name when present, "-" skips the
// field, and omitempty makes it optional. Unexported and embedded fields are ignored.
func TypeOf(t reflect.Type) Type {
	return typeOf(t, make(map[reflect.Type]bool))
}

func typeOf(t reflect.Type, seen map[reflect.Type]bool) Type {
	out := Type{goType: t}
	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	switch base.Kind() {
	case reflect.String:
		out.Kind = KindString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		out.Kind = KindInt
	case reflect.Float32, reflect.Float64:
		out.Kind = KindFloat
	case reflect.Bool:
		out.Kind = KindBool
	case reflect.Slice, reflect.Array:
		elem := typeOf(base.Elem(), seen)
		out.Kind = KindList
		out.Elem = &elem
	case reflect.Struct:
		if seen[base] {
			return out
		}
		seen[base] = true
		defer delete(seen, base)
		out.Kind = KindStruct
		for i := range base.NumField() {
			f := base.Field(i)
			if !f.IsExported() || f.Anonymous {
				continue
			}
			name, optional, skip := jsonFieldName(f)
			if skip {
				continue
			}
			ft := typeOf(f.Type, seen)
			ft.index = f.Index
			out.Fields = append(out.Fields, Field{Name: name, Type: ft, Required: !optional})
		}
	}
	return out
}

func jsonFieldName(f reflect.StructField) (name string, optional, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = f.Name
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" || opt == "omitzero" {
			optional = true
		}
	}
	return name, optional, false
}

// valid reports whether t and every nested type carry a declared Kind.
func (t Type) valid() bool {
	switch t.Kind {
	case KindString, KindInt, KindFloat, KindBool:
		return true
	case KindList:
		return t.Elem != nil && t.Elem.valid()
	case KindStruct:
		for _, f := range t.Fields {
			if !f.Type.valid() {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// needsSchema reports whether literals of t are checked against a JSON Schema before coercion.
func (t Type) needsSchema() bool {
	switch t.Kind {
	case KindStruct:
		return true
	case KindList:
		return t.Elem.needsSchema()
	default:
		return false
	}
}

// label is the human-readable type used in prompts.
func (t Type) label() string {
	if t.Kind == KindList && t.Elem != nil {
		return "list[" + t.Elem.label() + "]"
	}
	return t.Kind.String()
}
