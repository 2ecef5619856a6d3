package toolgram

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// coerceError locates a failed conversion inside a nested literal.
type coerceError struct {
	path   string
	reason string
	err    error
}

func (e *coerceError) Error() string { return e.reason }

// at prefixes the error path with a field name or list index.
func (e *coerceError) at(seg string) *coerceError {
	switch {
	case e.path == "":
		e.path = seg
	case strings.HasPrefix(e.path, "["):
		e.path = seg + e.path
	default:
		e.path = seg + "." + e.path
	}
	return e
}

func mismatch(want string, lit any) *coerceError {
	return &coerceError{reason: fmt.Sprintf("expected %s, got %s", want, literalKind(lit))}
}

// coerceArg converts one call literal into the value passed to the handler for p.
func coerceArg(tool string, p Param, validator schemaValidator, lit any) (any, error) {
	if validator != nil {
		if err := validateLiteral(validator, lit); err != nil {
			return nil, &TypeCoercionError{Tool: tool, Param: p.Name, Reason: err.Error(), Err: err}
		}
	}
	v, cerr := coerce(lit, p.Type)
	if cerr != nil {
		return nil, &TypeCoercionError{Tool: tool, Param: p.Name, Field: cerr.path, Reason: cerr.reason, Err: cerr.err}
	}
	return v, nil
}

// coerce applies the closed set of conversion rules for t. With a Go type attached the result
// has exactly that type; otherwise it is string, int64, float64, bool, []any or map[string]any.
func coerce(lit any, t Type) (any, *coerceError) {
	if lit == nil {
		return nil, &coerceError{reason: "missing value"}
	}
	if t.goType != nil && reflect.TypeOf(lit) == t.goType {
		return lit, nil
	}
	switch t.Kind {
	case KindString:
		s, err := toString(lit)
		if err != nil {
			return nil, err
		}
		return settle(reflect.ValueOf(s), t)
	case KindInt:
		n, err := toInt(lit)
		if err != nil {
			return nil, err
		}
		return settle(reflect.ValueOf(n), t)
	case KindFloat:
		f, err := toFloat(lit)
		if err != nil {
			return nil, err
		}
		return settle(reflect.ValueOf(f), t)
	case KindBool:
		b, err := toBool(lit)
		if err != nil {
			return nil, err
		}
		return settle(reflect.ValueOf(b), t)
	case KindList:
		return coerceList(lit, t)
	case KindStruct:
		return coerceStruct(lit, t)
	default:
		return nil, &coerceError{reason: "parameter has no declared type"}
	}
}

func toString(lit any) (string, *coerceError) {
	switch v := lit.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	}
	if n, ok := asInt64(lit); ok {
		return strconv.FormatInt(n, 10), nil
	}
	if f, ok := asFloat64(lit); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	if rv := reflect.ValueOf(lit); rv.Kind() == reflect.String {
		return rv.String(), nil
	}
	return "", mismatch("string", lit)
}

func toInt(lit any) (int64, *coerceError) {
	if n, ok := asInt64(lit); ok {
		return n, nil
	}
	if f, ok := asFloat64(lit); ok {
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, &coerceError{reason: fmt.Sprintf("%v is not an integer", f)}
		}
		return int64(f), nil
	}
	if s, ok := lit.(string); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, &coerceError{reason: fmt.Sprintf("%q is not an integer", s), err: err}
		}
		return n, nil
	}
	return 0, mismatch("int", lit)
}

func toFloat(lit any) (float64, *coerceError) {
	if f, ok := asFloat64(lit); ok {
		return f, nil
	}
	if n, ok := asInt64(lit); ok {
		return float64(n), nil
	}
	if s, ok := lit.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, &coerceError{reason: fmt.Sprintf("%q is not a number", s), err: err}
		}
		return f, nil
	}
	return 0, mismatch("float", lit)
}

func toBool(lit any) (bool, *coerceError) {
	switch v := lit.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, &coerceError{reason: fmt.Sprintf("%q is not a boolean", v), err: err}
		}
		return b, nil
	}
	return false, mismatch("bool", lit)
}

func coerceList(lit any, t Type) (any, *coerceError) {
	rv := reflect.ValueOf(lit)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, mismatch("list", lit)
	}
	n := rv.Len()
	if t.goType == nil {
		out := make([]any, n)
		for i := range n {
			v, err := coerce(rv.Index(i).Interface(), *t.Elem)
			if err != nil {
				return nil, err.at(fmt.Sprintf("[%d]", i))
			}
			out[i] = v
		}
		return out, nil
	}
	base := baseType(t.goType)
	var out reflect.Value
	if base.Kind() == reflect.Array {
		if n != base.Len() {
			return nil, &coerceError{reason: fmt.Sprintf("expected %d elements, got %d", base.Len(), n)}
		}
		out = reflect.New(base).Elem()
	} else {
		out = reflect.MakeSlice(base, n, n)
	}
	for i := range n {
		v, err := coerce(rv.Index(i).Interface(), *t.Elem)
		if err != nil {
			return nil, err.at(fmt.Sprintf("[%d]", i))
		}
		out.Index(i).Set(reflect.ValueOf(v))
	}
	return addressTo(out, t.goType).Interface(), nil
}

func coerceStruct(lit any, t Type) (any, *coerceError) {
	m, ok := lit.(map[string]any)
	if !ok {
		return nil, mismatch("mapping", lit)
	}
	var out reflect.Value
	if t.goType != nil {
		out = reflect.New(baseType(t.goType)).Elem()
	}
	fields := make(map[string]any, len(t.Fields))
	for _, f := range t.Fields {
		raw, present := m[f.Name]
		if !present || raw == nil {
			if f.Required {
				return nil, (&coerceError{reason: "required field is missing"}).at(f.Name)
			}
			continue
		}
		v, err := coerce(raw, f.Type)
		if err != nil {
			return nil, err.at(f.Name)
		}
		if out.IsValid() {
			out.FieldByIndex(f.Type.index).Set(reflect.ValueOf(v))
		} else {
			fields[f.Name] = v
		}
	}
	if !out.IsValid() {
		return fields, nil
	}
	if err := validateCustom(out); err != nil {
		return nil, &coerceError{reason: err.Error(), err: fmt.Errorf("%w: %w", ErrValidation, err)}
	}
	return addressTo(out, t.goType).Interface(), nil
}

// settle converts a canonical primitive into t's Go type, checking for overflow.
func settle(v reflect.Value, t Type) (any, *coerceError) {
	if t.goType == nil {
		return v.Interface(), nil
	}
	base := baseType(t.goType)
	out := reflect.New(base).Elem()
	switch base.Kind() {
	case reflect.String:
		out.SetString(v.String())
	case reflect.Bool:
		out.SetBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := v.Int()
		if out.OverflowInt(n) {
			return nil, &coerceError{reason: fmt.Sprintf("%d overflows %s", n, base)}
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n := v.Int()
		if n < 0 || out.OverflowUint(uint64(n)) {
			return nil, &coerceError{reason: fmt.Sprintf("%d overflows %s", n, base)}
		}
		out.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if out.OverflowFloat(f) {
			return nil, &coerceError{reason: fmt.Sprintf("%v overflows %s", f, base)}
		}
		out.SetFloat(f)
	default:
		return nil, &coerceError{reason: fmt.Sprintf("unsupported Go type %s", base)}
	}
	return addressTo(out, t.goType).Interface(), nil
}

func baseType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// addressTo wraps v in as many pointers as target has.
func addressTo(v reflect.Value, target reflect.Type) reflect.Value {
	if target.Kind() != reflect.Pointer {
		return v
	}
	inner := addressTo(v, target.Elem())
	p := reflect.New(target.Elem())
	p.Elem().Set(inner)
	return p
}

func asInt64(v any) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

func literalKind(lit any) string {
	switch lit.(type) {
	case nil:
		return "nothing"
	case string:
		return "string"
	case bool:
		return "bool"
	case []any:
		return "list"
	case map[string]any:
		return "mapping"
	}
	if _, ok := asInt64(lit); ok {
		return "int"
	}
	if _, ok := asFloat64(lit); ok {
		return "float"
	}
	return reflect.TypeOf(lit).String()
}
