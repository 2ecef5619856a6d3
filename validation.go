package toolgram

import (
	"reflect"

	"github.com/goccy/go-json"
	"github.com/google/jsonschema-go/jsonschema"
)

// Validatable is implemented by structured argument types that need business validation.
// It runs after the literal has been coerced field by field.
type Validatable interface {
	Validate() error
}

// schemaValidator validates a JSON-like value. *jsonschema.Resolved implements it.
type schemaValidator interface {
	Validate(v any) error
}

// compileTypeValidator compiles the JSON Schema of a declared type into a validator.
func compileTypeValidator(t Type) (schemaValidator, error) {
	schemaMap, err := typeSchemaMap(t)
	if err != nil {
		return nil, err
	}
	resolved, err := compileRawSchema(schemaMap)
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// compileRawSchema compiles a raw JSON Schema map into a resolved validator. The map is not mutated.
func compileRawSchema(schemaMap map[string]any) (*jsonschema.Resolved, error) {
	data, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, err
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return s.Resolve(nil)
}

// validateLiteral runs schema validation on a literal. The literal is first normalized to its
// JSON form so typed defaults and parsed literals are checked the same way.
func validateLiteral(validate schemaValidator, lit any) error {
	data, err := json.Marshal(lit)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return validate.Validate(v)
}

// validateCustom runs Validatable on v, trying the value first and then its address so both
// value and pointer receivers are honoured. Validate is never called twice.
func validateCustom(v reflect.Value) error {
	if !v.IsValid() {
		return nil
	}
	if c, ok := v.Interface().(Validatable); ok {
		if v.Kind() == reflect.Pointer && v.IsNil() {
			return nil
		}
		return c.Validate()
	}
	if v.Kind() == reflect.Pointer {
		return nil
	}
	p := reflect.New(v.Type())
	p.Elem().Set(v)
	if c, ok := p.Interface().(Validatable); ok {
		return c.Validate()
	}
	return nil
}
