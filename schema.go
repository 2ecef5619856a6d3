package toolgram

import (
	"reflect"

	"github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// paramReflector inlines every nested type and skips $id generation so each parameter schema
// stands alone inside the tool's object schema.
var paramReflector = jsonschema.Reflector{
	AllowAdditionalProperties: true,
	DoNotReference:            true,
	Anonymous:                 true,
}

// reflectParamsSchema builds the parameter object schema of a Go function tool by reflecting each
// parameter's Go type. start skips a leading context.Context.
func reflectParamsSchema(fn reflect.Type, start int, params []Param) *jsonschema.Schema {
	return objectSchema(params, func(i int, p Param) *jsonschema.Schema {
		if !p.Type.valid() {
			return &jsonschema.Schema{}
		}
		s := paramReflector.ReflectFromType(fn.In(start + i))
		s.Version = ""
		return s
	})
}

// paramsSchema builds the parameter object schema of a dynamic tool from its declared types.
func paramsSchema(params []Param) *jsonschema.Schema {
	return objectSchema(params, func(_ int, p Param) *jsonschema.Schema {
		return typeSchema(p.Type)
	})
}

func objectSchema(params []Param, build func(int, Param) *jsonschema.Schema) *jsonschema.Schema {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: orderedmap.New[string, *jsonschema.Schema](),
	}
	for i, p := range params {
		ps := build(i, p)
		if p.HasDefault {
			ps.Default = p.Default
		} else {
			schema.Required = append(schema.Required, p.Name)
		}
		schema.Properties.Set(p.Name, ps)
	}
	return schema
}

// typeSchema renders a declared Type as JSON Schema. Unknown kinds render as the empty schema.
func typeSchema(t Type) *jsonschema.Schema {
	switch t.Kind {
	case KindString:
		return &jsonschema.Schema{Type: "string"}
	case KindInt:
		return &jsonschema.Schema{Type: "integer"}
	case KindFloat:
		return &jsonschema.Schema{Type: "number"}
	case KindBool:
		return &jsonschema.Schema{Type: "boolean"}
	case KindList:
		s := &jsonschema.Schema{Type: "array"}
		if t.Elem != nil {
			s.Items = typeSchema(*t.Elem)
		}
		return s
	case KindStruct:
		s := &jsonschema.Schema{
			Type:       "object",
			Properties: orderedmap.New[string, *jsonschema.Schema](),
		}
		for _, f := range t.Fields {
			s.Properties.Set(f.Name, typeSchema(f.Type))
			if f.Required {
				s.Required = append(s.Required, f.Name)
			}
		}
		return s
	default:
		return &jsonschema.Schema{}
	}
}

// typeSchemaMap renders t as a plain JSON map, the form the validator compiles.
func typeSchemaMap(t Type) (map[string]any, error) {
	data, err := json.Marshal(typeSchema(t))
	if err != nil {
		return nil, err
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(data, &schemaMap); err != nil {
		return nil, err
	}
	return schemaMap, nil
}
