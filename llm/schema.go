package llm

import (
	"encoding/json"
	"math"

	"github.com/danupratama/lunasin/errors"
)

// PropertyType is the JSON Schema scalar type of a response field.
type PropertyType string

const (
	TypeString  PropertyType = "string"
	TypeNumber  PropertyType = "number"
	TypeInteger PropertyType = "integer"
	TypeBoolean PropertyType = "boolean"
)

// Property describes one field of a structured response.
type Property struct {
	Type        PropertyType
	Description string
	Enum        []string
}

// Schema is a first-class description of the flat object a completion must
// return. The same value drives request construction (the provider is asked
// for strict structured output) and response validation (the returned JSON is
// checked against it before anyone trusts it).
type Schema struct {
	Name        string
	Description string
	Properties  map[string]Property
	Required    []string
}

// JSONMap renders the schema as a JSON Schema object suitable for provider
// request payloads.
func (s *Schema) JSONMap() map[string]interface{} {
	props := make(map[string]interface{}, len(s.Properties))
	for name, p := range s.Properties {
		prop := map[string]interface{}{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[name] = prop
	}
	return map[string]interface{}{
		"type":                 "object",
		"properties":           props,
		"required":             s.Required,
		"additionalProperties": false,
	}
}

// Validate checks a provider response against the schema: the payload must be
// a JSON object, every required field must be present, every present field
// must be declared and match its declared type, and enum values must be
// members of their enum.
func (s *Schema) Validate(raw []byte) error {
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return errors.WrapKind(err, errors.KindValidation, "completion is not a JSON object")
	}
	for _, name := range s.Required {
		if _, ok := obj[name]; !ok {
			return errors.WithKind(errors.KindValidation, "completion is missing required field %q", name)
		}
	}
	for name, value := range obj {
		prop, ok := s.Properties[name]
		if !ok {
			return errors.WithKind(errors.KindValidation, "completion has undeclared field %q", name)
		}
		if err := checkType(name, value, prop); err != nil {
			return err
		}
	}
	return nil
}

func checkType(name string, value interface{}, prop Property) error {
	switch prop.Type {
	case TypeString:
		str, ok := value.(string)
		if !ok {
			return errors.WithKind(errors.KindValidation, "field %q must be a string", name)
		}
		if len(prop.Enum) > 0 {
			for _, allowed := range prop.Enum {
				if str == allowed {
					return nil
				}
			}
			return errors.WithKind(errors.KindValidation, "field %q has value %q outside its enum", name, str)
		}
	case TypeNumber:
		if _, ok := value.(float64); !ok {
			return errors.WithKind(errors.KindValidation, "field %q must be a number", name)
		}
	case TypeInteger:
		num, ok := value.(float64)
		if !ok || num != math.Trunc(num) {
			return errors.WithKind(errors.KindValidation, "field %q must be an integer", name)
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return errors.WithKind(errors.KindValidation, "field %q must be a boolean", name)
		}
	}
	return nil
}
