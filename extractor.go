package toolsynth

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/mohae/deepcopy"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Extractor provides JSON Schema generation and two-layer validation (schema + Validatable)
// for type T. Oracle adapters use it to demand a reply shape and to parse replies.
type Extractor[T any] struct {
	schemaMap map[string]any
	compiled  *jsonschema.Schema
}

// NewExtractor creates an Extractor for type T. When strict is true, the generated schema
// has additionalProperties: false for all objects and all properties required.
func NewExtractor[T any](strict bool) (*Extractor[T], error) {
	schemaMap, compiled, err := generateSchema[T](strict)
	if err != nil {
		return nil, err
	}
	return &Extractor[T]{schemaMap: schemaMap, compiled: compiled}, nil
}

// Schema returns a deep copy of the JSON Schema.
func (e *Extractor[T]) Schema() map[string]any {
	out, _ := deepcopy.Copy(e.schemaMap).(map[string]any)
	return out
}

// ParseAndValidate deserializes data into T, runs schema validation, then
// Validatable.Validate() if T implements it. Failures are ClientErrors.
func (e *Extractor[T]) ParseAndValidate(data []byte) (T, error) {
	var zero T
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return zero, wrapJSONParseError(err)
	}
	if err := validateAgainstSchema(e.compiled, inst); err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, wrapJSONParseError(err)
	}
	if err := runLayer2Validation(out); err != nil {
		if IsClientError(err) {
			return zero, err
		}
		return zero, &ClientError{Reason: err.Error(), Err: ErrValidation}
	}
	return out, nil
}

// runLayer2Validation runs Validatable.Validate() on v; if v does not implement Validatable,
// it tries &v for value types (pointer receiver). Never calls Validate twice.
func runLayer2Validation[T any](v T) error {
	if err := validateCustom(any(v)); err != nil {
		return err
	}
	if _, ok := any(v).(Validatable); ok {
		return nil
	}
	typ := reflect.TypeOf(v)
	if typ == nil || typ.Kind() == reflect.Pointer {
		return nil
	}
	return validateCustom(any(&v))
}
