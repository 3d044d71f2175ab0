package toolsynth

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validatable is implemented by structs that need custom business validation.
// Called after schema validation and unmarshaling.
type Validatable interface {
	Validate() error
}

// schemaValidator validates a JSON-like value. *jsonschema.Schema implements it.
type schemaValidator interface {
	Validate(v any) error
}

// validateAgainstSchema runs Layer 1 validation on an already-parsed value.
func validateAgainstSchema(validate schemaValidator, v any) error {
	if err := validate.Validate(v); err != nil {
		return &ClientError{Reason: err.Error(), Err: ErrValidation}
	}
	return nil
}

// validateCustom runs Layer 2 (Validatable) if args implements it.
func validateCustom(args any) error {
	if v, ok := args.(Validatable); ok {
		return v.Validate()
	}
	return nil
}

// ValidateArguments checks args against the tool's input schema. Violations are returned
// as a *ClientError wrapping ErrValidation.
func ValidateArguments(tool *ToolRecord, args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	inst, err := toInstance(args)
	if err != nil {
		return &ClientError{Reason: fmt.Sprintf("arguments for %s are not JSON: %v", tool.Name(), err), Err: ErrValidation}
	}
	return validateAgainstSchema(tool.validator, inst)
}

// toInstance normalizes a Go value into the representation the validator expects.
func toInstance(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}
