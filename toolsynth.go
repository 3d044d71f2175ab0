package toolsynth

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mohae/deepcopy"
)

// Class is the behavioral class of a tool. It decides how the sandbox treats a call.
type Class int

const (
	// Computation tools derive output purely from their arguments.
	Computation Class = iota
	// Query tools read external state.
	Query
	// Action tools mutate external state.
	Action
)

var classNames = [...]string{"computation", "query", "action"}

func (c Class) String() string {
	if c < 0 || int(c) >= len(classNames) {
		return fmt.Sprintf("class(%d)", int(c))
	}
	return classNames[c]
}

// ParseClass parses a class name case-insensitively.
func ParseClass(s string) (Class, error) {
	for i, name := range classNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Class(i), nil
		}
	}
	return Computation, fmt.Errorf("unknown tool class %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Class) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Class) UnmarshalText(b []byte) error {
	parsed, err := ParseClass(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Field describes one input parameter or output field of a tool.
type Field struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// Example is a real recorded call of a tool, given to the schema oracle.
type Example struct {
	Arguments map[string]any `json:"arguments" yaml:"arguments"`
	Output    any            `json:"output,omitempty" yaml:"output,omitempty"`
}

// RawTool is a tool definition as found in a tool catalog, before normalization.
// Parameters is a JSON Schema object. The first tag is the primary category.
type RawTool struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Parameters  map[string]any `json:"parameters" yaml:"parameters"`
	Tags        []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Domain      string         `json:"domain,omitempty" yaml:"domain,omitempty"`
	Examples    []Example      `json:"examples,omitempty" yaml:"examples,omitempty"`
}

// ToolRecord is a normalized tool. It is immutable once built; accessors return copies.
type ToolRecord struct {
	name        string
	description string
	schema      map[string]any
	validator   schemaValidator
	inputs      []Field
	outputs     []Field
	class       Class
	tags        []string
	domain      string
}

// NewToolRecord builds a ToolRecord directly, without consulting any oracle.
// The input schema comes from WithInputSchema or is synthesized from WithInputs.
func NewToolRecord(name string, opts ...RecordOption) (*ToolRecord, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: empty tool name", ErrInvalidTool)
	}
	var o recordOptions
	for _, opt := range opts {
		opt(&o)
	}
	schema := o.schema
	if schema == nil {
		schema = schemaFromFields(o.inputs)
	}
	schemaCopy, err := copySchema(schema)
	if err != nil {
		return nil, fmt.Errorf("%w: tool %s: %w", ErrInvalidTool, name, err)
	}
	stripSchemaIDs(schemaCopy)
	compiled, err := compileRawSchema(schemaCopy)
	if err != nil {
		return nil, fmt.Errorf("%w: tool %s: compile input schema: %w", ErrInvalidTool, name, err)
	}
	inputs := fieldsFromSchema(schemaCopy)
	if o.schema == nil && len(o.inputs) > 0 {
		inputs = sortedFields(o.inputs)
	}
	return &ToolRecord{
		name:        name,
		description: o.description,
		schema:      schemaCopy,
		validator:   compiled,
		inputs:      inputs,
		outputs:     sortedFields(o.outputs),
		class:       o.class,
		tags:        slices.Clone(o.tags),
		domain:      o.domain,
	}, nil
}

func (t *ToolRecord) Name() string        { return t.name }
func (t *ToolRecord) Description() string { return t.description }
func (t *ToolRecord) Class() Class        { return t.class }
func (t *ToolRecord) Domain() string      { return t.domain }
func (t *ToolRecord) Tags() []string      { return slices.Clone(t.tags) }
func (t *ToolRecord) Inputs() []Field     { return slices.Clone(t.inputs) }
func (t *ToolRecord) Outputs() []Field    { return slices.Clone(t.outputs) }

// Schema returns a deep copy of the input JSON Schema.
func (t *ToolRecord) Schema() map[string]any {
	out, _ := deepcopy.Copy(t.schema).(map[string]any)
	return out
}

// OutputSchema returns an object schema describing the output fields.
func (t *ToolRecord) OutputSchema() map[string]any { return schemaFromFields(t.outputs) }

// PrimaryTag returns the first tag, or "" when the tool is untagged.
func (t *ToolRecord) PrimaryTag() string {
	if len(t.tags) == 0 {
		return ""
	}
	return t.tags[0]
}

// HasTag reports whether the tool carries tag (case-insensitive).
func (t *ToolRecord) HasTag(tag string) bool {
	return slices.ContainsFunc(t.tags, func(s string) bool { return strings.EqualFold(s, tag) })
}

// SharesTag reports whether t and other have at least one tag in common.
func (t *ToolRecord) SharesTag(other *ToolRecord) bool {
	return slices.ContainsFunc(t.tags, other.HasTag)
}

// Input returns the input field with the given name.
func (t *ToolRecord) Input(name string) (Field, bool) {
	i := slices.IndexFunc(t.inputs, func(f Field) bool { return f.Name == name })
	if i < 0 {
		return Field{}, false
	}
	return t.inputs[i], true
}

// RequiredInputs returns the names of required input fields, sorted.
func (t *ToolRecord) RequiredInputs() []string {
	var out []string
	for _, f := range t.inputs {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

func (t *ToolRecord) String() string {
	return fmt.Sprintf("%s(%s)", t.name, t.class)
}

func sortedFields(fields []Field) []Field {
	out := slices.Clone(fields)
	slices.SortFunc(out, func(a, b Field) int { return strings.Compare(a.Name, b.Name) })
	return out
}
