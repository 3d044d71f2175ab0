package toolsynth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExtractor_Strict(t *testing.T) {
	t.Parallel()
	type Reply struct {
		A string `json:"a"`
		B int    `json:"b"`
	}
	ext, err := NewExtractor[Reply](true)
	require.NoError(t, err)
	schema := ext.Schema()
	assert.Equal(t, false, schema["additionalProperties"])
	assert.Equal(t, []any{"a", "b"}, schema["required"])
}

func TestExtractor_ParseAndValidate_Success(t *testing.T) {
	t.Parallel()
	type Reply struct {
		X int    `json:"x"`
		S string `json:"s"`
	}
	ext, err := NewExtractor[Reply](false)
	require.NoError(t, err)
	out, err := ext.ParseAndValidate([]byte(`{"x": 42, "s": "hello"}`))
	require.NoError(t, err)
	assert.Equal(t, 42, out.X)
	assert.Equal(t, "hello", out.S)
}

func TestExtractor_ParseAndValidate_Failures(t *testing.T) {
	t.Parallel()
	type Reply struct {
		Kind string `json:"kind" enum:"full,partial,none"`
		N    int    `json:"n"`
	}
	ext, err := NewExtractor[Reply](true)
	require.NoError(t, err)
	tests := []struct {
		name string
		in   string
	}{
		{"invalid json", `{invalid`},
		{"wrong type", `{"kind":"full","n":"x"}`},
		{"bad enum", `{"kind":"maybe","n":1}`},
		{"missing required", `{"kind":"full"}`},
		{"extra property", `{"kind":"full","n":1,"extra":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ext.ParseAndValidate([]byte(tt.in))
			require.Error(t, err)
			assert.True(t, IsClientError(err))
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

type rangeReply struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (r *rangeReply) Validate() error {
	if r.Min > r.Max {
		return errors.New("min must be <= max")
	}
	return nil
}

func TestExtractor_ParseAndValidate_ValidatablePointer(t *testing.T) {
	t.Parallel()
	ext, err := NewExtractor[rangeReply](false)
	require.NoError(t, err)
	_, err = ext.ParseAndValidate([]byte(`{"min":1,"max":10}`))
	require.NoError(t, err)
	_, err = ext.ParseAndValidate([]byte(`{"min":10,"max":5}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}

type countingReply struct {
	V int `json:"v"`
}

var countingCalls int

func (c countingReply) Validate() error {
	countingCalls++
	return &ClientError{Reason: "always", Err: ErrValidation}
}

func TestExtractor_ValidatableClientErrorPassthrough(t *testing.T) {
	countingCalls = 0
	ext, err := NewExtractor[countingReply](false)
	require.NoError(t, err)
	_, err = ext.ParseAndValidate([]byte(`{"v":1}`))
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "always", ce.Reason)
	assert.Equal(t, 1, countingCalls)
}

func TestExtractor_Schema_ReturnsCopy(t *testing.T) {
	t.Parallel()
	type Reply struct {
		X int `json:"x"`
	}
	ext, err := NewExtractor[Reply](false)
	require.NoError(t, err)
	s := ext.Schema()
	s["type"] = "array"
	s["properties"].(map[string]any)["x"].(map[string]any)["type"] = "string"
	assert.Equal(t, "object", ext.Schema()["type"])
	props := ext.Schema()["properties"].(map[string]any)
	assert.Equal(t, "integer", props["x"].(map[string]any)["type"])
}
