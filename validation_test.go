package toolsynth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateArguments(t *testing.T) {
	rec, err := NewToolRecord("search",
		WithInputSchema(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
				"limit": map[string]any{"type": "integer", "minimum": 1},
			},
			"required": []any{"query"},
		}),
	)
	require.NoError(t, err)

	tests := []struct {
		name    string
		args    map[string]any
		wantErr bool
	}{
		{"valid", map[string]any{"query": "go", "limit": 5}, false},
		{"float that is integral", map[string]any{"query": "go", "limit": 5.0}, false},
		{"missing required", map[string]any{"limit": 5}, true},
		{"below minimum", map[string]any{"query": "go", "limit": 0}, true},
		{"wrong type", map[string]any{"query": 3}, true},
		{"nil args", nil, true},
		{"not json", map[string]any{"query": "go", "fn": func() {}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArguments(rec, tt.args)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsClientError(err))
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}
