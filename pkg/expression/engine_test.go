package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalBool(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		name      string
		condition string
		env       map[string]interface{}
		want      bool
	}{
		{"comparison", `Amount > 100`, map[string]interface{}{"Amount": 250.0}, true},
		{"comparison false", `Amount > 100`, map[string]interface{}{"Amount": 50.0}, false},
		{"string equality", `Status == "paid"`, map[string]interface{}{"Status": "paid"}, true},
		{"conjunction", `Amount > 0 && Status != "void"`, map[string]interface{}{"Amount": 10.0, "Status": "open"}, true},
		{"undefined variable is nil", `Missing == nil`, map[string]interface{}{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.EvalBool(tt.condition, tt.env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalBool_NonBooleanResult(t *testing.T) {
	e := NewEngine()
	_, err := e.EvalBool(`1 + 2`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want bool")
}

func TestValidate(t *testing.T) {
	e := NewEngine()
	assert.NoError(t, e.Validate(`Amount > 100`))
	assert.Error(t, e.Validate(`Amount >`))
}

func TestIdentifiers(t *testing.T) {
	e := NewEngine()

	names, err := e.Identifiers(`Amount > 100 && Status != "void" && Amount < Limit`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Amount", "Limit", "Status"}, names)

	names, err = e.Identifiers(`1 + 2 > 0`)
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = e.Identifiers(`Amount >`)
	assert.Error(t, err)
}

func TestProgramCacheReuse(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Validate(`X > 1`))
	// Second evaluation hits the cached program.
	got, err := e.EvalBool(`X > 1`, map[string]interface{}{"X": 2.0})
	require.NoError(t, err)
	assert.True(t, got)
	assert.Len(t, e.programCache, 1)
}
