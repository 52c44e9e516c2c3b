package fieldtypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLoadsAllTypes(t *testing.T) {
	r := GetRegistry()

	names := r.Names()
	assert.Equal(t, []string{
		"checkbox", "date", "formula", "link", "lookup", "number", "rollup", "text",
	}, names)
	assert.Len(t, r.All(), len(names))
}

func TestRegistryGet(t *testing.T) {
	r := GetRegistry()

	def, ok := r.Get("rollup")
	require.True(t, ok)
	assert.True(t, def.IsComputed)
	assert.Contains(t, def.Aggregations, "sum")
	assert.Contains(t, def.ConfigKeys, "aggregation")

	_, ok = r.Get("attachment")
	assert.False(t, ok)
}

func TestRegistryFlags(t *testing.T) {
	r := GetRegistry()

	assert.True(t, r.IsComputed("formula"))
	assert.True(t, r.IsComputed("lookup"))
	assert.False(t, r.IsComputed("number"))
	assert.False(t, r.IsComputed("unknown"))

	assert.NotEmpty(t, r.Aggregations("rollup"))
	assert.Empty(t, r.Aggregations("text"))
}
