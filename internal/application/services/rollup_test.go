package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmdorta1111/AirTable-sub000/internal/domain/models"
	"github.com/dmdorta1111/AirTable-sub000/pkg/formula"
)

func TestAggregateNumeric(t *testing.T) {
	vals := []formula.Value{
		formula.Number(10),
		formula.Null(),
		formula.Number(20),
		formula.Number(7.5),
	}

	tests := []struct {
		agg  string
		want float64
	}{
		{models.AggSum, 37.5},
		{models.AggAvg, 12.5},
		{models.AggMin, 7.5},
		{models.AggMax, 20},
		{models.AggCount, 3},
		{models.AggCountA, 3},
	}
	for _, tt := range tests {
		t.Run(tt.agg, func(t *testing.T) {
			got := Aggregate(tt.agg, vals)
			require.Equal(t, formula.KindNumber, got.Kind())
			assert.Equal(t, tt.want, got.Float())
		})
	}
}

func TestAggregateEmpty(t *testing.T) {
	// avg/min/max of nothing are null; sum and the counting forms are zero.
	for _, agg := range []string{models.AggAvg, models.AggMin, models.AggMax} {
		assert.True(t, Aggregate(agg, nil).IsNull(), agg)
	}
	assert.Equal(t, 0.0, Aggregate(models.AggSum, nil).Float())
	assert.Equal(t, 0.0, Aggregate(models.AggCount, nil).Float())
	assert.Equal(t, 0.0, Aggregate(models.AggCountA, nil).Float())
	assert.Equal(t, "", Aggregate(models.AggConcat, nil).Str())
}

func TestAggregateAllNulls(t *testing.T) {
	vals := []formula.Value{formula.Null(), formula.Null()}
	assert.Equal(t, 0.0, Aggregate(models.AggSum, vals).Float())
	assert.True(t, Aggregate(models.AggAvg, vals).IsNull())
	assert.Equal(t, 0.0, Aggregate(models.AggCount, vals).Float())
	assert.Equal(t, 0.0, Aggregate(models.AggCountA, vals).Float())
}

func TestAggregateCountKinds(t *testing.T) {
	vals := []formula.Value{
		formula.Number(1),
		formula.Text("x"),
		formula.Null(),
		formula.Bool(true),
	}
	// count sees numbers only; counta sees every non-null.
	assert.Equal(t, 1.0, Aggregate(models.AggCount, vals).Float())
	assert.Equal(t, 3.0, Aggregate(models.AggCountA, vals).Float())
}

func TestAggregateConcat(t *testing.T) {
	vals := []formula.Value{
		formula.Text("a"),
		formula.Null(),
		formula.Number(2),
		formula.Text("c"),
	}
	got := Aggregate(models.AggConcat, vals)
	require.Equal(t, formula.KindText, got.Kind())
	assert.Equal(t, "a, 2, c", got.Str())
}

func TestAggregateArrayForms(t *testing.T) {
	nested := []formula.Value{
		formula.Array([]formula.Value{formula.Number(1), formula.Number(2)}),
		formula.Number(2),
		formula.Number(1),
	}

	flat := Aggregate(models.AggArrayFlatten, nested)
	require.Equal(t, formula.KindArray, flat.Kind())
	assert.Len(t, flat.Items(), 4)

	uniq := Aggregate(models.AggArrayUnique, nested)
	require.Equal(t, formula.KindArray, uniq.Kind())
	assert.Len(t, uniq.Items(), 2)
	assert.Equal(t, 1.0, uniq.Items()[0].Float())
	assert.Equal(t, 2.0, uniq.Items()[1].Float())
}

func TestAggregateNestedArrayNumbers(t *testing.T) {
	vals := []formula.Value{
		formula.Array([]formula.Value{formula.Number(1), formula.Number(2)}),
		formula.Number(3),
	}
	got := Aggregate(models.AggSum, vals)
	require.Equal(t, formula.KindNumber, got.Kind())
	assert.Equal(t, 6.0, got.Float())
}

func TestAggregateTypeMismatch(t *testing.T) {
	vals := []formula.Value{formula.Number(1), formula.Text("oops")}
	got := Aggregate(models.AggSum, vals)
	require.True(t, got.IsError())
	assert.Equal(t, "TYPE_MISMATCH", got.ErrorCode())
}

func TestAggregateErrorPropagates(t *testing.T) {
	vals := []formula.Value{
		formula.Number(1),
		formula.NewError("DIVISION_BY_ZERO", "division by zero"),
	}
	got := Aggregate(models.AggSum, vals)
	require.True(t, got.IsError())
	assert.Equal(t, "DIVISION_BY_ZERO", got.ErrorCode())
}

func TestAggregateUnknown(t *testing.T) {
	got := Aggregate("median", []formula.Value{formula.Number(1)})
	require.True(t, got.IsError())
	assert.Equal(t, "ARGUMENT_ERROR", got.ErrorCode())
}
