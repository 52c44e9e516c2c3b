package formula

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalExpr(t *testing.T, src string) Value {
	t.Helper()
	node, err := Parse(src)
	require.NoError(t, err)
	v, err := Eval(node, &Context{})
	require.NoError(t, err)
	return v
}

func TestMathFunctions(t *testing.T) {
	tests := []struct {
		src  string
		want Value
	}{
		{`ABS(-4)`, Number(4)},
		{`ABS(4)`, Number(4)},
		{`ROUND(3.333333, 2)`, Number(3.33)},
		{`ROUND(2.5)`, Number(3)},
		{`ROUND(10 / 3, 2)`, Number(3.33)},
		{`SUM(1, 2, 3)`, Number(6)},
		{`SUM()`, Number(0)},
		{`MIN(4, 2, 9)`, Number(2)},
		{`MAX(4, 2, 9)`, Number(9)},
		{`AVERAGE(2, 4, 6)`, Number(4)},
		{`COUNT(1, 2, 3)`, Number(3)},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, evalExpr(t, tt.src))
		})
	}
}

func TestMathFunctions_NullHandling(t *testing.T) {
	node, err := Parse(`SUM({A}, {B}, 3)`)
	require.NoError(t, err)
	bound, err := Bind(node, func(name string) (string, bool) { return "f" + name, true })
	require.NoError(t, err)

	// Null inputs are skipped, not zeroed into errors.
	v, err := Eval(bound, &Context{Values: map[string]Value{"fA": Number(2)}})
	require.NoError(t, err)
	assert.Equal(t, Number(5), v)

	// ABS of null is null.
	assert.True(t, evalExpr(t, `ABS(SUM()) - ABS(SUM())`).Kind() == KindNumber)
}

func TestAverageOfNothingErrors(t *testing.T) {
	v := evalExpr(t, `AVERAGE()`)
	require.True(t, v.IsError())
	assert.Equal(t, "ARGUMENT_ERROR", v.ErrorCode())
}

func TestMinMaxOfNothingIsNull(t *testing.T) {
	assert.True(t, evalExpr(t, `MIN()`).IsNull())
	assert.True(t, evalExpr(t, `MAX()`).IsNull())
}

func TestTextFunctions(t *testing.T) {
	tests := []struct {
		src  string
		want Value
	}{
		{`CONCATENATE("a", "b", "c")`, Text("abc")},
		{`CONCATENATE("n=", 2)`, Text("n=2")},
		{`LEFT("hello", 2)`, Text("he")},
		{`LEFT("hi", 10)`, Text("hi")},
		{`RIGHT("hello", 3)`, Text("llo")},
		{`MID("hello", 2, 3)`, Text("ell")},
		{`MID("hi", 9, 3)`, Text("")},
		{`LEN("héllo")`, Number(5)},
		{`LEN(CONCATENATE("", ""))`, Number(0)},
		{`UPPER("abc")`, Text("ABC")},
		{`LOWER("AbC")`, Text("abc")},
		{`TRIM("  x  ")`, Text("x")},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, evalExpr(t, tt.src))
		})
	}
}

func TestConcatenateRendersNullEmpty(t *testing.T) {
	node, err := Parse(`CONCATENATE("a", {Gone}, "b")`)
	require.NoError(t, err)
	bound, err := Bind(node, func(string) (string, bool) { return "fgone", true })
	require.NoError(t, err)
	v, err := Eval(bound, &Context{})
	require.NoError(t, err)
	assert.Equal(t, Text("ab"), v)
}

func TestDateFunctions(t *testing.T) {
	fixed := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	ctx := &Context{Clock: func() time.Time { return fixed }}

	eval := func(src string) Value {
		node, err := Parse(src)
		require.NoError(t, err)
		v, err := Eval(node, ctx)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, Number(2026), eval(`YEAR(NOW())`))
	assert.Equal(t, Number(8), eval(`MONTH(TODAY())`))
	assert.Equal(t, Number(30), eval(`DAY(TODAY())`))
	assert.Equal(t, Number(0), eval(`DATEDIFF(NOW(), NOW(), "days")`))

	plusWeek := eval(`DATEADD(TODAY(), 7, "days")`)
	require.Equal(t, KindDate, plusWeek.Kind())
	assert.Equal(t, time.Date(2026, 9, 6, 0, 0, 0, 0, time.UTC), plusWeek.Time())

	assert.Equal(t, Number(7), eval(`DATEDIFF(DATEADD(TODAY(), 7, "days"), TODAY(), "days")`))
	assert.Equal(t, Number(2), eval(`DATEDIFF(DATEADD(TODAY(), 2, "months"), TODAY(), "months")`))
}

func TestDateFunctions_TextDates(t *testing.T) {
	// Stored dates arrive as strings; date functions parse both layouts.
	assert.Equal(t, Number(2024), evalExpr(t, `YEAR("2024-05-01")`))
	assert.Equal(t, Number(5), evalExpr(t, `MONTH("2024-05-01T10:30:00Z")`))

	v := evalExpr(t, `YEAR("not a date")`)
	require.True(t, v.IsError())
	assert.Equal(t, "ARGUMENT_ERROR", v.ErrorCode())
}

func TestDateAdd_BadUnit(t *testing.T) {
	v := evalExpr(t, `DATEADD("2024-01-01", 1, "fortnights")`)
	require.True(t, v.IsError())
	assert.Equal(t, "ARGUMENT_ERROR", v.ErrorCode())
}

func TestArrayFunctions(t *testing.T) {
	fields := map[string]string{"Tags": "ftags"}
	values := map[string]Value{
		"ftags": Array([]Value{Text("a"), Text("b"), Text("a"), Null()}),
	}

	v := evalSrc(t, `ARRAYJOIN({Tags}, "; ")`, fields, values)
	assert.Equal(t, Text("a; b; a"), v)

	v = evalSrc(t, `ARRAYJOIN({Tags})`, fields, values)
	assert.Equal(t, Text("a, b, a"), v)

	v = evalSrc(t, `ARRAYUNIQUE({Tags})`, fields, values)
	require.Equal(t, KindArray, v.Kind())
	require.Len(t, v.Items(), 3)
	assert.Equal(t, Text("a"), v.Items()[0])
	assert.Equal(t, Text("b"), v.Items()[1])
	assert.True(t, v.Items()[2].IsNull())

	// A scalar joins as itself.
	assert.Equal(t, Text("42"), evalExpr(t, `ARRAYJOIN(42)`))
}

func TestFunctionDefinitionsCatalog(t *testing.T) {
	defs := FunctionDefinitions()
	require.NotEmpty(t, defs)
	for i := 1; i < len(defs); i++ {
		assert.Less(t, defs[i-1].Name, defs[i].Name, "catalog must be sorted")
	}
	names := make(map[string]bool, len(defs))
	for _, def := range defs {
		names[def.Name] = true
		assert.NotEmpty(t, def.Usage)
	}
	for _, want := range []string{"IF", "SUM", "CONCATENATE", "NOW", "ARRAYJOIN"} {
		assert.True(t, names[want], want)
	}
}
