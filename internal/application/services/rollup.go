package services

import (
	"strings"

	"github.com/dmdorta1111/AirTable-sub000/internal/domain/models"
	"github.com/dmdorta1111/AirTable-sub000/pkg/formula"
)

// Aggregate applies a rollup aggregation to the values gathered from linked
// records. Numeric aggregations skip nulls; an empty input yields zero for
// sum and the counting forms, null for avg/min/max.
func Aggregate(agg string, values []formula.Value) formula.Value {
	for _, v := range values {
		if v.IsError() {
			return v
		}
	}

	switch strings.ToLower(agg) {
	case models.AggSum:
		nums, errVal := numericValues(agg, values)
		if errVal != nil {
			return *errVal
		}
		var sum float64
		for _, n := range nums {
			sum += n
		}
		return formula.Number(sum)

	case models.AggAvg:
		nums, errVal := numericValues(agg, values)
		if errVal != nil {
			return *errVal
		}
		if len(nums) == 0 {
			return formula.Null()
		}
		var sum float64
		for _, n := range nums {
			sum += n
		}
		return formula.Number(sum / float64(len(nums)))

	case models.AggMin, models.AggMax:
		nums, errVal := numericValues(agg, values)
		if errVal != nil {
			return *errVal
		}
		if len(nums) == 0 {
			return formula.Null()
		}
		best := nums[0]
		for _, n := range nums[1:] {
			if strings.EqualFold(agg, models.AggMin) && n < best {
				best = n
			}
			if strings.EqualFold(agg, models.AggMax) && n > best {
				best = n
			}
		}
		return formula.Number(best)

	case models.AggCount:
		// count considers numeric values only.
		n := 0
		for _, v := range values {
			if v.Kind() == formula.KindNumber {
				n++
			}
		}
		return formula.Number(float64(n))

	case models.AggCountA:
		n := 0
		for _, v := range values {
			if !v.IsNull() {
				n++
			}
		}
		return formula.Number(float64(n))

	case models.AggConcat:
		parts := make([]string, 0, len(values))
		for _, v := range values {
			if v.IsNull() {
				continue
			}
			parts = append(parts, v.String())
		}
		return formula.Text(strings.Join(parts, ", "))

	case models.AggArrayUnique:
		return formula.UniqueArray(values)

	case models.AggArrayFlatten:
		return formula.FlattenArray(values)
	}

	return formula.NewError("ARGUMENT_ERROR", "unknown aggregation: "+agg)
}

// numericValues extracts the numbers from a rollup input, skipping nulls.
// A non-numeric, non-null value poisons the aggregation.
func numericValues(agg string, values []formula.Value) ([]float64, *formula.Value) {
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		switch v.Kind() {
		case formula.KindNull:
		case formula.KindNumber:
			nums = append(nums, v.Float())
		case formula.KindArray:
			inner, errVal := numericValues(agg, v.Items())
			if errVal != nil {
				return nil, errVal
			}
			nums = append(nums, inner...)
		default:
			errVal := formula.NewError("TYPE_MISMATCH",
				agg+" expects numeric values, got "+v.Kind().String())
			return nil, &errVal
		}
	}
	return nums, nil
}
