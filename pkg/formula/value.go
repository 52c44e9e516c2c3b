package formula

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/dmdorta1111/AirTable-sub000/pkg/errors"
)

// Kind identifies the runtime type of a computed value.
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindText
	KindBool
	KindDate
	KindArray
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindBool:
		return "boolean"
	case KindDate:
		return "date"
	case KindArray:
		return "array"
	case KindError:
		return "error"
	}
	return "unknown"
}

// DateLayout is the wire format for date values.
const DateLayout = time.RFC3339

// Value is the tagged result of evaluating a computed field. A Value of
// KindError carries the error code and message for the offending cell; it is
// stored like any other value and never aborts sibling evaluations.
type Value struct {
	kind Kind
	num  float64
	str  string // text value, or error message for KindError
	b    bool
	t    time.Time
	arr  []Value
	code string // error code, only for KindError
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Text returns a text value.
func Text(s string) Value { return Value{kind: KindText, str: s} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Date returns a date value.
func Date(t time.Time) Value { return Value{kind: KindDate, t: t} }

// Array returns an array value over the given elements.
func Array(items []Value) Value { return Value{kind: KindArray, arr: items} }

// NewError returns an error value with the given code and message.
func NewError(code, message string) Value {
	return Value{kind: KindError, code: code, str: message}
}

// FromError converts a Go error into an error value, preserving the
// structured code when the error implements AppError.
func FromError(err error) Value {
	return NewError(apperrors.GetErrorCode(err), err.Error())
}

// Kind returns the value's runtime type tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsError reports whether the value is an error cell.
func (v Value) IsError() bool { return v.kind == KindError }

// Float returns the numeric payload. Only meaningful for KindNumber.
func (v Value) Float() float64 { return v.num }

// Str returns the text payload. Only meaningful for KindText.
func (v Value) Str() string { return v.str }

// BoolVal returns the boolean payload. Only meaningful for KindBool.
func (v Value) BoolVal() bool { return v.b }

// Time returns the date payload. Only meaningful for KindDate.
func (v Value) Time() time.Time { return v.t }

// Items returns the array payload. Only meaningful for KindArray.
func (v Value) Items() []Value { return v.arr }

// ErrorCode returns the error code for KindError values.
func (v Value) ErrorCode() string { return v.code }

// ErrorMessage returns the error message for KindError values.
func (v Value) ErrorMessage() string {
	if v.kind == KindError {
		return v.str
	}
	return ""
}

// Equal reports structural equality between two values.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindNumber:
		return v.num == o.num
	case KindText:
		return v.str == o.str
	case KindBool:
		return v.b == o.b
	case KindDate:
		return v.t.Equal(o.t)
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindError:
		return v.code == o.code && v.str == o.str
	}
	return false
}

// String renders the value for display and for CONCATENATE-style coercion.
// Null renders as the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindText:
		return v.str
	case KindBool:
		if v.b {
			return "TRUE"
		}
		return "FALSE"
	case KindDate:
		return v.t.Format(DateLayout)
	case KindArray:
		out := ""
		for i, item := range v.arr {
			if i > 0 {
				out += ", "
			}
			out += item.String()
		}
		return out
	case KindError:
		return fmt.Sprintf("#ERROR(%s)", v.code)
	}
	return ""
}

// MarshalJSON renders the value in the record-response wire shape. Error
// cells serialize as {"error": {"code", "message"}} so clients can render an
// error indicator on the offending cell.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

// ToAny converts the value into plain Go data for JSON responses and the
// record-storage boundary.
func (v Value) ToAny() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindNumber:
		return v.num
	case KindText:
		return v.str
	case KindBool:
		return v.b
	case KindDate:
		return v.t.Format(DateLayout)
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.ToAny()
		}
		return out
	case KindError:
		return map[string]any{
			"error": map[string]any{
				"code":    v.code,
				"message": v.str,
			},
		}
	}
	return nil
}

// FromAny converts raw stored data into a Value. Stored record values arrive
// as the JSON-ish types produced by the storage boundary.
func FromAny(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Text(x.String())
		}
		return Number(f)
	case bool:
		return Bool(x)
	case time.Time:
		return Date(x)
	case string:
		return Text(x)
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = FromAny(item)
		}
		return Array(items)
	case []Value:
		return Array(x)
	case []string:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = Text(item)
		}
		return Array(items)
	case map[string]any:
		// Round-trip of a stored error cell.
		if inner, ok := x["error"].(map[string]any); ok {
			code, _ := inner["code"].(string)
			msg, _ := inner["message"].(string)
			return NewError(code, msg)
		}
		return Null()
	default:
		return Text(fmt.Sprintf("%v", x))
	}
}

// flatten expands arrays into their scalar elements, recursively. Used by the
// variadic numeric functions and rollup aggregations.
func flatten(vals []Value) []Value {
	var out []Value
	for _, v := range vals {
		if v.kind == KindArray {
			out = append(out, flatten(v.arr)...)
		} else {
			out = append(out, v)
		}
	}
	return out
}

// uniqueValues returns the distinct elements of vals, first occurrence order.
func uniqueValues(vals []Value) []Value {
	var out []Value
	for _, v := range vals {
		dup := false
		for _, seen := range out {
			if seen.Equal(v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}

// FlattenArray expands nested arrays into a flat array value.
func FlattenArray(vals []Value) Value {
	return Array(flatten(vals))
}

// UniqueArray flattens vals and drops duplicates, keeping first occurrence
// order.
func UniqueArray(vals []Value) Value {
	return Array(uniqueValues(flatten(vals)))
}
