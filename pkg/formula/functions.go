package formula

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/dmdorta1111/AirTable-sub000/pkg/errors"
)

// Thunk defers evaluation of an argument so short-circuiting functions only
// evaluate the branch they take.
type Thunk func() Value

// Function describes one entry in the closed built-in library. MaxArgs of -1
// means variadic. Exactly one of Impl and LazyImpl is set: strict functions
// receive evaluated arguments (error arguments are propagated before the call),
// lazy functions receive thunks and decide what to evaluate.
type Function struct {
	Name        string
	Category    string
	Description string
	Usage       string
	MinArgs     int
	MaxArgs     int
	Result      Kind // KindNull means the result type depends on the arguments
	Volatile    bool
	Impl        func(ctx *Context, args []Value) Value
	LazyImpl    func(ctx *Context, args []Thunk) Value
}

// FunctionDefinition is the API-facing shape of a library entry, served to
// clients for formula autocomplete.
type FunctionDefinition struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Usage       string `json:"usage"`
}

var library = buildLibrary()

// LookupFunction returns the library entry for a (case-insensitive) name.
func LookupFunction(name string) (*Function, bool) {
	fn, ok := library[strings.ToUpper(name)]
	return fn, ok
}

// FunctionDefinitions returns the full library catalog, sorted by name.
func FunctionDefinitions() []FunctionDefinition {
	out := make([]FunctionDefinition, 0, len(library))
	for _, fn := range library {
		out = append(out, FunctionDefinition{
			Name:        fn.Name,
			Category:    fn.Category,
			Description: fn.Description,
			Usage:       fn.Usage,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CheckCalls statically validates every function call in the tree: the name
// must exist in the library and the argument count must satisfy its arity.
func CheckCalls(n Node) error {
	var failure error
	Walk(n, func(node Node) {
		if failure != nil {
			return
		}
		call, ok := node.(*Call)
		if !ok {
			return
		}
		fn, found := LookupFunction(call.Name)
		if !found {
			failure = &apperrors.UnknownFunctionError{Name: call.Name}
			return
		}
		if err := checkArity(fn, len(call.Args)); err != nil {
			failure = err
		}
	})
	return failure
}

func checkArity(fn *Function, got int) error {
	if got < fn.MinArgs || (fn.MaxArgs >= 0 && got > fn.MaxArgs) {
		return &apperrors.ArgumentError{
			Function: fn.Name,
			Expected: arityString(fn),
			Got:      fmt.Sprintf("%d arguments", got),
		}
	}
	return nil
}

func arityString(fn *Function) string {
	switch {
	case fn.MaxArgs < 0:
		return fmt.Sprintf("at least %d arguments", fn.MinArgs)
	case fn.MinArgs == fn.MaxArgs:
		return fmt.Sprintf("%d arguments", fn.MinArgs)
	default:
		return fmt.Sprintf("%d to %d arguments", fn.MinArgs, fn.MaxArgs)
	}
}

func argError(name, expected, got string) Value {
	return FromError(&apperrors.ArgumentError{Function: name, Expected: expected, Got: got})
}

// numericInputs flattens arrays, drops nulls, and requires the rest to be
// numbers. The second return carries an error value when an input is neither
// numeric nor null.
func numericInputs(name string, args []Value) ([]float64, Value) {
	var nums []float64
	for _, v := range flatten(args) {
		switch v.Kind() {
		case KindNull:
		case KindNumber:
			nums = append(nums, v.Float())
		default:
			return nil, argError(name, "numeric arguments", v.Kind().String())
		}
	}
	return nums, Value{}
}

// truthy interprets a value as a condition. Null is false; numbers follow
// the nonzero convention. Text is not a condition.
func truthy(name string, v Value) (bool, Value) {
	switch v.Kind() {
	case KindBool:
		return v.BoolVal(), Value{}
	case KindNull:
		return false, Value{}
	case KindNumber:
		return v.Float() != 0, Value{}
	default:
		return false, argError(name, "boolean condition", v.Kind().String())
	}
}

// toDate accepts a date value or a date-formatted string, as stored record
// values arrive as JSON strings.
func toDate(name string, v Value) (time.Time, Value) {
	switch v.Kind() {
	case KindDate:
		return v.Time(), Value{}
	case KindText:
		if t, err := time.Parse(DateLayout, v.Str()); err == nil {
			return t, Value{}
		}
		if t, err := time.Parse("2006-01-02", v.Str()); err == nil {
			return t, Value{}
		}
		return time.Time{}, argError(name, "date", fmt.Sprintf("unparseable text %q", v.Str()))
	default:
		return time.Time{}, argError(name, "date", v.Kind().String())
	}
}

func buildLibrary() map[string]*Function {
	fns := []*Function{
		// ---- Math ----
		{
			Name: "ABS", Category: "Math", Description: "Absolute value of a number", Usage: "ABS(number)",
			MinArgs: 1, MaxArgs: 1, Result: KindNumber,
			Impl: func(_ *Context, args []Value) Value {
				if args[0].IsNull() {
					return Null()
				}
				if args[0].Kind() != KindNumber {
					return argError("ABS", "number", args[0].Kind().String())
				}
				return Number(math.Abs(args[0].Float()))
			},
		},
		{
			Name: "ROUND", Category: "Math", Description: "Rounds a number to the given precision", Usage: "ROUND(number, precision)",
			MinArgs: 1, MaxArgs: 2, Result: KindNumber,
			Impl: func(_ *Context, args []Value) Value {
				if args[0].IsNull() {
					return Null()
				}
				if args[0].Kind() != KindNumber {
					return argError("ROUND", "number", args[0].Kind().String())
				}
				precision := 0.0
				if len(args) == 2 {
					if args[1].Kind() != KindNumber {
						return argError("ROUND", "numeric precision", args[1].Kind().String())
					}
					precision = args[1].Float()
				}
				mult := math.Pow(10, math.Trunc(precision))
				return Number(math.Round(args[0].Float()*mult) / mult)
			},
		},
		{
			Name: "SUM", Category: "Math", Description: "Sum of numeric arguments; zero when empty", Usage: "SUM(number, ...)",
			MinArgs: 0, MaxArgs: -1, Result: KindNumber,
			Impl: func(_ *Context, args []Value) Value {
				nums, errv := numericInputs("SUM", args)
				if errv.IsError() {
					return errv
				}
				total := 0.0
				for _, n := range nums {
					total += n
				}
				return Number(total)
			},
		},
		{
			Name: "MAX", Category: "Math", Description: "Largest numeric argument", Usage: "MAX(number, ...)",
			MinArgs: 0, MaxArgs: -1, Result: KindNumber,
			Impl: func(_ *Context, args []Value) Value {
				nums, errv := numericInputs("MAX", args)
				if errv.IsError() {
					return errv
				}
				if len(nums) == 0 {
					return Null()
				}
				best := nums[0]
				for _, n := range nums[1:] {
					if n > best {
						best = n
					}
				}
				return Number(best)
			},
		},
		{
			Name: "MIN", Category: "Math", Description: "Smallest numeric argument", Usage: "MIN(number, ...)",
			MinArgs: 0, MaxArgs: -1, Result: KindNumber,
			Impl: func(_ *Context, args []Value) Value {
				nums, errv := numericInputs("MIN", args)
				if errv.IsError() {
					return errv
				}
				if len(nums) == 0 {
					return Null()
				}
				best := nums[0]
				for _, n := range nums[1:] {
					if n < best {
						best = n
					}
				}
				return Number(best)
			},
		},
		{
			Name: "AVERAGE", Category: "Math", Description: "Mean of numeric arguments; errors when empty", Usage: "AVERAGE(number, ...)",
			MinArgs: 0, MaxArgs: -1, Result: KindNumber,
			Impl: func(_ *Context, args []Value) Value {
				nums, errv := numericInputs("AVERAGE", args)
				if errv.IsError() {
					return errv
				}
				// AVERAGE of nothing is an error; the rollup avg
				// aggregation yields null instead. Both are intentional.
				if len(nums) == 0 {
					return argError("AVERAGE", "at least one numeric value", "0 values")
				}
				total := 0.0
				for _, n := range nums {
					total += n
				}
				return Number(total / float64(len(nums)))
			},
		},
		{
			Name: "COUNT", Category: "Math", Description: "Count of numeric arguments", Usage: "COUNT(value, ...)",
			MinArgs: 0, MaxArgs: -1, Result: KindNumber,
			Impl: func(_ *Context, args []Value) Value {
				count := 0
				for _, v := range flatten(args) {
					if v.Kind() == KindNumber {
						count++
					}
				}
				return Number(float64(count))
			},
		},

		// ---- Logical ----
		{
			Name: "AND", Category: "Logical", Description: "True when every condition is true; stops at the first false", Usage: "AND(condition, ...)",
			MinArgs: 1, MaxArgs: -1, Result: KindBool,
			LazyImpl: func(_ *Context, args []Thunk) Value {
				for _, arg := range args {
					v := arg()
					if v.IsError() {
						return v
					}
					ok, errv := truthy("AND", v)
					if errv.IsError() {
						return errv
					}
					if !ok {
						return Bool(false)
					}
				}
				return Bool(true)
			},
		},
		{
			Name: "OR", Category: "Logical", Description: "True when any condition is true; stops at the first true", Usage: "OR(condition, ...)",
			MinArgs: 1, MaxArgs: -1, Result: KindBool,
			LazyImpl: func(_ *Context, args []Thunk) Value {
				for _, arg := range args {
					v := arg()
					if v.IsError() {
						return v
					}
					ok, errv := truthy("OR", v)
					if errv.IsError() {
						return errv
					}
					if ok {
						return Bool(true)
					}
				}
				return Bool(false)
			},
		},
		{
			Name: "NOT", Category: "Logical", Description: "Logical negation", Usage: "NOT(condition)",
			MinArgs: 1, MaxArgs: 1, Result: KindBool,
			Impl: func(_ *Context, args []Value) Value {
				ok, errv := truthy("NOT", args[0])
				if errv.IsError() {
					return errv
				}
				return Bool(!ok)
			},
		},
		{
			Name: "IF", Category: "Logical", Description: "Conditional; only the taken branch is evaluated", Usage: "IF(condition, then, else)",
			MinArgs: 3, MaxArgs: 3, Result: KindNull,
			LazyImpl: func(_ *Context, args []Thunk) Value {
				cond := args[0]()
				if cond.IsError() {
					return cond
				}
				ok, errv := truthy("IF", cond)
				if errv.IsError() {
					return errv
				}
				if ok {
					return args[1]()
				}
				return args[2]()
			},
		},
		{
			Name: "TRUE", Category: "Logical", Description: "The boolean true value", Usage: "TRUE()",
			MinArgs: 0, MaxArgs: 0, Result: KindBool,
			Impl: func(_ *Context, _ []Value) Value { return Bool(true) },
		},
		{
			Name: "FALSE", Category: "Logical", Description: "The boolean false value", Usage: "FALSE()",
			MinArgs: 0, MaxArgs: 0, Result: KindBool,
			Impl: func(_ *Context, _ []Value) Value { return Bool(false) },
		},

		// ---- Text ----
		{
			Name: "CONCATENATE", Category: "Text", Description: "Joins values into one text value; null renders empty", Usage: "CONCATENATE(value, ...)",
			MinArgs: 1, MaxArgs: -1, Result: KindText,
			Impl: func(_ *Context, args []Value) Value {
				var sb strings.Builder
				for _, v := range args {
					sb.WriteString(v.String())
				}
				return Text(sb.String())
			},
		},
		{
			Name: "LEFT", Category: "Text", Description: "Leading characters of a text value", Usage: "LEFT(text, count)",
			MinArgs: 2, MaxArgs: 2, Result: KindText,
			Impl: func(_ *Context, args []Value) Value {
				return sliceText("LEFT", args[0], args[1], func(runes []rune, n int) []rune {
					if n > len(runes) {
						n = len(runes)
					}
					return runes[:n]
				})
			},
		},
		{
			Name: "RIGHT", Category: "Text", Description: "Trailing characters of a text value", Usage: "RIGHT(text, count)",
			MinArgs: 2, MaxArgs: 2, Result: KindText,
			Impl: func(_ *Context, args []Value) Value {
				return sliceText("RIGHT", args[0], args[1], func(runes []rune, n int) []rune {
					if n > len(runes) {
						n = len(runes)
					}
					return runes[len(runes)-n:]
				})
			},
		},
		{
			Name: "MID", Category: "Text", Description: "Substring starting at a 1-based position", Usage: "MID(text, start, count)",
			MinArgs: 3, MaxArgs: 3, Result: KindText,
			Impl: func(_ *Context, args []Value) Value {
				if args[0].IsNull() {
					return Null()
				}
				if args[0].Kind() != KindText {
					return argError("MID", "text", args[0].Kind().String())
				}
				if args[1].Kind() != KindNumber || args[2].Kind() != KindNumber {
					return argError("MID", "numeric start and count", "non-numeric argument")
				}
				runes := []rune(args[0].Str())
				start := int(args[1].Float()) - 1
				count := int(args[2].Float())
				if start < 0 || count < 0 {
					return argError("MID", "positive start and count", "negative argument")
				}
				if start >= len(runes) {
					return Text("")
				}
				end := start + count
				if end > len(runes) {
					end = len(runes)
				}
				return Text(string(runes[start:end]))
			},
		},
		{
			Name: "LEN", Category: "Text", Description: "Number of characters in a text value", Usage: "LEN(text)",
			MinArgs: 1, MaxArgs: 1, Result: KindNumber,
			Impl: func(_ *Context, args []Value) Value {
				if args[0].IsNull() {
					return Number(0)
				}
				if args[0].Kind() != KindText {
					return argError("LEN", "text", args[0].Kind().String())
				}
				return Number(float64(utf8.RuneCountInString(args[0].Str())))
			},
		},
		{
			Name: "UPPER", Category: "Text", Description: "Converts text to uppercase", Usage: "UPPER(text)",
			MinArgs: 1, MaxArgs: 1, Result: KindText,
			Impl: func(_ *Context, args []Value) Value { return mapText("UPPER", args[0], strings.ToUpper) },
		},
		{
			Name: "LOWER", Category: "Text", Description: "Converts text to lowercase", Usage: "LOWER(text)",
			MinArgs: 1, MaxArgs: 1, Result: KindText,
			Impl: func(_ *Context, args []Value) Value { return mapText("LOWER", args[0], strings.ToLower) },
		},
		{
			Name: "TRIM", Category: "Text", Description: "Removes surrounding whitespace", Usage: "TRIM(text)",
			MinArgs: 1, MaxArgs: 1, Result: KindText,
			Impl: func(_ *Context, args []Value) Value { return mapText("TRIM", args[0], strings.TrimSpace) },
		},

		// ---- Date ----
		{
			Name: "NOW", Category: "Date", Description: "Current date and time", Usage: "NOW()",
			MinArgs: 0, MaxArgs: 0, Result: KindDate, Volatile: true,
			Impl: func(ctx *Context, _ []Value) Value { return Date(ctx.now()) },
		},
		{
			Name: "TODAY", Category: "Date", Description: "Current date at midnight UTC", Usage: "TODAY()",
			MinArgs: 0, MaxArgs: 0, Result: KindDate, Volatile: true,
			Impl: func(ctx *Context, _ []Value) Value {
				y, m, d := ctx.now().UTC().Date()
				return Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
			},
		},
		{
			Name: "YEAR", Category: "Date", Description: "Year component of a date", Usage: "YEAR(date)",
			MinArgs: 1, MaxArgs: 1, Result: KindNumber,
			Impl: func(_ *Context, args []Value) Value {
				return datePart("YEAR", args[0], func(t time.Time) int { return t.Year() })
			},
		},
		{
			Name: "MONTH", Category: "Date", Description: "Month component of a date (1-12)", Usage: "MONTH(date)",
			MinArgs: 1, MaxArgs: 1, Result: KindNumber,
			Impl: func(_ *Context, args []Value) Value {
				return datePart("MONTH", args[0], func(t time.Time) int { return int(t.Month()) })
			},
		},
		{
			Name: "DAY", Category: "Date", Description: "Day-of-month component of a date", Usage: "DAY(date)",
			MinArgs: 1, MaxArgs: 1, Result: KindNumber,
			Impl: func(_ *Context, args []Value) Value {
				return datePart("DAY", args[0], func(t time.Time) int { return t.Day() })
			},
		},
		{
			Name: "DATEADD", Category: "Date", Description: "Adds an amount of days, months or years to a date", Usage: "DATEADD(date, count, unit)",
			MinArgs: 3, MaxArgs: 3, Result: KindDate,
			Impl: func(_ *Context, args []Value) Value {
				if args[0].IsNull() {
					return Null()
				}
				t, errv := toDate("DATEADD", args[0])
				if errv.IsError() {
					return errv
				}
				if args[1].Kind() != KindNumber {
					return argError("DATEADD", "numeric count", args[1].Kind().String())
				}
				count := int(args[1].Float())
				switch dateUnit(args[2]) {
				case "days":
					return Date(t.AddDate(0, 0, count))
				case "months":
					return Date(t.AddDate(0, count, 0))
				case "years":
					return Date(t.AddDate(count, 0, 0))
				}
				return argError("DATEADD", `unit "days", "months" or "years"`, fmt.Sprintf("%v", args[2].String()))
			},
		},
		{
			Name: "DATEDIFF", Category: "Date", Description: "Difference between two dates in the given unit", Usage: "DATEDIFF(date1, date2, unit)",
			MinArgs: 3, MaxArgs: 3, Result: KindNumber,
			Impl: func(_ *Context, args []Value) Value {
				if args[0].IsNull() || args[1].IsNull() {
					return Null()
				}
				a, errv := toDate("DATEDIFF", args[0])
				if errv.IsError() {
					return errv
				}
				b, errv := toDate("DATEDIFF", args[1])
				if errv.IsError() {
					return errv
				}
				switch dateUnit(args[2]) {
				case "days":
					return Number(math.Trunc(a.Sub(b).Hours() / 24))
				case "months":
					months := (a.Year()-b.Year())*12 + int(a.Month()) - int(b.Month())
					return Number(float64(months))
				case "years":
					return Number(float64(a.Year() - b.Year()))
				}
				return argError("DATEDIFF", `unit "days", "months" or "years"`, fmt.Sprintf("%v", args[2].String()))
			},
		},

		// ---- Array ----
		{
			Name: "ARRAYJOIN", Category: "Array", Description: "Joins array elements into text", Usage: "ARRAYJOIN(array, separator)",
			MinArgs: 1, MaxArgs: 2, Result: KindText,
			Impl: func(_ *Context, args []Value) Value {
				sep := ", "
				if len(args) == 2 {
					if args[1].Kind() != KindText {
						return argError("ARRAYJOIN", "text separator", args[1].Kind().String())
					}
					sep = args[1].Str()
				}
				items := []Value{args[0]}
				if args[0].Kind() == KindArray {
					items = flatten(args[0].Items())
				}
				parts := make([]string, 0, len(items))
				for _, item := range items {
					if item.IsNull() {
						continue
					}
					parts = append(parts, item.String())
				}
				return Text(strings.Join(parts, sep))
			},
		},
		{
			Name: "ARRAYUNIQUE", Category: "Array", Description: "Distinct elements of an array", Usage: "ARRAYUNIQUE(array)",
			MinArgs: 1, MaxArgs: 1, Result: KindArray,
			Impl: func(_ *Context, args []Value) Value {
				if args[0].Kind() != KindArray {
					return argError("ARRAYUNIQUE", "array", args[0].Kind().String())
				}
				return Array(uniqueValues(flatten(args[0].Items())))
			},
		},
	}

	out := make(map[string]*Function, len(fns))
	for _, fn := range fns {
		out[fn.Name] = fn
	}
	return out
}

func mapText(name string, v Value, f func(string) string) Value {
	if v.IsNull() {
		return Null()
	}
	if v.Kind() != KindText {
		return argError(name, "text", v.Kind().String())
	}
	return Text(f(v.Str()))
}

func sliceText(name string, text, count Value, take func([]rune, int) []rune) Value {
	if text.IsNull() {
		return Null()
	}
	if text.Kind() != KindText {
		return argError(name, "text", text.Kind().String())
	}
	if count.Kind() != KindNumber {
		return argError(name, "numeric count", count.Kind().String())
	}
	n := int(count.Float())
	if n < 0 {
		n = 0
	}
	return Text(string(take([]rune(text.Str()), n)))
}

func datePart(name string, v Value, part func(time.Time) int) Value {
	if v.IsNull() {
		return Null()
	}
	t, errv := toDate(name, v)
	if errv.IsError() {
		return errv
	}
	return Number(float64(part(t)))
}

func dateUnit(v Value) string {
	if v.Kind() != KindText {
		return ""
	}
	switch strings.ToLower(v.Str()) {
	case "day", "days":
		return "days"
	case "month", "months":
		return "months"
	case "year", "years":
		return "years"
	}
	return ""
}
