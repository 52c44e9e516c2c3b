package formula

import (
	"time"

	apperrors "github.com/dmdorta1111/AirTable-sub000/pkg/errors"
)

// Evaluation cost bounds. A pathological expression fails its own cell with a
// timeout error instead of blocking a recompute worker.
const (
	DefaultMaxSteps = 100000
	DefaultMaxDepth = 256
)

// Context is the per-record, per-pass evaluation snapshot. It carries the
// record's resolved field values and the set of computed fields that have not
// been evaluated yet in this pass. A Context is never shared across records
// or goroutines.
type Context struct {
	// Values maps field id to resolved value: raw stored values plus
	// computed values already produced earlier in the pass.
	Values map[string]Value

	// Pending holds computed field ids not yet evaluated in this pass.
	// Referencing one of these is a scheduler ordering bug.
	Pending map[string]struct{}

	// Clock supplies the current time for NOW/TODAY; nil means time.Now.
	Clock func() time.Time

	// MaxSteps bounds the number of AST node visits; 0 means the default.
	MaxSteps int

	// Deadline, when set, bounds wall-clock evaluation time.
	Deadline time.Time

	steps int
}

func (c *Context) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

func (c *Context) maxSteps() int {
	if c.MaxSteps > 0 {
		return c.MaxSteps
	}
	return DefaultMaxSteps
}

// Eval walks a bound AST against the context and produces the cell's value.
// Evaluation failures (type mismatch, division by zero, timeout) come back as
// error values local to the cell. The Go error return is reserved for
// internal invariant violations that must abort the whole recompute pass.
func Eval(n Node, ctx *Context) (Value, error) {
	return evalNode(n, ctx, 0)
}

func evalNode(n Node, ctx *Context, depth int) (Value, error) {
	ctx.steps++
	if ctx.steps > ctx.maxSteps() {
		return FromError(&apperrors.TimeoutError{}), nil
	}
	if ctx.steps%1024 == 0 && !ctx.Deadline.IsZero() && time.Now().After(ctx.Deadline) {
		return FromError(&apperrors.TimeoutError{}), nil
	}
	if depth > DefaultMaxDepth {
		return FromError(&apperrors.TimeoutError{}), nil
	}

	switch x := n.(type) {
	case *Literal:
		return x.Val, nil

	case *FieldRef:
		if x.FieldID == "" {
			return Value{}, apperrors.NewInternalError("unbound field reference evaluated: "+x.Name, nil)
		}
		if _, pending := ctx.Pending[x.FieldID]; pending {
			return Value{}, &apperrors.SchedulerInvariantError{
				FieldID: x.FieldID,
				Detail:  "referenced before it was evaluated in this pass",
			}
		}
		v, ok := ctx.Values[x.FieldID]
		if !ok {
			return Null(), nil
		}
		return v, nil

	case *Unary:
		operand, err := evalNode(x.Operand, ctx, depth+1)
		if err != nil {
			return Value{}, err
		}
		if operand.IsError() {
			return operand, nil
		}
		switch operand.Kind() {
		case KindNull:
			return Null(), nil
		case KindNumber:
			return Number(-operand.Float()), nil
		default:
			return FromError(&apperrors.TypeMismatchError{Op: x.Op, Left: operand.Kind().String()}), nil
		}

	case *Binary:
		return evalBinary(x, ctx, depth)

	case *Call:
		return evalCall(x, ctx, depth)
	}

	return Value{}, apperrors.NewInternalError("unknown AST node", nil)
}

func evalBinary(n *Binary, ctx *Context, depth int) (Value, error) {
	left, err := evalNode(n.Left, ctx, depth+1)
	if err != nil {
		return Value{}, err
	}
	if left.IsError() {
		return left, nil
	}
	right, err := evalNode(n.Right, ctx, depth+1)
	if err != nil {
		return Value{}, err
	}
	if right.IsError() {
		return right, nil
	}

	switch n.Op {
	case "+", "-", "*", "/":
		return evalArithmetic(n.Op, left, right), nil
	case "=", "!=", "<", ">", "<=", ">=":
		return evalComparison(n.Op, left, right), nil
	}
	return Value{}, apperrors.NewInternalError("unknown operator "+n.Op, nil)
}

// evalArithmetic applies spreadsheet null semantics: a null operand makes the
// whole expression null. Numeric strings are not coerced.
func evalArithmetic(op string, left, right Value) Value {
	if left.IsNull() || right.IsNull() {
		return Null()
	}
	if left.Kind() != KindNumber || right.Kind() != KindNumber {
		return FromError(&apperrors.TypeMismatchError{
			Op:    op,
			Left:  left.Kind().String(),
			Right: right.Kind().String(),
		})
	}
	a, b := left.Float(), right.Float()
	switch op {
	case "+":
		return Number(a + b)
	case "-":
		return Number(a - b)
	case "*":
		return Number(a * b)
	case "/":
		if b == 0 {
			return FromError(&apperrors.DivisionByZeroError{})
		}
		return Number(a / b)
	}
	return Null()
}

// evalComparison orders null strictly below every non-null value. Equality
// across different types is false; ordering across different types is a type
// mismatch.
func evalComparison(op string, left, right Value) Value {
	if op == "=" || op == "!=" {
		eq := left.Equal(right)
		if op == "!=" {
			return Bool(!eq)
		}
		return Bool(eq)
	}

	cmp, errv := compareValues(op, left, right)
	if errv.IsError() {
		return errv
	}
	switch op {
	case "<":
		return Bool(cmp < 0)
	case ">":
		return Bool(cmp > 0)
	case "<=":
		return Bool(cmp <= 0)
	case ">=":
		return Bool(cmp >= 0)
	}
	return Null()
}

func compareValues(op string, left, right Value) (int, Value) {
	switch {
	case left.IsNull() && right.IsNull():
		return 0, Value{}
	case left.IsNull():
		return -1, Value{}
	case right.IsNull():
		return 1, Value{}
	}
	if left.Kind() != right.Kind() {
		return 0, FromError(&apperrors.TypeMismatchError{
			Op:    op,
			Left:  left.Kind().String(),
			Right: right.Kind().String(),
		})
	}
	switch left.Kind() {
	case KindNumber:
		switch {
		case left.Float() < right.Float():
			return -1, Value{}
		case left.Float() > right.Float():
			return 1, Value{}
		}
		return 0, Value{}
	case KindText:
		switch {
		case left.Str() < right.Str():
			return -1, Value{}
		case left.Str() > right.Str():
			return 1, Value{}
		}
		return 0, Value{}
	case KindDate:
		switch {
		case left.Time().Before(right.Time()):
			return -1, Value{}
		case left.Time().After(right.Time()):
			return 1, Value{}
		}
		return 0, Value{}
	}
	return 0, FromError(&apperrors.TypeMismatchError{
		Op:    op,
		Left:  left.Kind().String(),
		Right: right.Kind().String(),
	})
}

func evalCall(n *Call, ctx *Context, depth int) (Value, error) {
	fn, found := LookupFunction(n.Name)
	if !found {
		return FromError(&apperrors.UnknownFunctionError{Name: n.Name}), nil
	}
	// Arity is checked statically after parsing, and again here so a stale
	// stored AST still fails safely at evaluation time.
	if err := checkArity(fn, len(n.Args)); err != nil {
		return FromError(err), nil
	}

	if fn.LazyImpl != nil {
		var thunkErr error
		thunks := make([]Thunk, len(n.Args))
		for i, arg := range n.Args {
			arg := arg
			thunks[i] = func() Value {
				v, err := evalNode(arg, ctx, depth+1)
				if err != nil {
					thunkErr = err
					return FromError(err)
				}
				return v
			}
		}
		result := fn.LazyImpl(ctx, thunks)
		if thunkErr != nil {
			return Value{}, thunkErr
		}
		return result, nil
	}

	args := make([]Value, len(n.Args))
	for i, arg := range n.Args {
		v, err := evalNode(arg, ctx, depth+1)
		if err != nil {
			return Value{}, err
		}
		if v.IsError() {
			return v, nil
		}
		args[i] = v
	}
	return fn.Impl(ctx, args), nil
}

// InferType derives the result type of a bound expression for the
// field-definition API response. fieldKind resolves a referenced field id to
// its value kind; KindNull means unknown.
func InferType(n Node, fieldKind func(fieldID string) Kind) Kind {
	switch x := n.(type) {
	case *Literal:
		return x.Val.Kind()
	case *FieldRef:
		if fieldKind == nil {
			return KindNull
		}
		return fieldKind(x.FieldID)
	case *Unary:
		return KindNumber
	case *Binary:
		switch x.Op {
		case "+", "-", "*", "/":
			return KindNumber
		default:
			return KindBool
		}
	case *Call:
		fn, found := LookupFunction(x.Name)
		if !found {
			return KindNull
		}
		if fn.Result != KindNull {
			return fn.Result
		}
		// IF's type is the common type of its branches.
		if fn.Name == "IF" && len(x.Args) == 3 {
			thenKind := InferType(x.Args[1], fieldKind)
			elseKind := InferType(x.Args[2], fieldKind)
			if thenKind == elseKind {
				return thenKind
			}
		}
		return KindNull
	}
	return KindNull
}
