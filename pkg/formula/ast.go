package formula

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is a formula AST node. Trees are immutable after construction; a
// field's AST is rebuilt from source whenever its expression changes, never
// mutated in place.
type Node interface {
	// String prints the canonical source form. Re-parsing the canonical
	// form yields a structurally equal tree.
	String() string
}

// Literal is a constant number or string.
type Literal struct {
	Val Value
}

func (n *Literal) String() string {
	switch n.Val.Kind() {
	case KindNumber:
		return strconv.FormatFloat(n.Val.Float(), 'f', -1, 64)
	case KindText:
		return strconv.Quote(n.Val.Str())
	default:
		return n.Val.String()
	}
}

// FieldRef references another field by name. The binding pass resolves Name
// against the table's field catalog and fills in FieldID.
type FieldRef struct {
	Name    string
	FieldID string
}

func (n *FieldRef) String() string {
	return "{" + n.Name + "}"
}

// Unary applies a prefix operator, currently only negation.
type Unary struct {
	Op      string
	Operand Node
}

func (n *Unary) String() string {
	return n.Op + n.Operand.String()
}

// Binary applies an infix operator.
type Binary struct {
	Op    string
	Left  Node
	Right Node
}

func (n *Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", n.Left.String(), n.Op, n.Right.String())
}

// Call invokes a function from the library. AND/OR/NOT/IF are ordinary calls,
// not operators.
type Call struct {
	Name string
	Args []Node
}

func (n *Call) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	return n.Name + "(" + strings.Join(args, ", ") + ")"
}

// Walk visits n and all its descendants in depth-first order.
func Walk(n Node, visit func(Node)) {
	if n == nil {
		return
	}
	visit(n)
	switch x := n.(type) {
	case *Unary:
		Walk(x.Operand, visit)
	case *Binary:
		Walk(x.Left, visit)
		Walk(x.Right, visit)
	case *Call:
		for _, arg := range x.Args {
			Walk(arg, visit)
		}
	}
}

// ExtractFieldIDs collects the distinct bound field ids referenced by the
// tree, in first-reference order.
func ExtractFieldIDs(n Node) []string {
	var ids []string
	seen := make(map[string]struct{})
	Walk(n, func(node Node) {
		ref, ok := node.(*FieldRef)
		if !ok || ref.FieldID == "" {
			return
		}
		if _, dup := seen[ref.FieldID]; dup {
			return
		}
		seen[ref.FieldID] = struct{}{}
		ids = append(ids, ref.FieldID)
	})
	return ids
}

// IsVolatile reports whether the tree calls a volatile function such as NOW.
// Volatile formulas are re-evaluated on a schedule, not only on writes.
func IsVolatile(n Node) bool {
	volatile := false
	Walk(n, func(node Node) {
		if call, ok := node.(*Call); ok {
			if fn, found := LookupFunction(call.Name); found && fn.Volatile {
				volatile = true
			}
		}
	})
	return volatile
}
