package formula

import (
	apperrors "github.com/dmdorta1111/AirTable-sub000/pkg/errors"
)

// Resolver maps a field name to its field id within one table. It is supplied
// by the field catalog collaborator during the binding pass.
type Resolver func(name string) (fieldID string, ok bool)

// Bind resolves every {Field Name} reference in the tree against the table's
// catalog, producing a new bound tree. ASTs are immutable, so binding rebuilds
// the nodes rather than mutating in place.
func Bind(n Node, resolve Resolver) (Node, error) {
	switch x := n.(type) {
	case *Literal:
		return x, nil

	case *FieldRef:
		id, ok := resolve(x.Name)
		if !ok {
			return nil, &apperrors.UnknownFieldError{Name: x.Name}
		}
		return &FieldRef{Name: x.Name, FieldID: id}, nil

	case *Unary:
		operand, err := Bind(x.Operand, resolve)
		if err != nil {
			return nil, err
		}
		return &Unary{Op: x.Op, Operand: operand}, nil

	case *Binary:
		left, err := Bind(x.Left, resolve)
		if err != nil {
			return nil, err
		}
		right, err := Bind(x.Right, resolve)
		if err != nil {
			return nil, err
		}
		return &Binary{Op: x.Op, Left: left, Right: right}, nil

	case *Call:
		args := make([]Node, len(x.Args))
		for i, arg := range x.Args {
			bound, err := Bind(arg, resolve)
			if err != nil {
				return nil, err
			}
			args[i] = bound
		}
		return &Call{Name: x.Name, Args: args}, nil
	}
	return n, nil
}
