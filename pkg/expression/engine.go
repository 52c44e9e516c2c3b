// Package expression wraps expr-lang for the small boolean conditions the
// engine accepts outside the formula DSL, currently rollup filters. Compiled
// programs are cached; the cache is safe for concurrent readers.
package expression

import (
	"fmt"
	"sort"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

// Engine compiles and caches condition programs.
type Engine struct {
	programCache map[string]*vm.Program
	mu           sync.RWMutex
}

// NewEngine creates a new condition engine.
func NewEngine() *Engine {
	return &Engine{
		programCache: make(map[string]*vm.Program),
	}
}

// Validate checks a condition's syntax without running it.
func (e *Engine) Validate(condition string) error {
	_, err := e.getProgram(condition)
	return err
}

// EvalBool runs a condition against the given record environment and returns
// its boolean result. Non-boolean results are an error, not a coercion.
func (e *Engine) EvalBool(condition string, env map[string]interface{}) (bool, error) {
	program, err := e.getProgram(condition)
	if err != nil {
		return false, err
	}
	output, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	b, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q returned %T, want bool", condition, output)
	}
	return b, nil
}

// Identifiers returns the variable names a condition reads, sorted. Callers
// use it to register the fields a filter depends on.
func (e *Engine) Identifiers(condition string) ([]string, error) {
	tree, err := parser.Parse(condition)
	if err != nil {
		return nil, err
	}
	c := &identCollector{names: make(map[string]bool)}
	ast.Walk(&tree.Node, c)
	names := make([]string, 0, len(c.names))
	for name := range c.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

type identCollector struct {
	names map[string]bool
}

func (c *identCollector) Visit(node *ast.Node) {
	if id, ok := (*node).(*ast.IdentifierNode); ok {
		c.names[id.Value] = true
	}
}

func (e *Engine) getProgram(condition string) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.programCache[condition]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double check
	if prog, ok := e.programCache[condition]; ok {
		return prog, nil
	}

	program, err := expr.Compile(condition, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}

	e.programCache[condition] = program
	return program, nil
}
