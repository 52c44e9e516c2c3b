package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dmdorta1111/AirTable-sub000/internal/domain/models"
	"github.com/dmdorta1111/AirTable-sub000/internal/domain/ports"
	"github.com/dmdorta1111/AirTable-sub000/pkg/depgraph"
	"github.com/dmdorta1111/AirTable-sub000/pkg/errors"
	"github.com/dmdorta1111/AirTable-sub000/pkg/expression"
	"github.com/dmdorta1111/AirTable-sub000/pkg/formula"
)

// FieldService manages table schemas and computed field definitions. Saving
// a computed field runs the full compile pipeline (lex, parse, bind, extract
// dependencies) and registers its edges in the dependency graph before the
// definition is persisted, so a rejected field never leaves a trace.
type FieldService struct {
	catalog ports.FieldCatalog
	graph   *depgraph.Graph
	exprEng *expression.Engine

	// backfill recomputes a freshly saved computed field across the
	// table's existing records. Wired by the service manager.
	backfill func(ctx context.Context, tableID, fieldID string) error

	mu   sync.RWMutex
	asts map[string]formula.Node // field id -> compiled formula
}

// NewFieldService creates a new FieldService.
func NewFieldService(catalog ports.FieldCatalog, graph *depgraph.Graph, exprEng *expression.Engine) *FieldService {
	return &FieldService{
		catalog: catalog,
		graph:   graph,
		exprEng: exprEng,
		asts:    make(map[string]formula.Node),
	}
}

// SetBackfill installs the hook that recomputes a saved computed field over
// existing records.
func (fs *FieldService) SetBackfill(fn func(ctx context.Context, tableID, fieldID string) error) {
	fs.backfill = fn
}

// CreateTable validates a new table, registers every computed field it
// carries, and persists the whole definition only once registration succeeds.
// Computed fields may reference each other, so ids are assigned up front.
func (fs *FieldService) CreateTable(ctx context.Context, table *models.TableDefinition) error {
	if table.Name == "" {
		return errors.NewValidationError("name", "table name is required")
	}
	seen := make(map[string]bool, len(table.Fields))
	for i := range table.Fields {
		f := &table.Fields[i]
		if f.Name == "" {
			return errors.NewValidationError("name", "field name is required")
		}
		if seen[strings.ToLower(f.Name)] {
			return errors.NewConflictError("field", "duplicate field name: "+f.Name)
		}
		seen[strings.ToLower(f.Name)] = true
		if !f.Type.Valid() {
			return errors.NewValidationError("type", "unknown field type: "+string(f.Type))
		}
	}

	if table.ID == "" {
		table.ID = uuid.New().String()
	}
	for i := range table.Fields {
		f := &table.Fields[i]
		if f.ID == "" {
			f.ID = uuid.New().String()
		}
		f.TableID = table.ID
	}

	// Register every computed field before persisting anything. A rejected
	// definition, a cycle closed within the batch included, must leave
	// neither schema nor graph edges behind.
	var registered []string
	rollback := func() {
		for _, id := range registered {
			fs.graph.Remove(id)
			fs.dropAST(id)
		}
	}
	for i := range table.Fields {
		f := &table.Fields[i]
		if !f.IsComputed() {
			continue
		}
		if err := fs.registerComputed(ctx, table, f); err != nil {
			rollback()
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
		registered = append(registered, f.ID)
	}

	if err := fs.catalog.CreateTable(ctx, table); err != nil {
		rollback()
		return err
	}
	log.Printf("📋 Created table %s (%s) with %d fields", table.Name, table.ID, len(table.Fields))
	return nil
}

// SaveField creates or updates one field definition. For computed fields the
// dependency edges are swapped atomically: a circular reference leaves the
// previous edges in place and the previous definition untouched.
func (fs *FieldService) SaveField(ctx context.Context, field *models.FieldDefinition) error {
	table, err := fs.catalog.GetTable(ctx, field.TableID)
	if err != nil {
		return err
	}
	if field.Name == "" {
		return errors.NewValidationError("name", "field name is required")
	}
	if !field.Type.Valid() {
		return errors.NewValidationError("type", "unknown field type: "+string(field.Type))
	}
	if existing := table.FieldByName(field.Name); existing != nil && existing.ID != field.ID {
		return errors.NewConflictError("field", "duplicate field name: "+field.Name)
	}

	if field.ID == "" {
		// Edges are registered before persisting, so the id must exist first.
		field.ID = uuid.New().String()
	}

	if field.IsComputed() {
		// Bind against the table as it would look with this field present,
		// so a formula may reference sibling fields saved in the same batch.
		scratch := *table
		if scratch.FieldByID(field.ID) == nil {
			scratch.Fields = append(append([]models.FieldDefinition(nil), table.Fields...), *field)
		}
		if err := fs.registerComputed(ctx, &scratch, field); err != nil {
			return err
		}
	} else {
		// Type changed away from computed: drop any stale edges.
		fs.graph.Remove(field.ID)
		fs.dropAST(field.ID)
	}

	if err := fs.catalog.SaveField(ctx, field); err != nil {
		return err
	}
	if field.IsComputed() && fs.backfill != nil {
		return fs.backfill(ctx, field.TableID, field.ID)
	}
	return nil
}

// DeleteField removes a field. Deletion is blocked while other computed
// fields depend on it.
func (fs *FieldService) DeleteField(ctx context.Context, fieldID string) error {
	field, err := fs.catalog.GetField(ctx, fieldID)
	if err != nil {
		return err
	}
	if deps := fs.graph.Dependents(fieldID); len(deps) > 0 {
		return errors.NewConflictError("field",
			fmt.Sprintf("cannot delete %q: %d computed field(s) depend on it", field.Name, len(deps)))
	}
	fs.graph.Remove(fieldID)
	fs.dropAST(fieldID)
	return fs.catalog.DeleteField(ctx, fieldID)
}

// ValidationResult is the outcome of checking a formula expression without
// saving a field.
type ValidationResult struct {
	Valid      bool     `json:"valid"`
	Error      *string  `json:"error,omitempty"`
	ErrorCode  string   `json:"error_code,omitempty"`
	ResultType string   `json:"result_type,omitempty"`
	FieldIDs   []string `json:"field_ids,omitempty"`
	Volatile   bool     `json:"volatile,omitempty"`
}

// ValidateFormula compiles an expression against a table without persisting
// anything. Compile failures are reported in the result, not as an error.
func (fs *FieldService) ValidateFormula(ctx context.Context, tableID, expr string) (*ValidationResult, error) {
	table, err := fs.catalog.GetTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	bound, compileErr := fs.compile(table, expr)
	if compileErr != nil {
		msg := compileErr.Error()
		return &ValidationResult{Valid: false, Error: &msg, ErrorCode: errors.GetErrorCode(compileErr)}, nil
	}
	return &ValidationResult{
		Valid:      true,
		ResultType: fs.inferKind(table, bound).String(),
		FieldIDs:   formula.ExtractFieldIDs(bound),
		Volatile:   formula.IsVolatile(bound),
	}, nil
}

// CompiledAST returns the bound formula for a formula field, compiling and
// caching on first use.
func (fs *FieldService) CompiledAST(ctx context.Context, field *models.FieldDefinition) (formula.Node, error) {
	if field.Formula == nil {
		return nil, errors.NewValidationError("formula", "field has no formula configuration")
	}
	fs.mu.RLock()
	cached, ok := fs.asts[field.ID]
	fs.mu.RUnlock()
	if ok {
		return cached, nil
	}

	table, err := fs.catalog.GetTable(ctx, field.TableID)
	if err != nil {
		return nil, err
	}
	bound, err := fs.compile(table, field.Formula.Expression)
	if err != nil {
		return nil, err
	}
	fs.mu.Lock()
	fs.asts[field.ID] = bound
	fs.mu.Unlock()
	return bound, nil
}

// RebuildGraph recompiles every computed field and reloads the dependency
// graph from the catalog. Called once at startup.
func (fs *FieldService) RebuildGraph(ctx context.Context) error {
	tables, err := fs.catalog.ListTables(ctx)
	if err != nil {
		return err
	}
	for i := range tables {
		table := &tables[i]
		for j := range table.Fields {
			f := &table.Fields[j]
			if !f.IsComputed() {
				continue
			}
			if err := fs.registerComputed(ctx, table, f); err != nil {
				log.Printf("⚠️ Skipping computed field %s.%s on rebuild: %v", table.Name, f.Name, err)
			}
		}
	}
	return nil
}

func (fs *FieldService) registerComputed(ctx context.Context, table *models.TableDefinition, field *models.FieldDefinition) error {
	switch field.Type {
	case models.FieldTypeFormula:
		return fs.registerFormula(table, field)
	case models.FieldTypeLookup:
		cfg := field.Lookup
		if cfg == nil {
			return errors.NewValidationError("lookup", "lookup configuration is required")
		}
		return fs.registerLinked(ctx, table, field, cfg.LinkFieldID, cfg.TargetFieldID, nil)
	case models.FieldTypeRollup:
		cfg := field.Rollup
		if cfg == nil {
			return errors.NewValidationError("rollup", "rollup configuration is required")
		}
		if !models.ValidAggregation(cfg.Aggregation) {
			return errors.NewValidationError("aggregation", "unknown aggregation: "+cfg.Aggregation)
		}
		var filterNames []string
		if cfg.Filter != nil && *cfg.Filter != "" {
			if err := fs.exprEng.Validate(*cfg.Filter); err != nil {
				return errors.NewValidationError("filter", err.Error())
			}
			names, err := fs.exprEng.Identifiers(*cfg.Filter)
			if err != nil {
				return errors.NewValidationError("filter", err.Error())
			}
			filterNames = names
		}
		return fs.registerLinked(ctx, table, field, cfg.LinkFieldID, cfg.TargetFieldID, filterNames)
	}
	return nil
}

func (fs *FieldService) registerFormula(table *models.TableDefinition, field *models.FieldDefinition) error {
	if field.Formula == nil || field.Formula.Expression == "" {
		return errors.NewValidationError("formula", "formula expression is required")
	}
	bound, err := fs.compile(table, field.Formula.Expression)
	if err != nil {
		return err
	}

	ids := formula.ExtractFieldIDs(bound)
	edges := make([]depgraph.Edge, 0, len(ids))
	for _, id := range ids {
		edges = append(edges, depgraph.Edge{Source: id})
	}
	if err := fs.graph.SetEdges(field.ID, edges); err != nil {
		return fs.describeCycle(table, err)
	}

	field.Formula.ResultType = fs.inferKind(table, bound).String()
	field.Formula.Volatile = formula.IsVolatile(bound)
	field.Formula.AST = bound

	fs.mu.Lock()
	fs.asts[field.ID] = bound
	fs.mu.Unlock()
	return nil
}

// registerLinked wires a lookup or rollup field: it depends on the target
// field through the link, and on the link field itself so that relinking a
// record recomputes the derived value. filterNames carries the target-table
// fields a rollup filter reads; they become link edges too.
func (fs *FieldService) registerLinked(ctx context.Context, table *models.TableDefinition, field *models.FieldDefinition, linkFieldID, targetFieldID string, filterNames []string) error {
	linkField := table.FieldByID(linkFieldID)
	if linkField == nil {
		return errors.NewValidationError("link_field_id", "link field not found: "+linkFieldID)
	}
	if linkField.Type != models.FieldTypeLink || linkField.Link == nil {
		return errors.NewValidationError("link_field_id", fmt.Sprintf("field %q is not a link field", linkField.Name))
	}
	// A link may target the very table being registered, which is not in
	// the catalog yet.
	targetTable := table
	if linkField.Link.TargetTableID != table.ID {
		var err error
		targetTable, err = fs.catalog.GetTable(ctx, linkField.Link.TargetTableID)
		if err != nil {
			return err
		}
	}
	if targetTable.FieldByID(targetFieldID) == nil {
		return errors.NewValidationError("target_field_id",
			fmt.Sprintf("field %s not found in table %q", targetFieldID, targetTable.Name))
	}

	edges := []depgraph.Edge{
		{Source: targetFieldID, ViaLink: linkFieldID},
		{Source: linkFieldID},
	}
	for _, name := range filterNames {
		f := targetTable.FieldByName(name)
		if f == nil || f.ID == targetFieldID {
			continue
		}
		edges = append(edges, depgraph.Edge{Source: f.ID, ViaLink: linkFieldID})
	}
	if err := fs.graph.SetEdges(field.ID, edges); err != nil {
		return fs.describeCycle(table, err)
	}
	return nil
}

// compile runs lex, parse and bind against a table's field names.
func (fs *FieldService) compile(table *models.TableDefinition, expr string) (formula.Node, error) {
	ast, err := formula.Parse(expr)
	if err != nil {
		return nil, err
	}
	return formula.Bind(ast, func(name string) (string, bool) {
		f := table.FieldByName(name)
		if f == nil {
			return "", false
		}
		return f.ID, true
	})
}

// inferKind resolves the static result kind of a bound formula.
func (fs *FieldService) inferKind(table *models.TableDefinition, bound formula.Node) formula.Kind {
	return formula.InferType(bound, func(fieldID string) formula.Kind {
		return fs.fieldKind(table, fieldID, 0)
	})
}

func (fs *FieldService) fieldKind(table *models.TableDefinition, fieldID string, depth int) formula.Kind {
	if depth > 8 {
		return formula.KindNull
	}
	f := table.FieldByID(fieldID)
	if f == nil {
		return formula.KindNull
	}
	switch f.Type {
	case models.FieldTypeFormula:
		if f.Formula != nil && f.Formula.ResultType != "" {
			return kindFromString(f.Formula.ResultType)
		}
		fs.mu.RLock()
		bound, ok := fs.asts[f.ID]
		fs.mu.RUnlock()
		if ok {
			return formula.InferType(bound, func(id string) formula.Kind {
				return fs.fieldKind(table, id, depth+1)
			})
		}
		return formula.KindNull
	case models.FieldTypeLookup:
		return formula.KindArray
	case models.FieldTypeRollup:
		if f.Rollup == nil {
			return formula.KindNull
		}
		return rollupKind(f.Rollup.Aggregation)
	}
	return f.Type.ValueKind()
}

// describeCycle maps the graph's id-based cycle path back to field names.
func (fs *FieldService) describeCycle(table *models.TableDefinition, err error) error {
	cycle, ok := err.(*errors.CircularDependencyError)
	if !ok {
		return err
	}
	named := make([]string, len(cycle.Path))
	for i, id := range cycle.Path {
		if f := table.FieldByID(id); f != nil {
			named[i] = f.Name
		} else {
			named[i] = id
		}
	}
	return &errors.CircularDependencyError{Path: named}
}

func (fs *FieldService) dropAST(fieldID string) {
	fs.mu.Lock()
	delete(fs.asts, fieldID)
	fs.mu.Unlock()
}

func kindFromString(s string) formula.Kind {
	switch strings.ToLower(s) {
	case "number":
		return formula.KindNumber
	case "text":
		return formula.KindText
	case "bool", "boolean":
		return formula.KindBool
	case "date":
		return formula.KindDate
	case "array":
		return formula.KindArray
	}
	return formula.KindNull
}

// rollupKind is the result kind an aggregation produces.
func rollupKind(agg string) formula.Kind {
	switch strings.ToLower(agg) {
	case models.AggSum, models.AggAvg, models.AggMin, models.AggMax,
		models.AggCount, models.AggCountA:
		return formula.KindNumber
	case models.AggConcat:
		return formula.KindText
	case models.AggArrayUnique, models.AggArrayFlatten:
		return formula.KindArray
	}
	return formula.KindNull
}
