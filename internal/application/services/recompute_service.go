package services

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmdorta1111/AirTable-sub000/internal/domain/models"
	"github.com/dmdorta1111/AirTable-sub000/internal/domain/ports"
	"github.com/dmdorta1111/AirTable-sub000/pkg/depgraph"
	"github.com/dmdorta1111/AirTable-sub000/pkg/errors"
	"github.com/dmdorta1111/AirTable-sub000/pkg/expression"
	"github.com/dmdorta1111/AirTable-sub000/pkg/formula"
)

// RecomputeOptions bound a single recompute pass.
type RecomputeOptions struct {
	MaxSteps    int           // evaluator step budget per formula
	EvalTimeout time.Duration // wall-clock deadline per formula
	Workers     int           // parallel record fan-out limit
}

// DefaultRecomputeOptions are used where the caller passes zero values.
var DefaultRecomputeOptions = RecomputeOptions{
	MaxSteps:    formula.DefaultMaxSteps,
	EvalTimeout: 2 * time.Second,
	Workers:     8,
}

// RecomputeService drives incremental recomputation: when record values
// change, it re-evaluates exactly the computed fields downstream of the
// change, same-record fields in dependency order first, then linked records
// in other tables. Fan-out stops at cells whose value did not change.
type RecomputeService struct {
	catalog ports.FieldCatalog
	store   ports.RecordStore
	fields  *FieldService
	graph   *depgraph.Graph
	exprEng *expression.Engine
	clock   func() time.Time
	opts    RecomputeOptions
}

// NewRecomputeService creates a new RecomputeService.
func NewRecomputeService(catalog ports.FieldCatalog, store ports.RecordStore, fields *FieldService, graph *depgraph.Graph, exprEng *expression.Engine, opts RecomputeOptions) *RecomputeService {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultRecomputeOptions.MaxSteps
	}
	if opts.EvalTimeout <= 0 {
		opts.EvalTimeout = DefaultRecomputeOptions.EvalTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultRecomputeOptions.Workers
	}
	return &RecomputeService{
		catalog: catalog,
		store:   store,
		fields:  fields,
		graph:   graph,
		exprEng: exprEng,
		clock:   time.Now,
		opts:    opts,
	}
}

// SetClock overrides the evaluation clock. Tests use it to pin NOW().
func (rs *RecomputeService) SetClock(clock func() time.Time) {
	rs.clock = clock
}

// RecordWritten handles a write of raw field values: every computed field
// downstream of the changed fields is re-evaluated, on this record and on
// records linking to it.
func (rs *RecomputeService) RecordWritten(ctx context.Context, tableID, recordID string, changedFieldIDs []string) error {
	c := &cascade{visited: make(map[string]bool)}
	dependents := rs.graph.SameTableDependents(changedFieldIDs)
	return rs.recompute(ctx, c, tableID, recordID, dependents, changedFieldIDs)
}

// RecomputeFields re-evaluates an explicit set of computed fields on one
// record, plus everything downstream of them. Used for newly created
// records, new computed fields, and volatile formula refresh.
func (rs *RecomputeService) RecomputeFields(ctx context.Context, tableID, recordID string, fieldIDs []string) error {
	c := &cascade{visited: make(map[string]bool)}
	return rs.recomputeFields(ctx, c, tableID, recordID, fieldIDs)
}

// BackfillField re-evaluates one computed field, and everything downstream of
// it, on every record of its table. Runs after a computed field is created or
// redefined so existing records pick the value up without waiting for a write.
func (rs *RecomputeService) BackfillField(ctx context.Context, tableID, fieldID string) error {
	recordIDs, err := rs.store.ListRecordIDs(ctx, tableID)
	if err != nil {
		return err
	}
	for _, recordID := range recordIDs {
		if err := rs.RecomputeFields(ctx, tableID, recordID, []string{fieldID}); err != nil {
			return err
		}
	}
	return nil
}

// RecomputeRecord re-evaluates every computed field of a record.
func (rs *RecomputeService) RecomputeRecord(ctx context.Context, tableID, recordID string) error {
	fields, err := rs.catalog.GetTableFields(ctx, tableID)
	if err != nil {
		return err
	}
	var computed []string
	for i := range fields {
		if fields[i].IsComputed() {
			computed = append(computed, fields[i].ID)
		}
	}
	if len(computed) == 0 {
		return nil
	}
	return rs.RecomputeFields(ctx, tableID, recordID, computed)
}

// cascade tracks which (record, field) cells a recompute chain has already
// visited, so diamond-shaped link topologies do not repeat work.
type cascade struct {
	mu      sync.Mutex
	visited map[string]bool
}

func (c *cascade) claim(tableID, recordID, fieldID string) bool {
	key := tableID + "\x00" + recordID + "\x00" + fieldID
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.visited[key] {
		return false
	}
	c.visited[key] = true
	return true
}

func (rs *RecomputeService) recomputeFields(ctx context.Context, c *cascade, tableID, recordID string, fieldIDs []string) error {
	set := append(append([]string(nil), fieldIDs...), rs.graph.SameTableDependents(fieldIDs)...)
	return rs.recompute(ctx, c, tableID, recordID, set, nil)
}

// recompute runs one same-record pass over targetFieldIDs in dependency
// order, then fans out to linked records for every cell whose value changed.
// seedFieldIDs are raw fields already known to have changed; they join the
// fan-out frontier but are not re-evaluated.
func (rs *RecomputeService) recompute(ctx context.Context, c *cascade, tableID, recordID string, targetFieldIDs, seedFieldIDs []string) error {
	changed, err := rs.runPass(ctx, c, tableID, recordID, targetFieldIDs)
	if err != nil {
		return err
	}
	frontier := append(append([]string(nil), seedFieldIDs...), changed...)
	if len(frontier) == 0 {
		return nil
	}
	return rs.fanOut(ctx, c, tableID, recordID, frontier)
}

// runPass evaluates the computed fields among targetFieldIDs on one record,
// in topological order, and persists the values that changed. It returns the
// field ids whose value differs from what was stored.
func (rs *RecomputeService) runPass(ctx context.Context, c *cascade, tableID, recordID string, targetFieldIDs []string) ([]string, error) {
	table, err := rs.catalog.GetTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	record, err := rs.store.GetRecordValues(ctx, tableID, recordID)
	if err != nil {
		return nil, err
	}

	order := rs.graph.TopoOrder(targetFieldIDs)

	// Only computed fields of this table are evaluated; raw seeds and ids
	// from other tables drop out here.
	pending := make(map[string]struct{})
	var plan []*models.FieldDefinition
	for _, id := range order {
		f := table.FieldByID(id)
		if f == nil || !f.IsComputed() {
			continue
		}
		if !c.claim(tableID, recordID, id) {
			continue
		}
		pending[id] = struct{}{}
		plan = append(plan, f)
	}
	if len(plan) == 0 {
		return nil, nil
	}

	values := make(map[string]formula.Value, len(table.Fields))
	for i := range table.Fields {
		f := &table.Fields[i]
		values[f.ID] = valueForField(f, record[f.ID])
	}

	var changed []string
	toWrite := make(models.Record)
	for _, f := range plan {
		v, err := rs.evaluateField(ctx, table, f, recordID, values, pending)
		if err != nil {
			return nil, err
		}
		delete(pending, f.ID)
		values[f.ID] = v

		prior := valueForField(f, record[f.ID])
		if !v.Equal(prior) {
			changed = append(changed, f.ID)
			toWrite[f.ID] = v.ToAny()
		}
	}

	if len(toWrite) > 0 {
		if err := rs.store.WriteComputedValues(ctx, tableID, recordID, toWrite); err != nil {
			return nil, err
		}
	}
	return changed, nil
}

func (rs *RecomputeService) evaluateField(ctx context.Context, table *models.TableDefinition, field *models.FieldDefinition, recordID string, values map[string]formula.Value, pending map[string]struct{}) (formula.Value, error) {
	switch field.Type {
	case models.FieldTypeFormula:
		ast, err := rs.fields.CompiledAST(ctx, field)
		if err != nil {
			// A formula that no longer compiles (e.g. stale schema on
			// startup) poisons its own cell, not the pass.
			return formula.FromError(err), nil
		}
		evalCtx := &formula.Context{
			Values:   values,
			Pending:  pending,
			Clock:    rs.clock,
			MaxSteps: rs.opts.MaxSteps,
			Deadline: rs.clock().Add(rs.opts.EvalTimeout),
		}
		v, err := formula.Eval(ast, evalCtx)
		if err != nil {
			return formula.Null(), err
		}
		return v, nil

	case models.FieldTypeLookup:
		return rs.resolveLookup(ctx, table, field, recordID)

	case models.FieldTypeRollup:
		return rs.resolveRollup(ctx, table, field, recordID)
	}
	return formula.Null(), &errors.SchedulerInvariantError{
		FieldID: field.ID,
		Detail:  "non-computed field scheduled for evaluation",
	}
}

// resolveLookup gathers the target field's value from each linked record. A
// single-value link collapses to the scalar; multi links produce an array.
func (rs *RecomputeService) resolveLookup(ctx context.Context, table *models.TableDefinition, field *models.FieldDefinition, recordID string) (formula.Value, error) {
	cfg := field.Lookup
	linked, targetTable, single, errVal := rs.gatherLinked(ctx, table, recordID, cfg.LinkFieldID)
	if errVal != nil {
		return *errVal, nil
	}
	targetField := targetTable.FieldByID(cfg.TargetFieldID)
	if targetField == nil {
		return formula.FromError(&errors.LinkedFieldMissingError{FieldID: cfg.TargetFieldID}), nil
	}

	if single {
		if len(linked) == 0 {
			return formula.Null(), nil
		}
		return valueForField(targetField, linked[0].Values[targetField.ID]), nil
	}
	items := make([]formula.Value, 0, len(linked))
	for _, rec := range linked {
		items = append(items, valueForField(targetField, rec.Values[targetField.ID]))
	}
	return formula.Array(items), nil
}

// resolveRollup gathers target values from linked records, applies the
// optional filter condition per record, then aggregates.
func (rs *RecomputeService) resolveRollup(ctx context.Context, table *models.TableDefinition, field *models.FieldDefinition, recordID string) (formula.Value, error) {
	cfg := field.Rollup
	linked, targetTable, _, errVal := rs.gatherLinked(ctx, table, recordID, cfg.LinkFieldID)
	if errVal != nil {
		return *errVal, nil
	}
	targetField := targetTable.FieldByID(cfg.TargetFieldID)
	if targetField == nil {
		return formula.FromError(&errors.LinkedFieldMissingError{FieldID: cfg.TargetFieldID}), nil
	}

	values := make([]formula.Value, 0, len(linked))
	for _, rec := range linked {
		if cfg.Filter != nil && *cfg.Filter != "" {
			keep, err := rs.exprEng.EvalBool(*cfg.Filter, filterEnv(targetTable, rec.Values))
			if err != nil {
				return formula.NewError("ARGUMENT_ERROR", "rollup filter: "+err.Error()), nil
			}
			if !keep {
				continue
			}
		}
		values = append(values, valueForField(targetField, rec.Values[targetField.ID]))
	}
	return Aggregate(cfg.Aggregation, values), nil
}

func (rs *RecomputeService) gatherLinked(ctx context.Context, table *models.TableDefinition, recordID, linkFieldID string) ([]ports.LinkedRecord, *models.TableDefinition, bool, *formula.Value) {
	linkField := table.FieldByID(linkFieldID)
	if linkField == nil || linkField.Link == nil {
		v := formula.FromError(&errors.LinkedFieldMissingError{FieldID: linkFieldID})
		return nil, nil, false, &v
	}
	targetTable, err := rs.catalog.GetTable(ctx, linkField.Link.TargetTableID)
	if err != nil {
		v := formula.FromError(err)
		return nil, nil, false, &v
	}
	linked, err := rs.store.GetLinkedRecords(ctx, table.ID, recordID, linkFieldID, targetTable.ID)
	if err != nil {
		v := formula.FromError(err)
		return nil, nil, false, &v
	}
	return linked, targetTable, linkField.Link.SingleValue, nil
}

// fanOut finds lookup and rollup fields in other tables that read any of the
// changed fields through a link, and recomputes them on every record linking
// to this one. Parent records are processed in parallel.
func (rs *RecomputeService) fanOut(ctx context.Context, c *cascade, tableID, recordID string, changedFieldIDs []string) error {
	dependents := rs.graph.LinkedDependents(changedFieldIDs)
	if len(dependents) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rs.opts.Workers)

	for _, dep := range dependents {
		dep := dep
		depField, err := rs.catalog.GetField(ctx, dep.FieldID)
		if err != nil {
			if errors.IsNotFound(err) {
				continue // dependent removed mid-flight
			}
			return err
		}
		parentIDs, err := rs.store.FindLinkingRecords(ctx, depField.TableID, dep.ViaLink, recordID)
		if err != nil {
			return err
		}
		for _, parentID := range parentIDs {
			parentID := parentID
			g.Go(func() error {
				return rs.recomputeFields(gctx, c, depField.TableID, parentID, []string{dep.FieldID})
			})
		}
	}
	if err := g.Wait(); err != nil {
		log.Printf("⚠️ Recompute fan-out from %s/%s failed: %v", tableID, recordID, err)
		return err
	}
	return nil
}

// filterEnv exposes a linked record's values by field name for rollup filter
// conditions.
func filterEnv(table *models.TableDefinition, record models.Record) map[string]any {
	env := make(map[string]any, len(table.Fields))
	for i := range table.Fields {
		f := &table.Fields[i]
		env[f.Name] = valueForField(f, record[f.ID]).ToAny()
	}
	return env
}

// valueForField converts a stored raw value into a typed Value using the
// field's declared type. Dates are stored as strings and parsed here;
// numeric strings in a text field stay text.
func valueForField(field *models.FieldDefinition, raw any) formula.Value {
	if raw == nil {
		return formula.Null()
	}
	switch field.Type {
	case models.FieldTypeDate:
		if s, ok := raw.(string); ok {
			if t, err := time.Parse(formula.DateLayout, s); err == nil {
				return formula.Date(t)
			}
			if t, err := time.Parse("2006-01-02", s); err == nil {
				return formula.Date(t)
			}
			return formula.Null()
		}
	case models.FieldTypeLink:
		ids := linkIDValues(raw)
		return formula.Array(ids)
	}
	return formula.FromAny(raw)
}

func linkIDValues(raw any) []formula.Value {
	switch ids := raw.(type) {
	case []string:
		out := make([]formula.Value, len(ids))
		for i, id := range ids {
			out[i] = formula.Text(id)
		}
		return out
	case []any:
		out := make([]formula.Value, 0, len(ids))
		for _, id := range ids {
			if s, ok := id.(string); ok {
				out = append(out, formula.Text(s))
			}
		}
		return out
	case string:
		if ids == "" {
			return nil
		}
		return []formula.Value{formula.Text(ids)}
	}
	return nil
}
