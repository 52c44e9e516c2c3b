package models

import (
	"strings"

	"github.com/dmdorta1111/AirTable-sub000/pkg/formula"
)

// FieldType is the closed set of field types. Computed types (formula,
// lookup, rollup) derive their values; everything else is stored directly.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeNumber   FieldType = "number"
	FieldTypeCheckbox FieldType = "checkbox"
	FieldTypeDate     FieldType = "date"
	FieldTypeLink     FieldType = "link"
	FieldTypeFormula  FieldType = "formula"
	FieldTypeLookup   FieldType = "lookup"
	FieldTypeRollup   FieldType = "rollup"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeText, FieldTypeNumber, FieldTypeCheckbox, FieldTypeDate,
		FieldTypeLink, FieldTypeFormula, FieldTypeLookup, FieldTypeRollup:
		return true
	}
	return false
}

// IsComputed reports whether values of this type are derived rather than
// written directly.
func (t FieldType) IsComputed() bool {
	return t == FieldTypeFormula || t == FieldTypeLookup || t == FieldTypeRollup
}

// ValueKind maps a stored field type to the runtime kind its values carry.
func (t FieldType) ValueKind() formula.Kind {
	switch t {
	case FieldTypeText:
		return formula.KindText
	case FieldTypeNumber:
		return formula.KindNumber
	case FieldTypeCheckbox:
		return formula.KindBool
	case FieldTypeDate:
		return formula.KindDate
	case FieldTypeLink:
		return formula.KindArray
	}
	return formula.KindNull
}

// FormulaConfig holds a formula field's expression and its compiled form.
// The AST is rebuilt whenever the expression text changes, never mutated.
type FormulaConfig struct {
	Expression string `json:"expression"`
	ResultType string `json:"result_type,omitempty"`
	Volatile   bool   `json:"volatile,omitempty"`

	AST formula.Node `json:"-"`
}

// LinkConfig configures a link field, whose value is a set of record ids in
// another table.
type LinkConfig struct {
	TargetTableID string `json:"target_table_id"`
	// SingleValue marks links that hold at most one record; lookups
	// through such links resolve to a scalar instead of an array.
	SingleValue bool `json:"single_value,omitempty"`
}

// LookupConfig configures a lookup field: the value of TargetFieldID on the
// records linked through LinkFieldID.
type LookupConfig struct {
	LinkFieldID   string `json:"link_field_id"`
	TargetFieldID string `json:"target_field_id"`
}

// Rollup aggregations.
const (
	AggSum          = "sum"
	AggAvg          = "avg"
	AggMin          = "min"
	AggMax          = "max"
	AggCount        = "count"
	AggCountA       = "counta"
	AggConcat       = "concat"
	AggArrayUnique  = "array_unique"
	AggArrayFlatten = "array_flatten"
)

// ValidAggregation reports whether agg names a supported rollup aggregation.
func ValidAggregation(agg string) bool {
	switch strings.ToLower(agg) {
	case AggSum, AggAvg, AggMin, AggMax, AggCount, AggCountA,
		AggConcat, AggArrayUnique, AggArrayFlatten:
		return true
	}
	return false
}

// RollupConfig configures a rollup field: Aggregation applied over the
// TargetFieldID values of records linked through LinkFieldID. Filter is an
// optional per-linked-record condition; records it rejects are excluded
// before aggregation.
type RollupConfig struct {
	LinkFieldID   string  `json:"link_field_id"`
	TargetFieldID string  `json:"target_field_id"`
	Aggregation   string  `json:"aggregation"`
	Filter        *string `json:"filter,omitempty"`
}

// FieldDefinition is the schema of one field. Exactly one of the config
// pointers is set, matching Type.
type FieldDefinition struct {
	ID      string    `json:"id"`
	TableID string    `json:"table_id"`
	Name    string    `json:"name"`
	Type    FieldType `json:"type"`

	Formula *FormulaConfig `json:"formula,omitempty"`
	Link    *LinkConfig    `json:"link,omitempty"`
	Lookup  *LookupConfig  `json:"lookup,omitempty"`
	Rollup  *RollupConfig  `json:"rollup,omitempty"`
}

// IsComputed reports whether the field's value is derived.
func (f *FieldDefinition) IsComputed() bool {
	return f.Type.IsComputed()
}

// TableDefinition is the schema of one table in a base.
type TableDefinition struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Fields []FieldDefinition `json:"fields"`
}

// FieldByName resolves a field by its display name, case-sensitively first
// and case-insensitively as a fallback.
func (t *TableDefinition) FieldByName(name string) *FieldDefinition {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i]
		}
	}
	for i := range t.Fields {
		if strings.EqualFold(t.Fields[i].Name, name) {
			return &t.Fields[i]
		}
	}
	return nil
}

// FieldByID resolves a field by id.
func (t *TableDefinition) FieldByID(id string) *FieldDefinition {
	for i := range t.Fields {
		if t.Fields[i].ID == id {
			return &t.Fields[i]
		}
	}
	return nil
}

// Record is a record's field values keyed by field id. The record's own id
// is carried separately by the storage boundary.
type Record map[string]interface{}
