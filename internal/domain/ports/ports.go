// Package ports defines the interfaces the application services depend on.
// Infrastructure packages provide the implementations.
package ports

import (
	"context"

	"github.com/dmdorta1111/AirTable-sub000/internal/domain/models"
)

// FieldCatalog is the schema store: tables and field definitions.
type FieldCatalog interface {
	GetTable(ctx context.Context, tableID string) (*models.TableDefinition, error)
	GetField(ctx context.Context, fieldID string) (*models.FieldDefinition, error)
	GetTableFields(ctx context.Context, tableID string) ([]models.FieldDefinition, error)
	ListTables(ctx context.Context) ([]models.TableDefinition, error)

	CreateTable(ctx context.Context, table *models.TableDefinition) error
	SaveField(ctx context.Context, field *models.FieldDefinition) error
	DeleteField(ctx context.Context, fieldID string) error
}

// RecordStore reads and writes record data.
type RecordStore interface {
	// GetRecordValues returns the stored values of one record keyed by
	// field id. A missing record is a NotFoundError.
	GetRecordValues(ctx context.Context, tableID, recordID string) (models.Record, error)

	// GetLinkedRecords returns, for each id in recordIDs, the records of
	// targetTableID it links to through linkFieldID, preserving the
	// order stored in the link value.
	GetLinkedRecords(ctx context.Context, tableID, recordID, linkFieldID, targetTableID string) ([]LinkedRecord, error)

	// FindLinkingRecords returns the ids of records in tableID whose
	// linkFieldID value contains targetRecordID.
	FindLinkingRecords(ctx context.Context, tableID, linkFieldID, targetRecordID string) ([]string, error)

	ListRecordIDs(ctx context.Context, tableID string) ([]string, error)

	CreateRecord(ctx context.Context, tableID string, values models.Record) (string, error)
	UpdateRecord(ctx context.Context, tableID, recordID string, values models.Record) error

	// WriteComputedValues persists derived values without triggering any
	// further change handling.
	WriteComputedValues(ctx context.Context, tableID, recordID string, values models.Record) error
}

// LinkedRecord is one record reached through a link field.
type LinkedRecord struct {
	ID     string
	Values models.Record
}
