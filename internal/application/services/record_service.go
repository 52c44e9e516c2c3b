package services

import (
	"context"
	"fmt"

	"github.com/dmdorta1111/AirTable-sub000/internal/domain/models"
	"github.com/dmdorta1111/AirTable-sub000/internal/domain/ports"
	"github.com/dmdorta1111/AirTable-sub000/pkg/errors"
)

// RecordService handles record CRUD. Writes accept raw fields only; computed
// cells are filled in by the recompute service before the call returns, so a
// read issued after a write observes consistent derived values.
type RecordService struct {
	catalog   ports.FieldCatalog
	store     ports.RecordStore
	recompute *RecomputeService
}

// NewRecordService creates a new RecordService.
func NewRecordService(catalog ports.FieldCatalog, store ports.RecordStore, recompute *RecomputeService) *RecordService {
	return &RecordService{catalog: catalog, store: store, recompute: recompute}
}

// CreateRecord inserts a record and evaluates all of its computed fields.
// Values are keyed by field name in the request and by field id in storage.
func (s *RecordService) CreateRecord(ctx context.Context, tableID string, values map[string]any) (string, error) {
	table, err := s.catalog.GetTable(ctx, tableID)
	if err != nil {
		return "", err
	}
	byID, changed, err := resolveWrite(table, values)
	if err != nil {
		return "", err
	}
	recordID, err := s.store.CreateRecord(ctx, tableID, byID)
	if err != nil {
		return "", err
	}
	if err := s.recompute.RecomputeRecord(ctx, tableID, recordID); err != nil {
		return recordID, err
	}
	// New link values also affect rollups on the records now linked to.
	if len(changed) > 0 {
		if err := s.recompute.RecordWritten(ctx, tableID, recordID, changed); err != nil {
			return recordID, err
		}
	}
	return recordID, nil
}

// UpdateRecord applies a partial update and recomputes everything downstream
// of the changed fields.
func (s *RecordService) UpdateRecord(ctx context.Context, tableID, recordID string, values map[string]any) error {
	table, err := s.catalog.GetTable(ctx, tableID)
	if err != nil {
		return err
	}
	byID, changed, err := resolveWrite(table, values)
	if err != nil {
		return err
	}
	if err := s.store.UpdateRecord(ctx, tableID, recordID, byID); err != nil {
		return err
	}
	return s.recompute.RecordWritten(ctx, tableID, recordID, changed)
}

// GetRecord returns a record's values keyed by field name.
func (s *RecordService) GetRecord(ctx context.Context, tableID, recordID string) (map[string]any, error) {
	table, err := s.catalog.GetTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	record, err := s.store.GetRecordValues(ctx, tableID, recordID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(table.Fields)+1)
	out["id"] = recordID
	for i := range table.Fields {
		f := &table.Fields[i]
		if v, ok := record[f.ID]; ok {
			out[f.Name] = v
		}
	}
	return out, nil
}

// ListRecords returns every record of a table keyed by field name.
func (s *RecordService) ListRecords(ctx context.Context, tableID string) ([]map[string]any, error) {
	ids, err := s.store.ListRecordIDs(ctx, tableID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetRecord(ctx, tableID, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// resolveWrite maps a name-keyed write to field ids and rejects writes to
// computed or unknown fields. It returns the stored form and the changed ids.
func resolveWrite(table *models.TableDefinition, values map[string]any) (models.Record, []string, error) {
	byID := make(models.Record, len(values))
	changed := make([]string, 0, len(values))
	for name, v := range values {
		f := table.FieldByName(name)
		if f == nil {
			return nil, nil, errors.NewValidationError(name, "unknown field: "+name)
		}
		if f.IsComputed() {
			return nil, nil, errors.NewValidationError(name,
				fmt.Sprintf("field %q is computed and cannot be written", name))
		}
		byID[f.ID] = v
		changed = append(changed, f.ID)
	}
	return byID, changed, nil
}
