// Package memstore provides in-memory implementations of the catalog and
// record store ports. It backs the default server configuration and the
// service tests.
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dmdorta1111/AirTable-sub000/internal/domain/models"
	"github.com/dmdorta1111/AirTable-sub000/internal/domain/ports"
	"github.com/dmdorta1111/AirTable-sub000/pkg/errors"
)

// Store holds tables, field definitions and record data behind one lock.
type Store struct {
	mu         sync.RWMutex
	tables     map[string]*models.TableDefinition
	fieldIndex map[string]string // field id -> table id
	records    map[string]map[string]models.Record
	order      map[string][]string // table id -> record ids in insert order
}

// New returns an empty store.
func New() *Store {
	return &Store{
		tables:     make(map[string]*models.TableDefinition),
		fieldIndex: make(map[string]string),
		records:    make(map[string]map[string]models.Record),
		order:      make(map[string][]string),
	}
}

var (
	_ ports.FieldCatalog = (*Store)(nil)
	_ ports.RecordStore  = (*Store)(nil)
)

func (s *Store) CreateTable(ctx context.Context, table *models.TableDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if table.ID == "" {
		table.ID = uuid.New().String()
	}
	if _, exists := s.tables[table.ID]; exists {
		return errors.NewConflictError("table", "table already exists: "+table.ID)
	}
	for i := range table.Fields {
		f := &table.Fields[i]
		if f.ID == "" {
			f.ID = uuid.New().String()
		}
		f.TableID = table.ID
		s.fieldIndex[f.ID] = table.ID
	}
	cp := *table
	cp.Fields = append([]models.FieldDefinition(nil), table.Fields...)
	s.tables[table.ID] = &cp
	s.records[table.ID] = make(map[string]models.Record)
	return nil
}

func (s *Store) GetTable(ctx context.Context, tableID string) (*models.TableDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getTableLocked(tableID)
}

func (s *Store) getTableLocked(tableID string) (*models.TableDefinition, error) {
	t, ok := s.tables[tableID]
	if !ok {
		return nil, errors.NewNotFoundError("table", tableID)
	}
	cp := *t
	cp.Fields = append([]models.FieldDefinition(nil), t.Fields...)
	return &cp, nil
}

func (s *Store) GetField(ctx context.Context, fieldID string) (*models.FieldDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tableID, ok := s.fieldIndex[fieldID]
	if !ok {
		return nil, errors.NewNotFoundError("field", fieldID)
	}
	t := s.tables[tableID]
	f := t.FieldByID(fieldID)
	if f == nil {
		return nil, errors.NewNotFoundError("field", fieldID)
	}
	cp := *f
	return &cp, nil
}

func (s *Store) GetTableFields(ctx context.Context, tableID string) ([]models.FieldDefinition, error) {
	t, err := s.GetTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return t.Fields, nil
}

func (s *Store) ListTables(ctx context.Context) ([]models.TableDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.TableDefinition, 0, len(s.tables))
	for id := range s.tables {
		t, _ := s.getTableLocked(id)
		out = append(out, *t)
	}
	return out, nil
}

func (s *Store) SaveField(ctx context.Context, field *models.FieldDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[field.TableID]
	if !ok {
		return errors.NewNotFoundError("table", field.TableID)
	}
	if field.ID == "" {
		field.ID = uuid.New().String()
	}
	for i := range t.Fields {
		if t.Fields[i].ID == field.ID {
			t.Fields[i] = *field
			return nil
		}
	}
	t.Fields = append(t.Fields, *field)
	s.fieldIndex[field.ID] = field.TableID
	return nil
}

func (s *Store) DeleteField(ctx context.Context, fieldID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tableID, ok := s.fieldIndex[fieldID]
	if !ok {
		return errors.NewNotFoundError("field", fieldID)
	}
	t := s.tables[tableID]
	for i := range t.Fields {
		if t.Fields[i].ID == fieldID {
			t.Fields = append(t.Fields[:i], t.Fields[i+1:]...)
			break
		}
	}
	delete(s.fieldIndex, fieldID)
	for _, rec := range s.records[tableID] {
		delete(rec, fieldID)
	}
	return nil
}

func (s *Store) GetRecordValues(ctx context.Context, tableID, recordID string) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRecordLocked(tableID, recordID)
}

func (s *Store) getRecordLocked(tableID, recordID string) (models.Record, error) {
	recs, ok := s.records[tableID]
	if !ok {
		return nil, errors.NewNotFoundError("table", tableID)
	}
	rec, ok := recs[recordID]
	if !ok {
		return nil, errors.NewNotFoundError("record", recordID)
	}
	cp := make(models.Record, len(rec))
	for k, v := range rec {
		cp[k] = v
	}
	return cp, nil
}

func (s *Store) GetLinkedRecords(ctx context.Context, tableID, recordID, linkFieldID, targetTableID string) ([]ports.LinkedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.getRecordLocked(tableID, recordID)
	if err != nil {
		return nil, err
	}
	ids := LinkIDs(rec[linkFieldID])
	out := make([]ports.LinkedRecord, 0, len(ids))
	for _, id := range ids {
		target, err := s.getRecordLocked(targetTableID, id)
		if err != nil {
			if errors.IsNotFound(err) {
				continue // dangling link
			}
			return nil, err
		}
		out = append(out, ports.LinkedRecord{ID: id, Values: target})
	}
	return out, nil
}

func (s *Store) FindLinkingRecords(ctx context.Context, tableID, linkFieldID, targetRecordID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, id := range s.order[tableID] {
		rec := s.records[tableID][id]
		for _, linked := range LinkIDs(rec[linkFieldID]) {
			if linked == targetRecordID {
				out = append(out, id)
				break
			}
		}
	}
	return out, nil
}

func (s *Store) ListRecordIDs(ctx context.Context, tableID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.records[tableID]; !ok {
		return nil, errors.NewNotFoundError("table", tableID)
	}
	return append([]string(nil), s.order[tableID]...), nil
}

func (s *Store) CreateRecord(ctx context.Context, tableID string, values models.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, ok := s.records[tableID]
	if !ok {
		return "", errors.NewNotFoundError("table", tableID)
	}
	id := uuid.New().String()
	rec := make(models.Record, len(values))
	for k, v := range values {
		rec[k] = v
	}
	recs[id] = rec
	s.order[tableID] = append(s.order[tableID], id)
	return id, nil
}

func (s *Store) UpdateRecord(ctx context.Context, tableID, recordID string, values models.Record) error {
	return s.merge(tableID, recordID, values)
}

func (s *Store) WriteComputedValues(ctx context.Context, tableID, recordID string, values models.Record) error {
	return s.merge(tableID, recordID, values)
}

func (s *Store) merge(tableID, recordID string, values models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, ok := s.records[tableID]
	if !ok {
		return errors.NewNotFoundError("table", tableID)
	}
	rec, ok := recs[recordID]
	if !ok {
		return errors.NewNotFoundError("record", recordID)
	}
	for k, v := range values {
		if v == nil {
			delete(rec, k)
			continue
		}
		rec[k] = v
	}
	return nil
}

// LinkIDs normalizes a stored link value into a slice of record ids.
func LinkIDs(v interface{}) []string {
	switch ids := v.(type) {
	case nil:
		return nil
	case []string:
		return ids
	case string:
		if ids == "" {
			return nil
		}
		return []string{ids}
	case []interface{}:
		out := make([]string, 0, len(ids))
		for _, item := range ids {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
