// Package sqlstore implements the catalog and record store ports on MySQL.
// Schemas live in a table_definitions table as JSON documents; record data
// is one JSON document per row, keyed by field id.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/dmdorta1111/AirTable-sub000/internal/domain/models"
	"github.com/dmdorta1111/AirTable-sub000/internal/domain/ports"
	"github.com/dmdorta1111/AirTable-sub000/pkg/errors"
)

// Store is a MySQL-backed implementation of both ports.
type Store struct {
	db *sql.DB
}

var (
	_ ports.FieldCatalog = (*Store)(nil)
	_ ports.RecordStore  = (*Store)(nil)
)

// Open connects to MySQL and verifies the connection.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	log.Println("✅ Connected to MySQL")
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection. Tests use it with sqlmock.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the backing tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS table_definitions (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			definition JSON NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			id VARCHAR(36) PRIMARY KEY,
			table_id VARCHAR(36) NOT NULL,
			data JSON NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_records_table (table_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}

func (s *Store) CreateTable(ctx context.Context, table *models.TableDefinition) error {
	if table.ID == "" {
		table.ID = uuid.New().String()
	}
	for i := range table.Fields {
		if table.Fields[i].ID == "" {
			table.Fields[i].ID = uuid.New().String()
		}
		table.Fields[i].TableID = table.ID
	}
	def, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("encoding table definition: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO table_definitions (id, name, definition) VALUES (?, ?, ?)",
		table.ID, table.Name, def)
	if err != nil {
		return fmt.Errorf("inserting table definition: %w", err)
	}
	return nil
}

func (s *Store) GetTable(ctx context.Context, tableID string) (*models.TableDefinition, error) {
	var def []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT definition FROM table_definitions WHERE id = ?", tableID).Scan(&def)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("table", tableID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading table %s: %w", tableID, err)
	}
	var table models.TableDefinition
	if err := json.Unmarshal(def, &table); err != nil {
		return nil, fmt.Errorf("decoding table %s: %w", tableID, err)
	}
	return &table, nil
}

func (s *Store) GetField(ctx context.Context, fieldID string) (*models.FieldDefinition, error) {
	tables, err := s.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tables {
		if f := tables[i].FieldByID(fieldID); f != nil {
			cp := *f
			return &cp, nil
		}
	}
	return nil, errors.NewNotFoundError("field", fieldID)
}

func (s *Store) GetTableFields(ctx context.Context, tableID string) ([]models.FieldDefinition, error) {
	table, err := s.GetTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return table.Fields, nil
}

func (s *Store) ListTables(ctx context.Context) ([]models.TableDefinition, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT definition FROM table_definitions")
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var out []models.TableDefinition
	for rows.Next() {
		var def []byte
		if err := rows.Scan(&def); err != nil {
			return nil, err
		}
		var table models.TableDefinition
		if err := json.Unmarshal(def, &table); err != nil {
			return nil, fmt.Errorf("decoding table definition: %w", err)
		}
		out = append(out, table)
	}
	return out, rows.Err()
}

func (s *Store) SaveField(ctx context.Context, field *models.FieldDefinition) error {
	table, err := s.GetTable(ctx, field.TableID)
	if err != nil {
		return err
	}
	if field.ID == "" {
		field.ID = uuid.New().String()
	}
	replaced := false
	for i := range table.Fields {
		if table.Fields[i].ID == field.ID {
			table.Fields[i] = *field
			replaced = true
			break
		}
	}
	if !replaced {
		table.Fields = append(table.Fields, *field)
	}
	return s.saveTable(ctx, table)
}

func (s *Store) DeleteField(ctx context.Context, fieldID string) error {
	field, err := s.GetField(ctx, fieldID)
	if err != nil {
		return err
	}
	table, err := s.GetTable(ctx, field.TableID)
	if err != nil {
		return err
	}
	for i := range table.Fields {
		if table.Fields[i].ID == fieldID {
			table.Fields = append(table.Fields[:i], table.Fields[i+1:]...)
			break
		}
	}
	return s.saveTable(ctx, table)
}

func (s *Store) saveTable(ctx context.Context, table *models.TableDefinition) error {
	def, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("encoding table definition: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE table_definitions SET name = ?, definition = ? WHERE id = ?",
		table.Name, def, table.ID)
	if err != nil {
		return fmt.Errorf("updating table definition: %w", err)
	}
	return nil
}

func (s *Store) GetRecordValues(ctx context.Context, tableID, recordID string) (models.Record, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM records WHERE id = ? AND table_id = ?", recordID, tableID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("record", recordID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading record %s: %w", recordID, err)
	}
	var record models.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", recordID, err)
	}
	return record, nil
}

func (s *Store) GetLinkedRecords(ctx context.Context, tableID, recordID, linkFieldID, targetTableID string) ([]ports.LinkedRecord, error) {
	record, err := s.GetRecordValues(ctx, tableID, recordID)
	if err != nil {
		return nil, err
	}
	ids := linkIDs(record[linkFieldID])
	out := make([]ports.LinkedRecord, 0, len(ids))
	for _, id := range ids {
		target, err := s.GetRecordValues(ctx, targetTableID, id)
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

// FindLinkingRecords scans the table's rows and matches the link value in
// Go. Link arrays are small and JSON path queries over them are not portable
// across MySQL versions, so the filter stays application-side.
func (s *Store) FindLinkingRecords(ctx context.Context, tableID, linkFieldID, targetRecordID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, data FROM records WHERE table_id = ? ORDER BY created_at", tableID)
	if err != nil {
		return nil, fmt.Errorf("scanning records of %s: %w", tableID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		var record models.Record
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("decoding record %s: %w", id, err)
		}
		for _, linked := range linkIDs(record[linkFieldID]) {
			if linked == targetRecordID {
				out = append(out, id)
				break
			}
		}
	}
	return out, rows.Err()
}

func (s *Store) ListRecordIDs(ctx context.Context, tableID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM records WHERE table_id = ? ORDER BY created_at", tableID)
	if err != nil {
		return nil, fmt.Errorf("listing records of %s: %w", tableID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) CreateRecord(ctx context.Context, tableID string, values models.Record) (string, error) {
	id := uuid.New().String()
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encoding record: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO records (id, table_id, data) VALUES (?, ?, ?)", id, tableID, data)
	if err != nil {
		return "", fmt.Errorf("inserting record: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateRecord(ctx context.Context, tableID, recordID string, values models.Record) error {
	return s.merge(ctx, tableID, recordID, values)
}

func (s *Store) WriteComputedValues(ctx context.Context, tableID, recordID string, values models.Record) error {
	return s.merge(ctx, tableID, recordID, values)
}

func (s *Store) merge(ctx context.Context, tableID, recordID string, values models.Record) error {
	record, err := s.GetRecordValues(ctx, tableID, recordID)
	if err != nil {
		return err
	}
	for k, v := range values {
		if v == nil {
			delete(record, k)
			continue
		}
		record[k] = v
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE records SET data = ? WHERE id = ? AND table_id = ?", data, recordID, tableID)
	if err != nil {
		return fmt.Errorf("updating record %s: %w", recordID, err)
	}
	return nil
}

func linkIDs(v interface{}) []string {
	switch ids := v.(type) {
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
