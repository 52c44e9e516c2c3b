package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmdorta1111/AirTable-sub000/internal/domain/models"
	"github.com/dmdorta1111/AirTable-sub000/pkg/errors"
)

func newStoreWithTable(t *testing.T) *Store {
	t.Helper()
	s := New()
	err := s.CreateTable(context.Background(), &models.TableDefinition{
		ID:   "tbl",
		Name: "Items",
		Fields: []models.FieldDefinition{
			{ID: "f_name", Name: "Name", Type: models.FieldTypeText},
			{ID: "f_amount", Name: "Amount", Type: models.FieldTypeNumber},
		},
	})
	require.NoError(t, err)
	return s
}

func TestTableLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStoreWithTable(t)

	got, err := s.GetTable(ctx, "tbl")
	require.NoError(t, err)
	assert.Equal(t, "Items", got.Name)
	assert.Len(t, got.Fields, 2)

	// Mutating the returned copy must not leak into the store.
	got.Fields[0].Name = "Mutated"
	again, err := s.GetTable(ctx, "tbl")
	require.NoError(t, err)
	assert.Equal(t, "Name", again.Fields[0].Name)

	_, err = s.GetTable(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))

	err = s.CreateTable(ctx, &models.TableDefinition{ID: "tbl", Name: "Dup"})
	assert.True(t, errors.IsConflict(err))
}

func TestFieldCRUD(t *testing.T) {
	ctx := context.Background()
	s := newStoreWithTable(t)

	require.NoError(t, s.SaveField(ctx, &models.FieldDefinition{
		ID: "f_done", TableID: "tbl", Name: "Done", Type: models.FieldTypeCheckbox,
	}))
	f, err := s.GetField(ctx, "f_done")
	require.NoError(t, err)
	assert.Equal(t, "tbl", f.TableID)

	// Update in place keeps the field count stable.
	require.NoError(t, s.SaveField(ctx, &models.FieldDefinition{
		ID: "f_done", TableID: "tbl", Name: "Completed", Type: models.FieldTypeCheckbox,
	}))
	table, err := s.GetTable(ctx, "tbl")
	require.NoError(t, err)
	assert.Len(t, table.Fields, 3)
	assert.Equal(t, "Completed", table.FieldByID("f_done").Name)

	// Deleting a field scrubs its stored values too.
	id, err := s.CreateRecord(ctx, "tbl", models.Record{"f_done": true, "f_name": "x"})
	require.NoError(t, err)
	require.NoError(t, s.DeleteField(ctx, "f_done"))
	rec, err := s.GetRecordValues(ctx, "tbl", id)
	require.NoError(t, err)
	assert.NotContains(t, rec, "f_done")
	assert.Equal(t, "x", rec["f_name"])

	_, err = s.GetField(ctx, "f_done")
	assert.True(t, errors.IsNotFound(err))
}

func TestRecordMergeAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newStoreWithTable(t)

	id, err := s.CreateRecord(ctx, "tbl", models.Record{"f_name": "a", "f_amount": 1.0})
	require.NoError(t, err)

	// Partial update merges; nil deletes a key.
	require.NoError(t, s.UpdateRecord(ctx, "tbl", id, models.Record{"f_amount": 2.0}))
	require.NoError(t, s.UpdateRecord(ctx, "tbl", id, models.Record{"f_name": nil}))

	rec, err := s.GetRecordValues(ctx, "tbl", id)
	require.NoError(t, err)
	assert.Equal(t, 2.0, rec["f_amount"])
	assert.NotContains(t, rec, "f_name")

	err = s.UpdateRecord(ctx, "tbl", "missing", models.Record{})
	assert.True(t, errors.IsNotFound(err))
}

func TestListRecordIDsInsertOrder(t *testing.T) {
	ctx := context.Background()
	s := newStoreWithTable(t)

	a, _ := s.CreateRecord(ctx, "tbl", models.Record{})
	b, _ := s.CreateRecord(ctx, "tbl", models.Record{})
	c, _ := s.CreateRecord(ctx, "tbl", models.Record{})

	ids, err := s.ListRecordIDs(ctx, "tbl")
	require.NoError(t, err)
	assert.Equal(t, []string{a, b, c}, ids)
}

func TestLinkedRecords(t *testing.T) {
	ctx := context.Background()
	s := newStoreWithTable(t)
	require.NoError(t, s.CreateTable(ctx, &models.TableDefinition{
		ID:   "parents",
		Name: "Parents",
		Fields: []models.FieldDefinition{
			{ID: "p_items", Name: "Items", Type: models.FieldTypeLink,
				Link: &models.LinkConfig{TargetTableID: "tbl"}},
		},
	}))

	i1, _ := s.CreateRecord(ctx, "tbl", models.Record{"f_name": "one"})
	i2, _ := s.CreateRecord(ctx, "tbl", models.Record{"f_name": "two"})
	p1, _ := s.CreateRecord(ctx, "parents", models.Record{"p_items": []string{i1, i2, "gone"}})
	p2, _ := s.CreateRecord(ctx, "parents", models.Record{"p_items": []string{i2}})

	linked, err := s.GetLinkedRecords(ctx, "parents", p1, "p_items", "tbl")
	require.NoError(t, err)
	require.Len(t, linked, 2) // dangling id skipped
	assert.Equal(t, "one", linked[0].Values["f_name"])
	assert.Equal(t, "two", linked[1].Values["f_name"])

	backrefs, err := s.FindLinkingRecords(ctx, "parents", "p_items", i2)
	require.NoError(t, err)
	assert.Equal(t, []string{p1, p2}, backrefs)

	backrefs, err = s.FindLinkingRecords(ctx, "parents", "p_items", "nobody")
	require.NoError(t, err)
	assert.Empty(t, backrefs)
}

func TestLinkIDs(t *testing.T) {
	assert.Nil(t, LinkIDs(nil))
	assert.Equal(t, []string{"a"}, LinkIDs("a"))
	assert.Nil(t, LinkIDs(""))
	assert.Equal(t, []string{"a", "b"}, LinkIDs([]string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, LinkIDs([]interface{}{"a", "b", 3}))
	assert.Nil(t, LinkIDs(42))
}
