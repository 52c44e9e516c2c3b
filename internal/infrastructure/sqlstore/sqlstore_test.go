package sqlstore

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmdorta1111/AirTable-sub000/internal/domain/models"
	"github.com/dmdorta1111/AirTable-sub000/pkg/errors"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestGetTable(t *testing.T) {
	store, mock := newMockStore(t)

	def := mustJSON(t, models.TableDefinition{
		ID:   "tbl",
		Name: "Orders",
		Fields: []models.FieldDefinition{
			{ID: "f_amount", TableID: "tbl", Name: "Amount", Type: models.FieldTypeNumber},
		},
	})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT definition FROM table_definitions WHERE id = ?")).
		WithArgs("tbl").
		WillReturnRows(sqlmock.NewRows([]string{"definition"}).AddRow(def))

	table, err := store.GetTable(context.Background(), "tbl")
	require.NoError(t, err)
	assert.Equal(t, "Orders", table.Name)
	require.Len(t, table.Fields, 1)
	assert.Equal(t, models.FieldTypeNumber, table.Fields[0].Type)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTableNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT definition FROM table_definitions WHERE id = ?")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"definition"}))

	_, err := store.GetTable(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestCreateTableAssignsIDs(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO table_definitions (id, name, definition) VALUES (?, ?, ?)")).
		WithArgs(sqlmock.AnyArg(), "Orders", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	table := &models.TableDefinition{
		Name:   "Orders",
		Fields: []models.FieldDefinition{{Name: "Amount", Type: models.FieldTypeNumber}},
	}
	require.NoError(t, store.CreateTable(context.Background(), table))
	assert.NotEmpty(t, table.ID)
	assert.NotEmpty(t, table.Fields[0].ID)
	assert.Equal(t, table.ID, table.Fields[0].TableID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveFieldRewritesDefinition(t *testing.T) {
	store, mock := newMockStore(t)

	def := mustJSON(t, models.TableDefinition{
		ID:   "tbl",
		Name: "Orders",
		Fields: []models.FieldDefinition{
			{ID: "f_amount", TableID: "tbl", Name: "Amount", Type: models.FieldTypeNumber},
		},
	})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT definition FROM table_definitions WHERE id = ?")).
		WithArgs("tbl").
		WillReturnRows(sqlmock.NewRows([]string{"definition"}).AddRow(def))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE table_definitions SET name = ?, definition = ? WHERE id = ?")).
		WithArgs("Orders", sqlmock.AnyArg(), "tbl").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.SaveField(context.Background(), &models.FieldDefinition{
		ID: "f_qty", TableID: "tbl", Name: "Qty", Type: models.FieldTypeNumber,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecordValues(t *testing.T) {
	store, mock := newMockStore(t)

	data := mustJSON(t, models.Record{"f_amount": 42.0})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM records WHERE id = ? AND table_id = ?")).
		WithArgs("rec1", "tbl").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(data))

	record, err := store.GetRecordValues(context.Background(), "tbl", "rec1")
	require.NoError(t, err)
	assert.Equal(t, 42.0, record["f_amount"])
}

func TestMergeDeletesNilValues(t *testing.T) {
	store, mock := newMockStore(t)

	data := mustJSON(t, models.Record{"f_a": "keep", "f_b": "drop"})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM records WHERE id = ? AND table_id = ?")).
		WithArgs("rec1", "tbl").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(data))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE records SET data = ? WHERE id = ? AND table_id = ?")).
		WithArgs([]byte(`{"f_a":"keep"}`), "rec1", "tbl").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpdateRecord(context.Background(), "tbl", "rec1", models.Record{"f_b": nil})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindLinkingRecords(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "data"}).
		AddRow("p1", mustJSON(t, models.Record{"f_link": []string{"child", "other"}})).
		AddRow("p2", mustJSON(t, models.Record{"f_link": []string{"other"}})).
		AddRow("p3", mustJSON(t, models.Record{}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, data FROM records WHERE table_id = ? ORDER BY created_at")).
		WithArgs("parents").
		WillReturnRows(rows)

	ids, err := store.FindLinkingRecords(context.Background(), "parents", "f_link", "child")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)
}

func TestListRecordIDs(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM records WHERE table_id = ? ORDER BY created_at")).
		WithArgs("tbl").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))

	ids, err := store.ListRecordIDs(context.Background(), "tbl")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestGetLinkedRecordsSkipsDangling(t *testing.T) {
	store, mock := newMockStore(t)

	parent := mustJSON(t, models.Record{"f_link": []string{"c1", "gone"}})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM records WHERE id = ? AND table_id = ?")).
		WithArgs("p1", "parents").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(parent))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM records WHERE id = ? AND table_id = ?")).
		WithArgs("c1", "children").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(mustJSON(t, models.Record{"f_name": "one"})))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM records WHERE id = ? AND table_id = ?")).
		WithArgs("gone", "children").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	linked, err := store.GetLinkedRecords(context.Background(), "parents", "p1", "f_link", "children")
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, "c1", linked[0].ID)
	assert.Equal(t, "one", linked[0].Values["f_name"])
}
