package compose

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"transit-backend/internal/resource"
	"transit-backend/internal/store"
)

func zonesDesc() *resource.Descriptor {
	return &resource.Descriptor{
		Name:         "zones",
		Table:        "zones",
		PrimaryKey:   "id",
		SoftDelete:   true,
		Columns:      []string{"id", "code", "color", "is_active"},
		UniqueFields: []string{"code"},
		References: []resource.Reference{
			{Field: "zone_id", Table: "zones", RequireActive: true, SoftDelete: true},
		},
	}
}

func TestSoftDeleteRecordIdempotence(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	dialect := &store.PostgresDialect{}
	d := zonesDesc()

	mock.ExpectExec("UPDATE zones SET deleted_at = NOW\\(\\), updated_at = NOW\\(\\) WHERE id = \\$1 AND deleted_at IS NULL").
		WithArgs("z1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, SoftDeleteRecord(context.Background(), db, dialect, d, "z1"))

	// Second delete sees zero live rows and reports not found.
	mock.ExpectExec("UPDATE zones SET deleted_at = NOW\\(\\)").
		WithArgs("z1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = SoftDeleteRecord(context.Background(), db, dialect, d, "z1")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRecordWritesColumnsAndFetches(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	dialect := &store.PostgresDialect{}
	d := zonesDesc()

	mock.ExpectExec("INSERT INTO zones \\(id, code, color, created_at, updated_at\\) VALUES \\(\\$1, \\$2, \\$3, NOW\\(\\), NOW\\(\\)\\)").
		WithArgs(sqlmock.AnyArg(), "A", "#ff0000").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, code, color, is_active FROM zones WHERE id = \\$1 AND deleted_at IS NULL").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "color", "is_active"}).
			AddRow("generated", "A", "#ff0000", true))

	record, err := InsertRecord(context.Background(), db, dialect, d, map[string]any{
		"code":    "A",
		"color":   "#ff0000",
		"ignored": "not a column",
	})
	require.NoError(t, err)
	require.Equal(t, "A", record["code"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRecordMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	dialect := &store.PostgresDialect{}
	d := zonesDesc()

	mock.ExpectExec("UPDATE zones SET code = \\$1, updated_at = NOW\\(\\) WHERE id = \\$2 AND deleted_at IS NULL").
		WithArgs("B", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = UpdateRecord(context.Background(), db, dialect, d, "missing", map[string]any{"code": "B"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRefuseIfChildrenConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	dialect := &store.PostgresDialect{}

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) AS total FROM stops WHERE zone_id = \\$1 AND deleted_at IS NULL").
		WithArgs("z1").
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(int64(3)))

	err = RefuseIfChildren(context.Background(), db, dialect, "stops", "zone_id", "z1", true, "Zone still has stops")
	var appErr *resource.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, 409, appErr.Status)
	require.Equal(t, "CONFLICT", appErr.Code)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) AS total FROM stops").
		WithArgs("z2").
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(int64(0)))
	require.NoError(t, RefuseIfChildren(context.Background(), db, dialect, "stops", "zone_id", "z2", true, "x"))
}

func TestCheckUniqueConflictAndExclusion(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	dialect := &store.PostgresDialect{}
	d := zonesDesc()

	mock.ExpectQuery("SELECT 1 AS ok FROM zones WHERE code = \\$1 AND deleted_at IS NULL").
		WithArgs("A").
		WillReturnRows(sqlmock.NewRows([]string{"ok"}).AddRow(1))

	err = CheckUnique(context.Background(), db, dialect, d, map[string]any{"code": "A"}, "")
	var appErr *resource.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "CONFLICT", appErr.Code)

	// The row being updated does not conflict with itself.
	mock.ExpectQuery("SELECT 1 AS ok FROM zones WHERE code = \\$1 AND deleted_at IS NULL AND id != \\$2").
		WithArgs("A", "z1").
		WillReturnRows(sqlmock.NewRows([]string{"ok"}))
	require.NoError(t, CheckUnique(context.Background(), db, dialect, d, map[string]any{"code": "A"}, "z1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateReferencesMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	dialect := &store.PostgresDialect{}
	d := zonesDesc()

	mock.ExpectQuery("SELECT 1 AS ok FROM zones WHERE id = \\$1 AND deleted_at IS NULL AND is_active").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"ok"}))

	err = ValidateReferences(context.Background(), db, dialect, d.References, map[string]any{"zone_id": "ghost"})
	var appErr *resource.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "VALIDATION_FAILED", appErr.Code)
	require.Equal(t, "zone_id", appErr.Details[0].Field)

	// Absent keys are skipped without touching the database.
	require.NoError(t, ValidateReferences(context.Background(), db, dialect, d.References, map[string]any{"code": "A"}))
	require.NoError(t, mock.ExpectationsWereMet())
}
