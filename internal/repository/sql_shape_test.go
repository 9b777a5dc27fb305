package repository

import (
	"context"
	"regexp"
	"testing"

	"fleetops/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newPostgresMock opens gorm over sqlmock with the postgres dialect
func newPostgresMock(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	return db, mock
}

func TestGrant_UsesOnConflictDoNothing(t *testing.T) {
	db, mock := newPostgresMock(t)
	repo := NewPermissionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "role_permissions" .* ON CONFLICT DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	granted, err := repo.Grant(context.Background(), uuid.New(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, int64(1), granted, "rows skipped by the conflict clause are not counted")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecords_PostgresNumericOrder(t *testing.T) {
	db, mock := newPostgresMock(t)
	repo := NewRecordRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "dynamic_records" WHERE category = $1`)).
		WithArgs(model.CategoryFinance).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY (CASE WHEN (fields ->> $2::text) ~ '^-{0,1}[0-9]+(\.[0-9]+){0,1}$' THEN (fields ->> $3::text)::numeric END) DESC NULLS LAST, id ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "category", "year", "month_name", "fields"}).
			AddRow(1, model.CategoryFinance, 2024, "March", []byte(`{"trips":"10"}`)))

	records, total, err := repo.List(context.Background(),
		RecordFilter{Category: model.CategoryFinance},
		RecordSort{JSONKey: "trips", Numeric: true, Desc: true}, 0, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, records, 1)
	assert.Equal(t, "10", records[0].Fields["trips"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecords_PostgresTextSearch(t *testing.T) {
	db, mock := newPostgresMock(t)
	repo := NewRecordRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE category = $1 AND LOWER((fields ->> $2::text)) LIKE LOWER($3) ESCAPE '\'`)).
		WithArgs(model.CategoryPayslip, model.DisplayKey, `%an\_n%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY (fields ->> $4::text) ASC NULLS LAST, id ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, _, err := repo.List(context.Background(),
		RecordFilter{Category: model.CategoryPayslip, Search: "an_n"},
		RecordSort{JSONKey: "name"}, 0, 20)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
