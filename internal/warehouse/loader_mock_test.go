package warehouse

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_InsertFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS staging`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS staging\.weather_hourly`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM staging\.weather_hourly`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO staging\.weather_hourly`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	l := New(db, slog.Default())
	_, err = l.Merge(context.Background(), []domain.Observation{weatherObs(7, 27.5, testIngestedAt)}, WeatherHourly)

	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "insert", we.Op)
	assert.Equal(t, "staging.weather_hourly", we.Table)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMerge_CommitFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE SCHEMA`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("conflict"))

	l := New(db, slog.Default())
	_, err = l.Merge(context.Background(), []domain.Observation{weatherObs(7, 27.5, testIngestedAt)}, WeatherHourly)

	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "commit", we.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMerge_RecreatesTableAfterFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE SCHEMA`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM`).WillReturnError(errors.New("table does not exist"))
	mock.ExpectRollback()
	mock.ExpectExec(`CREATE SCHEMA`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	l := New(db, slog.Default())
	batch := []domain.Observation{weatherObs(7, 27.5, testIngestedAt)}
	_, err = l.Merge(context.Background(), batch, WeatherHourly)
	require.Error(t, err)

	res, err := l.Merge(context.Background(), batch, WeatherHourly)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowsWritten)
	assert.NoError(t, mock.ExpectationsWereMet())
}
