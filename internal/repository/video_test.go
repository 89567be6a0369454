package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestFindByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .* FROM videos").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	repo := NewPostgresRepository(db)
	_, err = repo.FindByID(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByID_Found(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "owner_id", "raw_blob_id", "processed_blob_id", "title", "status",
		"uploaded_at", "processed_at", "original_url", "processed_url", "vote_count",
	}).AddRow("V", "owner", "raw/a.mp4", nil, "title", StatusUploaded, now, nil, "http://orig", nil, 3)

	mock.ExpectQuery("SELECT .* FROM videos").WithArgs("V").WillReturnRows(rows)

	repo := NewPostgresRepository(db)
	v, err := repo.FindByID(context.Background(), "V")
	require.NoError(t, err)
	require.Equal(t, StatusUploaded, v.Status)
	require.False(t, v.ProcessedID.Valid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_SingleStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE videos").
		WithArgs("V", StatusProcessed, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresRepository(db)
	err = repo.Update(context.Background(), "V", Update{
		Status:       StatusProcessed,
		ProcessedID:  sql.NullString{String: "uuid-1", Valid: true},
		ProcessedURL: sql.NullString{String: "uuid-1.mp4", Valid: true},
		ProcessedAt:  sql.NullTime{Time: time.Now(), Valid: true},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
