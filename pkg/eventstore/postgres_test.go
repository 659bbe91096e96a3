package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var eventColumns = []string{
	"sequence", "event_id", "aggregate_id", "tenant_id", "version",
	"event_type", "occurred_on", "initiated_by", "payload",
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func TestPostgresStore_Load(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM sa_events WHERE aggregate_id = \\$1").
		WithArgs("sa-1").
		WillReturnRows(sqlmock.NewRows(eventColumns).
			AddRow(7, "evt-1", "sa-1", "T1", 1, "ServiceAccountCreated", now, "alice", []byte(`{"a":1}`)).
			AddRow(9, "evt-2", "sa-1", "T1", 2, "ServiceAccountDeactivated", now, "bob", []byte(`{}`)))

	store := NewPostgresStore(db)
	events, err := store.Load(context.Background(), "sa-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(7), events[0].Sequence)
	assert.Equal(t, "ServiceAccountCreated", events[0].Type)
	assert.JSONEq(t, `{"a":1}`, string(events[0].Payload))
	assert.Equal(t, int64(2), events[1].Version)
	assert.Equal(t, "bob", events[1].InitiatedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadError(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM sa_events").WillReturnError(errors.New("connection refused"))

	_, err := NewPostgresStore(db).Load(context.Background(), "sa-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load events")
}

func TestPostgresStore_Append(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COALESCE\\(MAX\\(version\\), 0\\) FROM sa_events").
			WithArgs("sa-1").
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(1))
		mock.ExpectQuery("INSERT INTO sa_events").
			WithArgs(sqlmock.AnyArg(), "sa-1", "T1", int64(2), "RolesAssigned", sqlmock.AnyArg(), "alice", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(41))
		mock.ExpectQuery("INSERT INTO sa_events").
			WithArgs(sqlmock.AnyArg(), "sa-1", "T1", int64(3), "Deactivated", sqlmock.AnyArg(), "alice", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(42))
		mock.ExpectCommit()

		stored, err := NewPostgresStore(db).Append(context.Background(), "sa-1", 1,
			[]Envelope{envelope("RolesAssigned"), envelope("Deactivated")})
		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.Equal(t, int64(41), stored[0].Sequence)
		assert.Equal(t, int64(3), stored[1].Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale expected version", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COALESCE").
			WithArgs("sa-1").
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(2))
		mock.ExpectRollback()

		_, err := NewPostgresStore(db).Append(context.Background(), "sa-1", 1, []Envelope{envelope("Activated")})
		require.Error(t, err)
		assert.True(t, IsConflict(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation is a conflict", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COALESCE").
			WithArgs("sa-1").
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))
		mock.ExpectQuery("INSERT INTO sa_events").WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		_, err := NewPostgresStore(db).Append(context.Background(), "sa-1", 0, []Envelope{envelope("Created")})
		require.Error(t, err)
		assert.True(t, IsConflict(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COALESCE").
			WithArgs("sa-1").
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))
		mock.ExpectQuery("INSERT INTO sa_events").WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		_, err := NewPostgresStore(db).Append(context.Background(), "sa-1", 0, []Envelope{envelope("Created")})
		require.Error(t, err)
		assert.False(t, IsConflict(err))
		assert.Contains(t, err.Error(), "failed to insert event")
	})

	t.Run("begin failure", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

		_, err := NewPostgresStore(db).Append(context.Background(), "sa-1", 0, []Envelope{envelope("Created")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to start transaction")
	})
}

func TestPostgresStore_LoadAll(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM sa_events WHERE sequence > \\$1").
		WithArgs(int64(10), 1000).
		WillReturnRows(sqlmock.NewRows(eventColumns).
			AddRow(11, "evt-1", "sa-1", "T1", 1, "ServiceAccountCreated", now, "alice", []byte(`{}`)))

	events, err := NewPostgresStore(db).LoadAll(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(11), events[0].Sequence)
	assert.NoError(t, mock.ExpectationsWereMet())
}
