package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"receipt-tracker/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(sqlx.NewDb(db, "postgres")), mock
}

func TestPostgresAddView(t *testing.T) {
	s, mock := newMockPostgres(t)

	ev := &models.ViewEvent{
		Email:     "alice@example.com",
		ViewedAt:  time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC),
		ClientIP:  "203.0.113.7",
		UserAgent: "Mozilla/5.0",
	}

	mock.ExpectQuery("INSERT INTO email_logs").
		WithArgs(ev.Email, ev.ViewedAt, sqlmock.AnyArg(), ev.ClientIP, ev.UserAgent).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	require.NoError(t, s.AddView(context.Background(), ev))
	assert.EqualValues(t, 42, ev.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAddViewError(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery("INSERT INTO email_logs").WillReturnError(errors.New("connection refused"))

	err := s.AddView(context.Background(), &models.ViewEvent{Email: "a@example.com"})
	assert.ErrorContains(t, err, "insert view")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListViews(t *testing.T) {
	s, mock := newMockPostgres(t)

	kst := time.FixedZone("KST", 9*3600)
	viewed := time.Date(2024, 1, 1, 10, 0, 0, 0, kst)
	sent := time.Date(2024, 1, 1, 9, 0, 0, 0, kst)

	rows := sqlmock.NewRows([]string{"id", "email", "viewed_at", "send_time", "client_ip", "user_agent"}).
		AddRow(1, "alice@example.com", viewed, sent, "203.0.113.7", "Mozilla/5.0").
		AddRow(2, "bob@example.com", viewed, nil, "198.51.100.1", "curl/8.0")
	mock.ExpectQuery("SELECT (.+) FROM email_logs").
		WillReturnRows(rows)

	views, err := s.ListViews(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "alice@example.com", views[0].Email)
	assert.Equal(t, time.UTC, views[0].ViewedAt.Location())
	assert.True(t, viewed.Equal(views[0].ViewedAt))
	require.NotNil(t, views[0].SendTime)
	assert.True(t, sent.Equal(*views[0].SendTime))
	assert.Nil(t, views[1].SendTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClearAndCount(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectExec("DELETE FROM email_logs").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	require.NoError(t, s.ClearViews(context.Background()))
	n, err := s.CountViews(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLatestSend(t *testing.T) {
	s, mock := newMockPostgres(t)

	sent := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM send_logs").
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "send_time", "created_at"}).
			AddRow(7, "alice@example.com", sent, sent))
	mock.ExpectQuery("FROM send_logs").
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "send_time", "created_at"}))

	ev, err := s.LatestSend(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.EqualValues(t, 7, ev.ID)
	assert.True(t, sent.Equal(ev.SendTime))

	_, err = s.LatestSend(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrNoSendEvent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAddSendsRollsBack(t *testing.T) {
	s, mock := newMockPostgres(t)

	now := time.Now().UTC()
	evs := []models.SendEvent{
		{Email: "a@example.com", SendTime: now, CreatedAt: now},
		{Email: "b@example.com", SendTime: now, CreatedAt: now},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO send_logs").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery("INSERT INTO send_logs").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.AddSends(context.Background(), evs)
	assert.ErrorContains(t, err, "b@example.com")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAddSendsCommits(t *testing.T) {
	s, mock := newMockPostgres(t)

	now := time.Now().UTC()
	evs := []models.SendEvent{{Email: "a@example.com", SendTime: now, CreatedAt: now}}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO send_logs").
		WithArgs("a@example.com", now, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectCommit()

	require.NoError(t, s.AddSends(context.Background(), evs))
	assert.EqualValues(t, 5, evs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
