package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"receipt-tracker/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// PostgresStore keeps events in PostgreSQL through sqlx.
type PostgresStore struct {
	db *sqlx.DB
}

func OpenPostgres(dsn string) (*PostgresStore, error) {
	log.Info().Msg("connecting to database")

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := CreateSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Msg("database connection established")
	return NewPostgresStore(db), nil
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateSchema is safe to call on every start.
func CreateSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS email_logs (
    id BIGSERIAL PRIMARY KEY,
    email TEXT NOT NULL,
    viewed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    send_time TIMESTAMPTZ,
    client_ip TEXT NOT NULL DEFAULT '',
    user_agent TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_email_logs_email ON email_logs(email);

CREATE TABLE IF NOT EXISTS send_logs (
    id BIGSERIAL PRIMARY KEY,
    email TEXT NOT NULL,
    send_time TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_send_logs_email ON send_logs(email, send_time DESC);
`

func (s *PostgresStore) AddView(ctx context.Context, ev *models.ViewEvent) error {
	query := `
		INSERT INTO email_logs (email, viewed_at, send_time, client_ip, user_agent)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := s.db.QueryRowxContext(ctx, query,
		ev.Email, ev.ViewedAt, ev.SendTime, ev.ClientIP, ev.UserAgent,
	).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("insert view: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListViews(ctx context.Context) ([]models.ViewEvent, error) {
	query := `
		SELECT id, email, viewed_at, send_time, client_ip, user_agent
		FROM email_logs
		ORDER BY id ASC
	`
	views := []models.ViewEvent{}
	if err := s.db.SelectContext(ctx, &views, query); err != nil {
		return nil, fmt.Errorf("select views: %w", err)
	}
	for i := range views {
		views[i].ViewedAt = views[i].ViewedAt.UTC()
		if views[i].SendTime != nil {
			t := views[i].SendTime.UTC()
			views[i].SendTime = &t
		}
	}
	return views, nil
}

func (s *PostgresStore) CountViews(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM email_logs`); err != nil {
		return 0, fmt.Errorf("count views: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ClearViews(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM email_logs`); err != nil {
		return fmt.Errorf("delete views: %w", err)
	}
	return nil
}

const insertSend = `
	INSERT INTO send_logs (email, send_time, created_at)
	VALUES ($1, $2, $3)
	RETURNING id
`

func (s *PostgresStore) AddSend(ctx context.Context, ev *models.SendEvent) error {
	if err := s.db.QueryRowxContext(ctx, insertSend, ev.Email, ev.SendTime, ev.CreatedAt).Scan(&ev.ID); err != nil {
		return fmt.Errorf("insert send event: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddSends(ctx context.Context, evs []models.SendEvent) error {
	if len(evs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for i := range evs {
		ev := &evs[i]
		if err := tx.QueryRowxContext(ctx, insertSend, ev.Email, ev.SendTime, ev.CreatedAt).Scan(&ev.ID); err != nil {
			return fmt.Errorf("insert send event %s: %w", ev.Email, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestSend(ctx context.Context, email string) (*models.SendEvent, error) {
	query := `
		SELECT id, email, send_time, created_at
		FROM send_logs
		WHERE email = $1
		ORDER BY send_time DESC, id DESC
		LIMIT 1
	`
	var ev models.SendEvent
	if err := s.db.GetContext(ctx, &ev, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSendEvent
		}
		return nil, fmt.Errorf("select send event: %w", err)
	}
	ev.SendTime = ev.SendTime.UTC()
	ev.CreatedAt = ev.CreatedAt.UTC()
	return &ev, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
