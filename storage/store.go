package storage

import (
	"context"
	"errors"
	"fmt"

	"receipt-tracker/config"
	"receipt-tracker/models"
)

var (
	// ErrNotFound means the backing resource (file, table) does not exist yet.
	ErrNotFound = errors.New("storage: no logs found")
	// ErrNoSendEvent means no send time was registered for an email.
	ErrNoSendEvent = errors.New("storage: no send event")
)

// Store durably records view and send events.
type Store interface {
	AddView(ctx context.Context, ev *models.ViewEvent) error
	ListViews(ctx context.Context) ([]models.ViewEvent, error)
	CountViews(ctx context.Context) (int64, error)
	ClearViews(ctx context.Context) error

	AddSend(ctx context.Context, ev *models.SendEvent) error
	// AddSends stores all events or none.
	AddSends(ctx context.Context, evs []models.SendEvent) error
	// LatestSend returns the send event with the greatest send time for
	// email, ties broken by the latest registration.
	LatestSend(ctx context.Context, email string) (*models.SendEvent, error)

	Close() error
}

// Open builds the store selected by cfg.Driver.
func Open(cfg config.StorageConfig, logLevel string) (Store, error) {
	switch cfg.Driver {
	case "csv":
		return NewCSVStore(cfg.Path, cfg.SendPath)
	case "sqlite":
		return OpenGorm("sqlite", cfg.Path, logLevel)
	case "mysql":
		return OpenGorm("mysql", cfg.DSN, logLevel)
	case "postgres":
		return OpenPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
