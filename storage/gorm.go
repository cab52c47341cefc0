package storage

import (
	"context"
	"errors"
	"fmt"

	"receipt-tracker/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// GormStore keeps events in a sqlite or mysql database.
type GormStore struct {
	db *gorm.DB
}

func OpenGorm(driver, dsn, logLevel string) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported gorm driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	return NewGormStore(db)
}

// NewGormStore migrates the schema on db and wraps it.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&models.ViewEvent{}, &models.SendEvent{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) AddView(ctx context.Context, ev *models.ViewEvent) error {
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("insert view: %w", err)
	}
	return nil
}

func (s *GormStore) ListViews(ctx context.Context) ([]models.ViewEvent, error) {
	var views []models.ViewEvent
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&views).Error; err != nil {
		return nil, fmt.Errorf("select views: %w", err)
	}
	return views, nil
}

func (s *GormStore) CountViews(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.ViewEvent{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count views: %w", err)
	}
	return n, nil
}

func (s *GormStore) ClearViews(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&models.ViewEvent{}).Error
	if err != nil {
		return fmt.Errorf("delete views: %w", err)
	}
	return nil
}

func (s *GormStore) AddSend(ctx context.Context, ev *models.SendEvent) error {
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("insert send event: %w", err)
	}
	return nil
}

func (s *GormStore) AddSends(ctx context.Context, evs []models.SendEvent) error {
	if len(evs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&evs).Error; err != nil {
			return fmt.Errorf("insert send events: %w", err)
		}
		return nil
	})
}

func (s *GormStore) LatestSend(ctx context.Context, email string) (*models.SendEvent, error) {
	var ev models.SendEvent
	err := s.db.WithContext(ctx).
		Where("email = ?", email).
		Order("send_time DESC").
		Order("id DESC").
		First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSendEvent
	}
	if err != nil {
		return nil, fmt.Errorf("select send event: %w", err)
	}
	return &ev, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
