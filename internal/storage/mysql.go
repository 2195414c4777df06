package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"questweaver/server/internal/config"
	"questweaver/server/internal/interfaces"
	"questweaver/server/internal/models"
)

type MySQLStore struct {
	db *gorm.DB
}

func NewMySQLStore(cfg config.MySQLConfig) (*MySQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(&models.AdventureRecord{}); err != nil {
		return nil, err
	}

	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRecord upserts the adventure row. Last writer wins per adventure id.
func (s *MySQLStore) SaveRecord(ctx context.Context, rec *models.AdventureRecord) error {
	return s.db.WithContext(ctx).Save(rec).Error
}

// GetRecord loads one adventure row by id.
func (s *MySQLStore) GetRecord(ctx context.Context, adventureID string) (*models.AdventureRecord, error) {
	var rec models.AdventureRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", adventureID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ActiveRecordForUser returns the identity's most recent active adventure.
func (s *MySQLStore) ActiveRecordForUser(ctx context.Context, userID string) (*models.AdventureRecord, error) {
	var rec models.AdventureRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.StatusActive).
		Order("updated_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, interfaces.ErrNoActive
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SetStatus updates the lifecycle status of an adventure row.
func (s *MySQLStore) SetStatus(ctx context.Context, adventureID, status string) error {
	res := s.db.WithContext(ctx).
		Model(&models.AdventureRecord{}).
		Where("id = ?", adventureID).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

// AbandonOtherActive marks every active adventure for the user abandoned
// except keepID, enforcing at-most-one-active per identity.
func (s *MySQLStore) AbandonOtherActive(ctx context.Context, userID, keepID string) error {
	return s.db.WithContext(ctx).
		Model(&models.AdventureRecord{}).
		Where("user_id = ? AND status = ? AND id <> ?", userID, models.StatusActive, keepID).
		Update("status", models.StatusAbandoned).Error
}
