package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-booking-backend/internal/model"
)

// DefaultRunLimit caps ListRuns when the caller passes no limit.
const DefaultRunLimit = 50

// Store defines the interface for all database operations.
type Store interface {
	SyncMembers(ctx context.Context, names []string) error
	ListMembers(ctx context.Context) ([]model.Member, error)
	IsMember(ctx context.Context, name string) (bool, error)
	RecordRun(ctx context.Context, records []model.RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// SyncMembers makes sure every configured member exists. Existing members are kept as they are.
func (s *gormStore) SyncMembers(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}

	members := make([]model.Member, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		members = append(members, model.Member{Name: name})
	}

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&members).Error; err != nil {
		return fmt.Errorf("sync members failed: %w", err)
	}
	return nil
}

// ListMembers returns the member directory in registration order.
func (s *gormStore) ListMembers(ctx context.Context) ([]model.Member, error) {
	var members []model.Member
	if err := s.db.WithContext(ctx).Order("id").Find(&members).Error; err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

// IsMember reports whether name is in the member directory. Names are case-sensitive.
func (s *gormStore) IsMember(ctx context.Context, name string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Member{}).Where("name = ?", name).Count(&n).Error; err != nil {
		return false, fmt.Errorf("failed to look up member %q: %w", name, err)
	}
	return n > 0, nil
}

// RecordRun stores the per-algorithm records of one run atomically.
func (s *gormStore) RecordRun(ctx context.Context, records []model.RunRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("failed to record run %s: %w", records[0].RunID, err)
		}
		return nil
	})
}

// ListRuns returns the most recent run records, newest first.
func (s *gormStore) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = DefaultRunLimit
	}
	var records []model.RunRecord
	if err := s.db.WithContext(ctx).Order("id desc").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return records, nil
}
