package kvstore

import (
	"context"
	"errors"
	"fmt"

	"go-telegram-relay-bot/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entry models.KVEntry
	err := s.db.WithContext(ctx).First(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get %q: %w", key, err)
	}
	return entry.Value, true, nil
}

func (s *gormStore) Put(ctx context.Context, key, value string) error {
	entry := models.KVEntry{Key: key, Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("kv put %q: %w", key, err)
	}
	return nil
}

func (s *gormStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Delete(&models.KVEntry{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}

func (s *gormStore) List(ctx context.Context, prefix, cursor string, limit int64) (*ListResult, error) {
	var entries []models.KVEntry
	query := s.db.WithContext(ctx).
		Where("key LIKE ?", likePrefix(prefix)).
		Order("key").
		Limit(int(limit))
	if cursor != "" {
		query = query.Where("key > ?", cursor)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("kv list %q: %w", prefix, err)
	}

	result := &ListResult{Entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		result.Entries = append(result.Entries, Entry{Key: e.Key, Value: e.Value})
	}
	// Keyset cursor: resume strictly after the last key of a full page.
	if int64(len(entries)) == limit {
		result.NextCursor = entries[len(entries)-1].Key
	}
	return result, nil
}

func likePrefix(prefix string) string {
	// Escape LIKE metacharacters so a literal prefix match is performed.
	escaped := ""
	for _, r := range prefix {
		if r == '%' || r == '_' || r == '\\' {
			escaped += "\\"
		}
		escaped += string(r)
	}
	return escaped + "%"
}
