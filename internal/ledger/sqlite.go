package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// entryModel is the gorm mapping for committed entries. The composite
// primary key is the identity the whole pipeline dedups on.
type entryModel struct {
	Account     string    `gorm:"primaryKey;size:64"`
	MessageID   string    `gorm:"primaryKey;size:512;column:message_id"`
	Subject     string    `gorm:"size:512"`
	ProcessedAt time.Time `gorm:"index"`
	CoarseLabel string    `gorm:"size:16"`
	Category    string    `gorm:"size:16"`
	Synced      bool
	Disposition string `gorm:"size:16"`
}

func (entryModel) TableName() string { return "processed_messages" }

// failureModel tracks consecutive pre-commit failures per identity. Rows are
// deleted once the message commits or is permanently skipped.
type failureModel struct {
	Account     string `gorm:"primaryKey;size:64"`
	MessageID   string `gorm:"primaryKey;size:512;column:message_id"`
	Attempts    int
	LastAttempt time.Time
}

func (failureModel) TableName() string { return "message_failures" }

// SQLiteStore is the production ledger, one SQLite file managed by gorm.
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) the ledger database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	if err := db.AutoMigrate(&entryModel{}, &failureModel{}); err != nil {
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) HasProcessed(ctx context.Context, account, messageID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&entryModel{}).
		Where("account = ? AND message_id = ?", account, messageID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("ledger lookup: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) Commit(ctx context.Context, e Entry) error {
	m := entryModel{
		Account:     e.Account,
		MessageID:   e.MessageID,
		Subject:     e.Subject,
		ProcessedAt: e.ProcessedAt,
		CoarseLabel: e.CoarseLabel,
		Category:    e.Category,
		Synced:      e.Synced,
		Disposition: string(e.Disposition),
	}
	if m.ProcessedAt.IsZero() {
		m.ProcessedAt = time.Now().UTC()
	}
	if m.Disposition == "" {
		m.Disposition = string(DispositionProcessed)
	}
	err := s.db.WithContext(ctx).Create(&m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("ledger commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Stats(ctx context.Context, window time.Duration) (Stats, error) {
	stats := Stats{
		ByLabel:    make(map[string]int64),
		ByCategory: make(map[string]int64),
	}

	q := s.db.WithContext(ctx).Model(&entryModel{})
	if window > 0 {
		q = q.Where("processed_at > ?", time.Now().UTC().Add(-window))
	}

	if err := q.Session(&gorm.Session{}).Count(&stats.Total).Error; err != nil {
		return Stats{}, fmt.Errorf("ledger stats: %w", err)
	}
	if err := q.Session(&gorm.Session{}).
		Where("disposition = ?", string(DispositionSkipped)).
		Count(&stats.Skipped).Error; err != nil {
		return Stats{}, fmt.Errorf("ledger stats: %w", err)
	}
	if err := q.Session(&gorm.Session{}).Where("synced = ?", true).Count(&stats.Synced).Error; err != nil {
		return Stats{}, fmt.Errorf("ledger stats: %w", err)
	}

	type bucket struct {
		Key   string
		Count int64
	}
	var labels []bucket
	if err := q.Session(&gorm.Session{}).
		Select("coarse_label AS key, COUNT(*) AS count").
		Group("coarse_label").Scan(&labels).Error; err != nil {
		return Stats{}, fmt.Errorf("ledger stats: %w", err)
	}
	for _, b := range labels {
		stats.ByLabel[b.Key] = b.Count
	}

	var cats []bucket
	if err := q.Session(&gorm.Session{}).
		Select("category AS key, COUNT(*) AS count").
		Group("category").Scan(&cats).Error; err != nil {
		return Stats{}, fmt.Errorf("ledger stats: %w", err)
	}
	for _, b := range cats {
		stats.ByCategory[b.Key] = b.Count
	}

	return stats, nil
}

func (s *SQLiteStore) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res := s.db.WithContext(ctx).
		Where("processed_at < ?", cutoff).
		Delete(&entryModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("ledger purge: %w", res.Error)
	}
	// Failure bookkeeping ages out on the same cutoff.
	if err := s.db.WithContext(ctx).
		Where("last_attempt < ?", cutoff).
		Delete(&failureModel{}).Error; err != nil {
		return res.RowsAffected, fmt.Errorf("ledger purge failures: %w", err)
	}
	return res.RowsAffected, nil
}

func (s *SQLiteStore) RecordFailure(ctx context.Context, account, messageID string) (int, error) {
	var m failureModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("account = ? AND message_id = ?", account, messageID).First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			m = failureModel{Account: account, MessageID: messageID}
		} else if err != nil {
			return err
		}
		m.Attempts++
		m.LastAttempt = time.Now().UTC()
		return tx.Save(&m).Error
	})
	if err != nil {
		return 0, fmt.Errorf("ledger record failure: %w", err)
	}
	return m.Attempts, nil
}

func (s *SQLiteStore) ClearFailures(ctx context.Context, account, messageID string) error {
	err := s.db.WithContext(ctx).
		Where("account = ? AND message_id = ?", account, messageID).
		Delete(&failureModel{}).Error
	if err != nil {
		return fmt.Errorf("ledger clear failures: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ Store = (*SQLiteStore)(nil)
