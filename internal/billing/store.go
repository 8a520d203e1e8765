// Package billing persists recurring billing items and their per-period
// records, and parses amounts, due dates and payment-failure language out of
// billing mail.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Item is a recurring billable thing: a subscription, a utility, a service.
// Identified by name; mail for the same name lands on the same item.
type Item struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;size:256"`
	Currency  string `gorm:"size:8"`
	CreatedAt time.Time
}

func (Item) TableName() string { return "billing_items" }

// Record is one item's state for one billing period.
type Record struct {
	ID        uint   `gorm:"primaryKey"`
	ItemID    uint   `gorm:"index:idx_item_period,unique"`
	Period    string `gorm:"index:idx_item_period,unique;size:16"` // "2025-01"
	Amount    float64
	DueDate   *time.Time
	Failed    bool
	UpdatedAt time.Time
}

func (Record) TableName() string { return "billing_records" }

// Store wraps the billing tables.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the billing database at path. It can share
// the ledger's SQLite file; the tables are disjoint.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("open billing db %s: %w", path, err)
	}
	return NewStore(db)
}

// NewStore wraps an existing gorm handle, migrating the billing tables.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Item{}, &Record{}); err != nil {
		return nil, fmt.Errorf("migrate billing tables: %w", err)
	}
	return &Store{db: db}, nil
}

// GetOrCreateItem returns the item with the given name, creating it on first
// sight.
func (s *Store) GetOrCreateItem(ctx context.Context, name, currency string) (*Item, error) {
	var item Item
	err := s.db.WithContext(ctx).
		Where(Item{Name: name}).
		Attrs(Item{Currency: currency}).
		FirstOrCreate(&item).Error
	if err != nil {
		return nil, fmt.Errorf("billing item %q: %w", name, err)
	}
	return &item, nil
}

// UpsertRecord writes the item's state for one period. Later mail for the
// same (item, period) overwrites amount, due date and failure flag.
func (s *Store) UpsertRecord(ctx context.Context, itemID uint, period string, amount float64, dueDate *time.Time, failed bool) (*Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("item_id = ? AND period = ?", itemID, period).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rec = Record{ItemID: itemID, Period: period}
		} else if err != nil {
			return err
		}
		rec.Amount = amount
		if dueDate != nil {
			rec.DueDate = dueDate
		}
		rec.Failed = failed
		return tx.Save(&rec).Error
	})
	if err != nil {
		return nil, fmt.Errorf("billing record item=%d period=%s: %w", itemID, period, err)
	}
	return &rec, nil
}

// RecordsForItem returns an item's records, newest period first.
func (s *Store) RecordsForItem(ctx context.Context, itemID uint) ([]Record, error) {
	var recs []Record
	err := s.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("period DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("billing records item=%d: %w", itemID, err)
	}
	return recs, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
