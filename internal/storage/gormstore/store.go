// Package gormstore persists mappings, clicks and click rollups with gorm on
// Postgres, or on SQLite for local runs and tests.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/MagnunAVF/shorturls/internal/shortener"
)

type Store struct {
	db *gorm.DB
}

// Open connects to the given driver ("postgres" or "sqlite") and migrates the
// schema. A nil logger discards gorm output.
func Open(driver, dsn string, gl gormlogger.Interface) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("gormstore: unsupported driver %q", driver)
	}
	if gl == nil {
		gl = gormlogger.Discard
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gl,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// One writer at a time; also keeps a :memory: database alive.
		sqlDB.SetMaxOpenConns(1)
	}

	s := New(db)
	if err := s.Migrate(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&Mapping{}, &ClickEvent{}, &ClickRollup{}); err != nil {
		return fmt.Errorf("gormstore: migrate: %w", err)
	}
	return nil
}

func (s *Store) InsertMapping(ctx context.Context, m *shortener.Mapping) error {
	err := s.db.WithContext(ctx).Create(mappingFromDomain(m)).Error
	if isDuplicate(err) {
		return shortener.ErrCodeConflict
	}
	return err
}

func (s *Store) FindMapping(ctx context.Context, code string) (*shortener.Mapping, error) {
	var row Mapping
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shortener.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (s *Store) AppendClick(ctx context.Context, ev *shortener.ClickEvent) error {
	row := ClickEvent{
		MappingCode: ev.MappingCode,
		Timestamp:   ev.Timestamp,
		Referrer:    ev.Referrer,
		ClientIP:    ev.ClientIP,
	}
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error
}

func (s *Store) ListClicks(ctx context.Context, code string) ([]shortener.ClickEvent, error) {
	var rows []ClickEvent
	err := s.db.WithContext(ctx).
		Where("mapping_code = ?", code).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return lo.Map(rows, func(r ClickEvent, _ int) shortener.ClickEvent { return r.toDomain() }), nil
}

// AddClickCounts adds each delta to the code's rollup in one transaction,
// creating missing rows.
func (s *Store) AddClickCounts(ctx context.Context, counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}
	now := time.Now().UTC()
	// Fixed lock order across concurrent workers.
	codes := lo.Keys(counts)
	slices.Sort(codes)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, code := range codes {
			rec := ClickRollup{MappingCode: code, ClickCount: counts[code], UpdatedAt: now}
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "mapping_code"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"click_count": gorm.Expr("click_rollups.click_count + excluded.click_count"),
					"updated_at":  gorm.Expr("excluded.updated_at"),
				}),
			}).Create(&rec).Error
			if err != nil {
				return fmt.Errorf("upsert rollup %s: %w", code, err)
			}
		}
		return nil
	})
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// isDuplicate matches gorm's translated error and falls back to the driver
// message for dialects without a translator.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

var (
	_ shortener.MappingStore = (*Store)(nil)
	_ shortener.ClickLog     = (*Store)(nil)
)
