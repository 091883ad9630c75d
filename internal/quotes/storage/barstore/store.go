package barstore

import (
	"context"
	"time"

	"goldex.com/internal/quotes/model"
	"goldex.com/pkg/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store keeps daily bars in MySQL, one row per (symbol, date).
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates gold_bars.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&BarRow{})
}

// Range returns bars with from <= date <= to, most recent first.
func (s *Store) Range(ctx context.Context, symbol, from, to string) (bars []model.Bar, err error) {
	defer observe("bars_range", time.Now(), &err)

	var rows []BarRow
	err = s.db.WithContext(ctx).
		Model(&BarRow{}).
		Where("symbol = ? AND date >= ? AND date <= ?", symbol, from, to).
		Order("date DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	bars = make([]model.Bar, 0, len(rows))
	for _, r := range rows {
		bars = append(bars, r.toBar())
	}
	return bars, nil
}

// Upsert inserts bars, overwriting OHLCV for dates that already exist.
func (s *Store) Upsert(ctx context.Context, symbol string, bars []model.Bar) (err error) {
	if len(bars) == 0 {
		return nil
	}
	defer observe("bars_upsert", time.Now(), &err)

	rows := make([]BarRow, 0, len(bars))
	for _, b := range bars {
		rows = append(rows, fromBar(symbol, b))
	}
	return s.upsertQuery(s.db.WithContext(ctx)).Create(&rows).Error
}

func (s *Store) upsertQuery(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume", "updated_at"}),
	})
}

func observe(query string, start time.Time, err *error) {
	metrics.DbQueryDuration.WithLabelValues(query, metrics.Status(*err)).Observe(time.Since(start).Seconds())
}
