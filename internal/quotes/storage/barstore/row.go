package barstore

import (
	"time"

	"goldex.com/internal/quotes/model"
)

type BarRow struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	Symbol    string    `gorm:"column:symbol;type:varchar(16);not null;uniqueIndex:uk_symbol_date,priority:1"`
	Date      string    `gorm:"column:date;type:char(10);not null;uniqueIndex:uk_symbol_date,priority:2"`
	Open      float64   `gorm:"column:open;not null"`
	High      float64   `gorm:"column:high;not null"`
	Low       float64   `gorm:"column:low;not null"`
	Close     float64   `gorm:"column:close;not null"`
	Volume    int64     `gorm:"column:volume;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (BarRow) TableName() string {
	return "gold_bars"
}

func fromBar(symbol string, b model.Bar) BarRow {
	return BarRow{
		Symbol: symbol,
		Date:   b.Date,
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
	}
}

func (r BarRow) toBar() model.Bar {
	return model.Bar{
		Date:   r.Date,
		Open:   r.Open,
		High:   r.High,
		Low:    r.Low,
		Close:  r.Close,
		Volume: r.Volume,
	}
}
