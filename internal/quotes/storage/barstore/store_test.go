package barstore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"goldex.com/internal/quotes/model"
	"goldex.com/pkg/orm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "u:p@tcp(127.0.0.1:1)/gold",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return db
}

func TestUpsert_OnDuplicateKeyUpdate(t *testing.T) {
	db := dryRunDB(t)
	s := New(db)

	rows := []BarRow{fromBar("GC", model.Bar{Date: "2026-03-02", Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10})}
	stmt := s.upsertQuery(db.Session(&gorm.Session{DryRun: true})).Create(&rows).Statement

	sql := stmt.SQL.String()
	assert.Contains(t, sql, "INSERT INTO `gold_bars`")
	assert.Contains(t, sql, "ON DUPLICATE KEY UPDATE")
	assert.Contains(t, sql, "`close`=")
}

func TestRowRoundTrip(t *testing.T) {
	b := model.Bar{Date: "2026-03-02", Open: 2040, High: 2051, Low: 2032, Close: 2045.5, Volume: 120000}
	r := fromBar(model.SymbolXAUUSD, b)
	assert.Equal(t, "XAUUSD", r.Symbol)
	assert.Equal(t, b, r.toBar())
	assert.Equal(t, "gold_bars", r.TableName())
}

// 需要真实 MySQL: GOLDEX_TEST_MYSQL_DSN="user:pass@tcp(127.0.0.1:3306)/gold?parseTime=true"
func TestStore_MySQL(t *testing.T) {
	dsn := os.Getenv("GOLDEX_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("GOLDEX_TEST_MYSQL_DSN not set")
	}
	db, err := orm.NewMySQL(&orm.Config{DSN: dsn})
	require.NoError(t, err)

	ctx := context.Background()
	s := New(db)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { db.Where("symbol = ?", "TEST").Delete(&BarRow{}) })

	require.NoError(t, s.Upsert(ctx, "TEST", []model.Bar{
		{Date: "2026-03-01", Open: 1, High: 2, Low: 1, Close: 2, Volume: 1},
		{Date: "2026-03-02", Open: 2, High: 3, Low: 2, Close: 3, Volume: 1},
	}))
	require.NoError(t, s.Upsert(ctx, "TEST", []model.Bar{
		{Date: "2026-03-02", Open: 2, High: 4, Low: 2, Close: 4, Volume: 2},
	}))

	bars, err := s.Range(ctx, "TEST", "2026-03-01", "2026-03-02")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "2026-03-02", bars[0].Date)
	assert.Equal(t, 4.0, bars[0].Close)
}
