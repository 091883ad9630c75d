package influxsink

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
	"goldex.com/internal/quotes/model"
	"goldex.com/pkg/logger"
	"goldex.com/pkg/safe"
)

const Measurement = "gold_price"

type Config struct {
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`

	BatchSize     uint          `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	UseGzip       bool          `mapstructure:"use_gzip"`
}

// Sink writes every price update as one point through the async write API.
type Sink struct {
	client influxdb2.Client
	write  api.WriteAPI
}

func New(cfg Config) *Sink {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = time.Second
	}

	opt := influxdb2.DefaultOptions().
		SetBatchSize(cfg.BatchSize).
		SetFlushInterval(uint(cfg.FlushInterval.Milliseconds())).
		SetUseGZip(cfg.UseGzip)

	c := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opt)
	w := c.WriteAPI(cfg.Org, cfg.Bucket)

	// 必须消费 Errors()，否则异步写入错误会阻塞
	safe.Go(func() {
		for err := range w.Errors() {
			logger.Warn(context.Background(), "influx write failed", zap.Error(err))
		}
	})

	return &Sink{client: c, write: w}
}

func (s *Sink) Name() string { return "influx" }

func (s *Sink) OnUpdate(_ context.Context, rec model.PriceRecord) error {
	s.write.WritePoint(Point(rec))
	return nil
}

// Point maps a record onto the gold_price measurement.
func Point(rec model.PriceRecord) *write.Point {
	tags := map[string]string{
		"symbol": rec.Symbol,
		"source": rec.Source,
	}
	fields := map[string]interface{}{
		"price":          rec.Price,
		"change":         rec.Change,
		"change_percent": rec.ChangePercent,
	}
	opt := map[string]*float64{
		"open":           rec.Open,
		"high":           rec.High,
		"low":            rec.Low,
		"previous_close": rec.PreviousClose,
		"volume":         rec.Volume,
	}
	for k, v := range opt {
		if v != nil {
			fields[k] = *v
		}
	}
	ts := rec.LastUpdate
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(Measurement, tags, fields, ts)
}

// Close flushes the buffer.
func (s *Sink) Close() {
	s.write.Flush()
	s.client.Close()
}

func (cfg Config) String() string {
	return fmt.Sprintf("url=%s org=%s bucket=%s batch=%d flush=%s gzip=%v",
		cfg.URL, cfg.Org, cfg.Bucket, cfg.BatchSize, cfg.FlushInterval, cfg.UseGzip)
}
