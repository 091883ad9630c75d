package influxsink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"goldex.com/internal/quotes/model"
)

func TestPoint_TagsAndFields(t *testing.T) {
	at := time.Unix(1772461800, 0).UTC()
	p := Point(model.PriceRecord{
		Symbol:        model.SymbolGC,
		Price:         2045.5,
		Change:        12.3,
		ChangePercent: 0.6,
		High:          model.F(2050),
		Source:        model.SourceQuandl,
		LastUpdate:    at,
	})

	assert.Equal(t, Measurement, p.Name())
	assert.Equal(t, at, p.Time())

	tags := map[string]string{}
	for _, tg := range p.TagList() {
		tags[tg.Key] = tg.Value
	}
	assert.Equal(t, map[string]string{"symbol": "GC", "source": "Quandl"}, tags)

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, 2045.5, fields["price"])
	assert.Equal(t, 2050.0, fields["high"])
	assert.NotContains(t, fields, "low")
}
