package gateway

import (
	"context"
	"strings"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"goldex.com/internal/quotes/model"
	"goldex.com/pkg/logger"
)

// Publisher is the local fan-out the gateway feeds.
type Publisher interface {
	Publish(rec model.PriceRecord) int
}

// Relay is the scheduler-side listener: every update goes to the broker
// instead of straight to the local hub.
type Relay struct {
	broker Broker
}

func NewRelay(b Broker) *Relay { return &Relay{broker: b} }

func (r *Relay) Name() string { return "relay" }

func (r *Relay) OnUpdate(ctx context.Context, rec model.PriceRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.broker.Publish(ctx, Subject(rec.Symbol), b)
}

// Gateway consumes gold.price.* and republishes on the local hub, so every
// node pushes the same updates.
type Gateway struct {
	broker Broker
	hub    Publisher
}

func NewGateway(b Broker, hub Publisher) *Gateway {
	return &Gateway{broker: b, hub: hub}
}

// Run blocks until ctx is done or the subscription ends.
func (g *Gateway) Run(ctx context.Context) error {
	ch, err := g.broker.Subscribe(ctx, []string{SubjectPrefix + "*"})
	if err != nil {
		return err
	}
	logger.Info(ctx, "gateway subscribed", zap.String("subject", SubjectPrefix+"*"))

	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var rec model.PriceRecord
			if err := json.Unmarshal(m.Payload, &rec); err != nil {
				logger.Warn(ctx, "gateway drop undecodable message", zap.String("subject", m.Subject), zap.Error(err))
				continue
			}
			if want := strings.TrimPrefix(m.Subject, SubjectPrefix); rec.Symbol != want {
				logger.Warn(ctx, "gateway drop mismatched subject", zap.String("subject", m.Subject), zap.String("symbol", rec.Symbol))
				continue
			}
			g.hub.Publish(rec)
		}
	}
}
