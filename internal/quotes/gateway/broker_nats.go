package gateway

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"goldex.com/pkg/logger"
	"goldex.com/pkg/safe"
)

type NatsBroker struct {
	nc *nats.Conn
}

func NewNatsBroker(url, name string) (*NatsBroker, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			logger.Warn(context.Background(), "nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info(context.Background(), "nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NatsBroker{nc: nc}, nil
}

func (b *NatsBroker) Publish(ctx context.Context, subject string, payload []byte) error {
	return b.nc.Publish(subject, payload)
}

func (b *NatsBroker) Subscribe(ctx context.Context, subjects []string) (<-chan Message, error) {
	out := make(chan Message, 1024)
	subs := make([]*nats.Subscription, 0, len(subjects))

	for _, subj := range subjects {
		sub, err := b.nc.Subscribe(subj, func(m *nats.Msg) {
			// at-most-once：慢消费者直接丢，避免把 NATS 回调卡死
			select {
			case out <- Message{Subject: m.Subject, Payload: m.Data}:
			default:
			}
		})
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, err
		}
		subs = append(subs, sub)
	}

	// out 不关闭：回调可能在 Unsubscribe 之后仍在派发
	safe.Go(func() {
		<-ctx.Done()
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	})
	return out, nil
}

func (b *NatsBroker) Close() error {
	if b.nc != nil {
		_ = b.nc.Drain()
		b.nc.Close()
	}
	return nil
}
