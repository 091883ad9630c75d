package gateway

import "context"

type Message struct {
	Subject string
	Payload []byte
}

// Broker carries price updates between nodes.
type Broker interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	// Subscribe delivers until ctx is done. Consumers must watch ctx; the
	// channel is not guaranteed to be closed. Subjects may use NATS wildcards.
	Subscribe(ctx context.Context, subjects []string) (<-chan Message, error)
	Close() error
}

const SubjectPrefix = "gold.price."

func Subject(symbol string) string { return SubjectPrefix + symbol }
