package gateway

import (
	"context"
	"strings"
	"sync"

	"goldex.com/pkg/safe"
)

// MemBroker is the single-node broker.
type MemBroker struct {
	mu   sync.RWMutex
	subs map[*memSub]struct{}
}

type memSub struct {
	patterns []string
	ch       chan Message
}

func NewMemBroker() *MemBroker {
	return &MemBroker{subs: make(map[*memSub]struct{})}
}

func (b *MemBroker) Publish(ctx context.Context, subject string, payload []byte) error {
	msg := Message{Subject: subject, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()
	// fanout：at-most-once，慢订阅者直接丢
	for s := range b.subs {
		if !s.matches(subject) {
			continue
		}
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

func (b *MemBroker) Subscribe(ctx context.Context, subjects []string) (<-chan Message, error) {
	s := &memSub{patterns: subjects, ch: make(chan Message, 1024)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	safe.Go(func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
		close(s.ch)
	})
	return s.ch, nil
}

func (b *MemBroker) Close() error { return nil }

func (s *memSub) matches(subject string) bool {
	for _, p := range s.patterns {
		if matchSubject(p, subject) {
			return true
		}
	}
	return false
}

// matchSubject implements NATS "*" (one token) and ">" (rest) wildcards.
func matchSubject(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, p := range pt {
		if p == ">" {
			return len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if p != "*" && p != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
