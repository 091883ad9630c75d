package ratelimit

import (
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"goldex.com/pkg/metrics"
)

type Rule struct {
	// Half-Open 状态允许通过的探测请求数
	MaxRequests uint32
	// Closed 状态计数窗口
	Interval time.Duration
	// Open 状态持续时间，到期进入 Half-Open
	Timeout time.Duration

	// 触发熔断条件（两种之一即可）
	TripConsecutiveFailures uint32
	TripFailureRate         float64
	TripMinRequests         uint32
}

// Manager lazily builds one breaker per upstream name.
type Manager struct {
	mu sync.RWMutex
	m  map[string]*gobreaker.CircuitBreaker[struct{}]

	defaultRule  Rule
	rules        map[string]Rule
	isSuccessful func(error) bool
}

// NewManager: isSuccessful decides which errors do not count against the
// upstream's health; nil counts every error.
func NewManager(defaultRule Rule, perName map[string]Rule, isSuccessful func(error) bool) *Manager {
	defaultRule = withDefaults(defaultRule)
	if isSuccessful == nil {
		isSuccessful = func(err error) bool { return err == nil }
	}
	return &Manager{
		m:            make(map[string]*gobreaker.CircuitBreaker[struct{}], 8),
		defaultRule:  defaultRule,
		rules:        perName,
		isSuccessful: isSuccessful,
	}
}

func withDefaults(r Rule) Rule {
	if r.MaxRequests == 0 {
		r.MaxRequests = 1
	}
	if r.Timeout <= 0 {
		r.Timeout = 30 * time.Second
	}
	if r.Interval <= 0 {
		r.Interval = time.Minute
	}
	if r.TripConsecutiveFailures == 0 && r.TripFailureRate == 0 {
		r.TripConsecutiveFailures = 5
	}
	if r.TripMinRequests == 0 {
		r.TripMinRequests = 10
	}
	return r
}

func (m *Manager) Get(name string) *gobreaker.CircuitBreaker[struct{}] {
	m.mu.RLock()
	cb := m.m[name]
	m.mu.RUnlock()
	if cb != nil {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb = m.m[name]; cb != nil {
		return cb
	}

	rule, ok := m.rules[name]
	if ok {
		rule = withDefaults(rule)
	} else {
		rule = m.defaultRule
	}
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: rule.MaxRequests,
		Interval:    rule.Interval,
		Timeout:     rule.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if rule.TripConsecutiveFailures > 0 && c.ConsecutiveFailures >= rule.TripConsecutiveFailures {
				return true
			}
			if rule.TripFailureRate > 0 && c.Requests >= rule.TripMinRequests {
				return float64(c.TotalFailures)/float64(c.Requests) >= rule.TripFailureRate
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CBState.WithLabelValues(name, from.String()).Set(0)
			metrics.CBState.WithLabelValues(name, to.String()).Set(1)
		},
		IsSuccessful: m.isSuccessful,
	}

	cb = gobreaker.NewCircuitBreaker[struct{}](st)
	m.m[name] = cb
	return cb
}
