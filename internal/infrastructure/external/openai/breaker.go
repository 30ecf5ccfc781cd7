package openai

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/expense-validator/internal/infrastructure/metrics"
	"github.com/sony/gobreaker"
)

// BreakerConfig defines circuit breaker settings for the LLM endpoint
type BreakerConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// MinRequests is the number of calls seen before the failure ratio counts
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerConfig trips after half of at least three calls fail
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:         "openai",
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  3,
		FailureRatio: 0.5,
	}
}

type breaker struct {
	cb *gobreaker.CircuitBreaker
}

func newBreaker(cfg BreakerConfig, onStateChange func(name string, from, to gobreaker.State)) *breaker {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests || counts.Requests == 0 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		// Caller cancellation says nothing about the endpoint's health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetCircuitBreakerState(name, to)
			if onStateChange != nil {
				onStateChange(name, from, to)
			}
		},
	}

	cb := gobreaker.NewCircuitBreaker(settings)
	metrics.SetCircuitBreakerState(cfg.Name, cb.State())
	return &breaker{cb: cb}
}

func (b *breaker) execute(ctx context.Context, fn func() (string, error)) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	out, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (b *breaker) state() gobreaker.State {
	return b.cb.State()
}
