package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrGatewayUnavailable means the provider could not be reached or the
// breaker is open. Callers should retry intent creation later; the HTTP
// layer maps this to 503.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// BreakerGateway wraps a Gateway with a circuit breaker on the network
// operations. Signature verification is local and passes through untouched.
// The breaker is owned by this struct and injected where needed, never a
// package-level registry.
type BreakerGateway struct {
	inner Gateway
	cb    *gobreaker.CircuitBreaker[any]
}

func NewBreakerGateway(inner Gateway) *BreakerGateway {
	settings := gobreaker.Settings{
		Name:    "payment-gateway",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("circuit breaker %s: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Provider rejections are valid answers, not outages.
			var gwErr *GatewayError
			return err == nil || errors.As(err, &gwErr)
		},
	}
	return &BreakerGateway{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[any](settings),
	}
}

func (g *BreakerGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	result, err := g.cb.Execute(func() (any, error) {
		return g.inner.CreateIntent(ctx, req)
	})
	if err != nil {
		return nil, g.mapErr(err)
	}
	return result.(*Intent), nil
}

func (g *BreakerGateway) CreateRefund(ctx context.Context, paymentRef string, amountMinor int64, reason string) (*RefundResult, error) {
	result, err := g.cb.Execute(func() (any, error) {
		return g.inner.CreateRefund(ctx, paymentRef, amountMinor, reason)
	})
	if err != nil {
		return nil, g.mapErr(err)
	}
	return result.(*RefundResult), nil
}

func (g *BreakerGateway) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	return g.inner.VerifyWebhook(payload, signatureHeader)
}

func (g *BreakerGateway) AccountOnboarded(ctx context.Context, accountRef string) (bool, error) {
	result, err := g.cb.Execute(func() (any, error) {
		return g.inner.AccountOnboarded(ctx, accountRef)
	})
	if err != nil {
		return false, g.mapErr(err)
	}
	return result.(bool), nil
}

func (g *BreakerGateway) mapErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrGatewayUnavailable
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return err
	}
	// A transport failure is an outage from the caller's point of view even
	// before the breaker opens.
	return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
}
