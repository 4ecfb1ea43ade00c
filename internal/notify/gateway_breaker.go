package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerSettings tunes the gateway circuit breaker.
type BreakerSettings struct {
	Name             string
	FailureThreshold uint32
	Cooldown         time.Duration
}

// BreakerGateway stops calling a failing transport for a cooldown period.
// While open every token fails fast with gobreaker.ErrOpenState.
type BreakerGateway struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker[Result]
}

func NewBreakerGateway(next Gateway, settings BreakerSettings, logger *slog.Logger) *BreakerGateway {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	cb := gobreaker.NewCircuitBreaker[Result](gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Timeout:     settings.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("push gateway circuit changed state",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return &BreakerGateway{next: next, cb: cb}
}

func (g *BreakerGateway) Dispatch(ctx context.Context, msg Message) (Result, error) {
	res, err := g.cb.Execute(func() (Result, error) {
		return g.next.Dispatch(ctx, msg)
	})
	if err != nil && len(res.Deliveries) == 0 {
		return resultOf(msg.Tokens, err), fmt.Errorf("push gateway: %w", err)
	}
	return res, err
}

// State reports the breaker state, e.g. "closed" or "open".
func (g *BreakerGateway) State() string {
	return g.cb.State().String()
}
