package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"
)

// Dispatcher sends messages through a Gateway on a bounded worker pool.
// Notify returns immediately; outcomes are only logged and counted.
type Dispatcher struct {
	gateway Gateway
	pool    *ants.Pool
	logger  *slog.Logger
	metrics *Metrics
	timeout time.Duration
}

type DispatcherOption func(*Dispatcher)

func WithMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithDispatchTimeout bounds each gateway call.
func WithDispatchTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

func NewDispatcher(gateway Gateway, workers int, logger *slog.Logger, opts ...DispatcherOption) (*Dispatcher, error) {
	d := &Dispatcher{gateway: gateway, logger: logger, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(d)
	}
	pool, err := ants.NewPool(workers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			logger.Error("push worker panicked", "panic", p)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create push worker pool: %w", err)
	}
	d.pool = pool
	return d, nil
}

// Notify schedules msg for delivery. Tokens are normalized first; a message
// without tokens is dropped silently. The caller's cancellation does not
// abort delivery.
func (d *Dispatcher) Notify(ctx context.Context, msg Message) {
	msg.Tokens = NormalizeTokens(msg.Tokens)
	if len(msg.Tokens) == 0 {
		return
	}
	base := context.WithoutCancel(ctx)
	err := d.pool.Submit(func() {
		d.deliver(base, msg)
	})
	if err != nil {
		d.metrics.incDropped()
		level := slog.LevelWarn
		if !errors.Is(err, ants.ErrPoolOverload) {
			level = slog.LevelError
		}
		d.logger.Log(ctx, level, "push message dropped",
			"title", msg.Title,
			"tokens", len(msg.Tokens),
			"error", err,
		)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	res, err := d.gateway.Dispatch(ctx, msg)
	if err != nil && len(res.Deliveries) == 0 {
		res = resultOf(msg.Tokens, err)
	}
	d.metrics.observe(res)
	for _, f := range res.Failed() {
		d.logger.WarnContext(ctx, "push delivery failed",
			"title", msg.Title,
			"token", f.Token,
			"error", f.Err,
		)
	}
}

// Close waits up to timeout for in-flight deliveries and stops the pool.
func (d *Dispatcher) Close(timeout time.Duration) error {
	return d.pool.ReleaseTimeout(timeout)
}
