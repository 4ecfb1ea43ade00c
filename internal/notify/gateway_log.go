package notify

import (
	"context"
	"log/slog"
)

// LogGateway writes messages to the log instead of a device. Used when no
// push transport is configured.
type LogGateway struct {
	logger *slog.Logger
}

func NewLogGateway(logger *slog.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

func (g *LogGateway) Dispatch(ctx context.Context, msg Message) (Result, error) {
	g.logger.InfoContext(ctx, "push notification",
		"title", msg.Title,
		"body", msg.Body,
		"tokens", len(msg.Tokens),
		"data", msg.Data,
	)
	return resultOf(msg.Tokens, nil), nil
}
