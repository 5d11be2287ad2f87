package notify

import (
	"context"
	"log/slog"
)

// LogProvider logs messages instead of delivering them.
type LogProvider struct {
	logger *slog.Logger
}

// NewLogProvider constructs a log-only provider.
func NewLogProvider(logger *slog.Logger) *LogProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProvider{logger: logger}
}

// Send logs the message and reports every endpoint as delivered.
func (p *LogProvider) Send(_ context.Context, msg Message, endpoints []string) (BatchResult, error) {
	p.logger.Info("push notification",
		"title", msg.Title,
		"body", msg.Body,
		"tier", msg.Tier,
		"endpoints", len(endpoints))
	return BatchResult{SuccessCount: len(endpoints)}, nil
}
