package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	classification "lab-monitor-bridge/internal/classification/domain"
	"lab-monitor-bridge/internal/observability/metrics"
	telemetry "lab-monitor-bridge/internal/telemetry/domain"
)

// DefaultTimeout bounds a single classifier call.
const DefaultTimeout = 2000 * time.Millisecond

// Classifier is the remote classification contract.
type Classifier interface {
	Classify(ctx context.Context, reading telemetry.Reading) (classification.Result, error)
}

// Gateway resolves a reading to a result, falling back to fixed thresholds on any failure.
type Gateway struct {
	remote  Classifier
	probe   HealthProbe
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// HealthProbe asks the classifier for its self-reported status.
type HealthProbe func(ctx context.Context) (string, error)

// GatewayOption configures the gateway.
type GatewayOption func(*Gateway)

// WithTimeout overrides the classifier deadline.
func WithTimeout(timeout time.Duration) GatewayOption {
	return func(g *Gateway) {
		if timeout > 0 {
			g.timeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithHealthProbe enables Health.
func WithHealthProbe(probe HealthProbe) GatewayOption {
	return func(g *Gateway) {
		g.probe = probe
	}
}

// NewGateway constructs a gateway. A nil remote runs fallback-only.
func NewGateway(remote Classifier, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		remote:  remote,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Classify never fails: remote errors and timeouts resolve to the fallback result.
func (g *Gateway) Classify(ctx context.Context, reading telemetry.Reading) (classification.Result, classification.Source) {
	start := g.now()
	if g.remote == nil {
		metrics.ObserveClassification(string(classification.SourceFallback), g.now().Sub(start))
		return classification.Fallback(reading), classification.SourceFallback
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := g.remote.Classify(callCtx, reading)
	if err != nil {
		attrs := []any{"error", err}
		if errors.Is(err, context.DeadlineExceeded) {
			attrs = append(attrs, "timeout", g.timeout)
		}
		g.logger.Warn("classifier unavailable, using fallback", attrs...)
		metrics.ObserveClassification(string(classification.SourceFallback), g.now().Sub(start))
		return classification.Fallback(reading), classification.SourceFallback
	}
	metrics.ObserveClassification(string(classification.SourceRemote), g.now().Sub(start))
	return result, classification.SourceRemote
}

// Health reports the classifier status for operators. It is informational only:
// "disabled" without a classifier, "unreachable" when the probe fails.
func (g *Gateway) Health(ctx context.Context) string {
	if g.remote == nil {
		return "disabled"
	}
	if g.probe == nil {
		return "unknown"
	}
	probeCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	status, err := g.probe(probeCtx)
	if err != nil {
		g.logger.Debug("classifier health probe failed", "error", err)
		return "unreachable"
	}
	if status == "" {
		return "ok"
	}
	return status
}
