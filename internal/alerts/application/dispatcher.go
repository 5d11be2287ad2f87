package application

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	alerts "lab-monitor-bridge/internal/alerts/domain"
	"lab-monitor-bridge/internal/alerts/notify"
	classification "lab-monitor-bridge/internal/classification/domain"
	"lab-monitor-bridge/internal/observability/metrics"
)

const (
	DefaultQueueSize   = 64
	DefaultSendTimeout = 15 * time.Second
)

// Registry is the endpoint set the dispatcher delivers to.
type Registry interface {
	List(ctx context.Context) []string
	Prune(ctx context.Context, ids []string) int
}

// Clock provides time for transitions.
type Clock interface {
	Now() time.Time
}

// Dispatcher detects per-channel label transitions and pushes a notification for each one.
// Detection runs on the caller's goroutine; delivery runs on the goroutine that calls Run.
type Dispatcher struct {
	registry    Registry
	provider    notify.Provider
	template    *notify.Template
	tiers       alerts.TierTable
	logger      *slog.Logger
	clock       Clock
	sendTimeout time.Duration
	queueSize   int
	queue       chan alerts.Transition

	mu     sync.Mutex
	status *alerts.Status
}

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithTierTable overrides the keyword table.
func WithTierTable(table alerts.TierTable) Option {
	return func(d *Dispatcher) {
		if len(table.Danger) > 0 || len(table.Warning) > 0 {
			d.tiers = table
		}
	}
}

// WithQueueSize sets the delivery queue capacity.
func WithQueueSize(size int) Option {
	return func(d *Dispatcher) {
		if size > 0 {
			d.queueSize = size
		}
	}
}

// WithSendTimeout bounds one provider batch.
func WithSendTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.sendTimeout = timeout
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a dispatcher. A nil template uses the default wording.
func NewDispatcher(registry Registry, provider notify.Provider, template *notify.Template, opts ...Option) (*Dispatcher, error) {
	if registry == nil {
		return nil, errors.New("alerts dispatcher: nil registry")
	}
	if provider == nil {
		return nil, errors.New("alerts dispatcher: nil provider")
	}
	if template == nil {
		defaultTemplate, err := notify.NewTemplate("", "")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	d := &Dispatcher{
		registry:    registry,
		provider:    provider,
		template:    template,
		tiers:       alerts.DefaultTierTable(),
		logger:      slog.Default(),
		clock:       systemClock{},
		sendTimeout: DefaultSendTimeout,
		queueSize:   DefaultQueueSize,
		status:      alerts.NewStatus(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.queue = make(chan alerts.Transition, d.queueSize)
	return d, nil
}

// Evaluate compares result with the last labels and queues a delivery per changed channel.
// It never blocks: when the queue is full the transition is dropped.
func (d *Dispatcher) Evaluate(_ context.Context, result classification.Result) []alerts.Transition {
	now := d.clock.Now().UTC()
	var fired []alerts.Transition

	d.mu.Lock()
	for _, ch := range classification.Channels {
		res, _ := result.Get(ch)
		previous, changed := d.status.Observe(ch, res.Label)
		if !changed {
			continue
		}
		fired = append(fired, alerts.Transition{
			Channel:    ch,
			Sensor:     ch.SensorName(),
			Previous:   previous,
			Current:    res.Label,
			Confidence: int(math.Round(res.Confidence)),
			Tier:       d.tiers.Classify(res.Label),
			At:         now,
		})
	}
	d.mu.Unlock()

	for _, tr := range fired {
		d.logger.Info("status changed",
			"sensor", tr.Sensor,
			"from", tr.Previous,
			"to", tr.Current,
			"tier", tr.Tier)
		select {
		case d.queue <- tr:
		default:
			metrics.IncQueueDrop("alerts")
			d.logger.Warn("alert queue full, dropping notification", "sensor", tr.Sensor, "status", tr.Current)
		}
	}
	return fired
}

// Snapshot returns the last label per channel.
func (d *Dispatcher) Snapshot() map[classification.Channel]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status.Snapshot()
}

// Run delivers queued transitions in order until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case tr := <-d.queue:
			d.deliver(ctx, tr)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, tr alerts.Transition) {
	tier := string(tr.Tier)
	endpoints := d.registry.List(ctx)
	if len(endpoints) == 0 {
		metrics.IncNotification(tier, metrics.ResultSkipped)
		d.logger.Info("no endpoints registered, skipping notification", "sensor", tr.Sensor)
		return
	}
	msg, err := d.template.Build(tr)
	if err != nil {
		metrics.IncNotification(tier, metrics.ResultError)
		d.logger.Error("render notification failed", "sensor", tr.Sensor, "error", err)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	result, err := d.provider.Send(sendCtx, msg, endpoints)
	if err != nil {
		metrics.IncNotification(tier, metrics.ResultError)
		d.logger.Warn("send notification failed", "sensor", tr.Sensor, "endpoints", len(endpoints), "error", err)
		return
	}
	metrics.IncNotification(tier, metrics.ResultSuccess)
	d.logger.Info("notification sent",
		"sensor", tr.Sensor,
		"status", tr.Current,
		"tier", tier,
		"success", result.SuccessCount,
		"failure", result.FailureCount)

	if len(result.Rejected) > 0 {
		removed := d.registry.Prune(ctx, result.Rejected)
		d.logger.Info("pruned rejected endpoints", "rejected", len(result.Rejected), "removed", removed)
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
