package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	alerts "lab-monitor-bridge/internal/alerts/domain"
	classification "lab-monitor-bridge/internal/classification/domain"
	"lab-monitor-bridge/internal/observability/metrics"
	telemetry "lab-monitor-bridge/internal/telemetry/domain"
)

const (
	DefaultQueueSize   = 256
	DefaultTopicPrefix = "net4think/lab_monitor"

	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Classifier turns a reading into a result; it always returns one.
type Classifier interface {
	Classify(ctx context.Context, reading telemetry.Reading) (classification.Result, classification.Source)
}

// Broadcaster pushes events to live viewers.
type Broadcaster interface {
	BroadcastRaw(reading telemetry.Reading) int
	BroadcastClassification(result classification.Result) int
}

// Evaluator detects label transitions.
type Evaluator interface {
	Evaluate(ctx context.Context, result classification.Result) []alerts.Transition
}

// Publisher sends payloads back to the broker.
type Publisher interface {
	Publish(topic string, payload []byte)
}

// Clock provides time for consolidated records.
type Clock interface {
	Now() time.Time
}

// Topics names the outbound topics.
type Topics struct {
	Prefix    string
	Processed string
}

// DefaultTopics returns the topics the lab devices subscribe to.
func DefaultTopics() Topics {
	return Topics{Prefix: DefaultTopicPrefix, Processed: DefaultTopicPrefix + "/processed"}
}

// Result returns the per-channel result topic, e.g. <prefix>/pred_mq2.
func (t Topics) Result(ch classification.Channel) string {
	return t.Prefix + "/pred_" + string(ch)
}

type processedRecord struct {
	Timestamp   string                    `json:"timestamp"`
	SensorData  telemetry.ClassifierInput `json:"sensor_data"`
	Predictions classification.Result     `json:"predictions"`
	Source      classification.Source     `json:"source,omitempty"`
}

// Orchestrator runs every reading through the pipeline, one at a time, in arrival order.
type Orchestrator struct {
	classifier Classifier
	hub        Broadcaster
	dispatcher Evaluator
	publisher  Publisher
	topics     Topics
	logger     *slog.Logger
	clock      Clock
	queueSize  int
	queue      chan telemetry.Reading
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithTopics overrides the outbound topics.
func WithTopics(topics Topics) Option {
	return func(o *Orchestrator) {
		if topics.Prefix != "" {
			o.topics.Prefix = topics.Prefix
		}
		if topics.Processed != "" {
			o.topics.Processed = topics.Processed
		}
	}
}

// WithQueueSize sets the inbound queue capacity.
func WithQueueSize(size int) Option {
	return func(o *Orchestrator) {
		if size > 0 {
			o.queueSize = size
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewOrchestrator wires the pipeline stages.
func NewOrchestrator(classifier Classifier, hub Broadcaster, dispatcher Evaluator, publisher Publisher, opts ...Option) (*Orchestrator, error) {
	if classifier == nil {
		return nil, errors.New("bridge orchestrator: nil classifier")
	}
	if hub == nil {
		return nil, errors.New("bridge orchestrator: nil broadcaster")
	}
	if dispatcher == nil {
		return nil, errors.New("bridge orchestrator: nil evaluator")
	}
	if publisher == nil {
		return nil, errors.New("bridge orchestrator: nil publisher")
	}
	o := &Orchestrator{
		classifier: classifier,
		hub:        hub,
		dispatcher: dispatcher,
		publisher:  publisher,
		topics:     DefaultTopics(),
		logger:     slog.Default(),
		clock:      systemClock{},
		queueSize:  DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.queue = make(chan telemetry.Reading, o.queueSize)
	return o, nil
}

// Enqueue hands a reading to the pipeline without blocking. It reports false when the reading
// was dropped because the queue is full.
func (o *Orchestrator) Enqueue(reading telemetry.Reading) bool {
	select {
	case o.queue <- reading:
		return true
	default:
		metrics.IncQueueDrop("telemetry")
		o.logger.Warn("telemetry queue full, dropping reading", "queue", o.queueSize)
		return false
	}
}

// Run processes queued readings until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case reading := <-o.queue:
			o.Process(ctx, reading)
		}
	}
}

// Process runs one reading through every stage. Stage failures are logged; nothing is retried.
func (o *Orchestrator) Process(ctx context.Context, reading telemetry.Reading) {
	started := time.Now()
	defer func() { metrics.ObserveCycle(time.Since(started)) }()

	o.logger.Debug("telemetry received",
		"temperature", reading.Temperature,
		"humidity", reading.Humidity,
		"mq135_ppm", reading.MQ135PPM,
		"mq2_ppm", reading.MQ2PPM,
		"mq7_ppm", reading.MQ7PPM)
	o.hub.BroadcastRaw(reading)

	result, source := o.classifier.Classify(ctx, reading)
	o.hub.BroadcastClassification(result)
	o.dispatcher.Evaluate(ctx, result)

	for _, ch := range classification.Channels {
		res, _ := result.Get(ch)
		payload, err := json.Marshal(res)
		if err != nil {
			o.logger.Error("encode channel result failed", "channel", ch, "error", err)
			continue
		}
		o.publisher.Publish(o.topics.Result(ch), payload)
	}

	record := processedRecord{
		Timestamp:   o.clock.Now().UTC().Format(timestampLayout),
		SensorData:  reading.Input(),
		Predictions: result,
	}
	if source == classification.SourceFallback {
		record.Source = classification.SourceFallback
	}
	payload, err := json.Marshal(record)
	if err != nil {
		o.logger.Error("encode processed record failed", "error", err)
		return
	}
	o.publisher.Publish(o.topics.Processed, payload)
	o.logger.Debug("reading processed", "source", source, "elapsed", time.Since(started))
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
