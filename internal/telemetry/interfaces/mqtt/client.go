package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"lab-monitor-bridge/internal/observability/metrics"
	telemetry "lab-monitor-bridge/internal/telemetry/domain"
)

var ErrHandlerRegistered = errors.New("mqtt transport: handler already registered")

// Handler receives decoded readings. It runs on the client's delivery goroutine and must not block.
type Handler func(telemetry.Reading)

// Config holds broker connection settings.
type Config struct {
	Broker            string
	Port              int
	ClientIDPrefix    string
	Username          string
	Password          string
	QoS               byte
	ReconnectInterval time.Duration
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	KeepAlive         time.Duration
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = 1883
	}
	if c.ClientIDPrefix == "" {
		c.ClientIDPrefix = "lab_monitor_bridge"
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = 5 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 10 * time.Second
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 60 * time.Second
	}
	return c
}

// BrokerURL returns the broker address in paho form.
func (c Config) BrokerURL() string {
	if strings.Contains(c.Broker, "://") {
		return c.Broker
	}
	return fmt.Sprintf("tcp://%s:%d", c.Broker, c.Port)
}

// Client is the bridge's single broker connection. Reconnection is supervised by Run.
type Client struct {
	cfg      Config
	clientID string
	logger   *slog.Logger
	client   paho.Client

	connected atomic.Bool
	lost      chan error

	mu      sync.Mutex
	topic   string
	handler Handler
}

// NewClient builds a client. It does not connect; call Run.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, errors.New("mqtt transport: empty broker")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt transport: invalid qos %d", cfg.QoS)
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:      cfg,
		clientID: cfg.ClientIDPrefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		logger:   logger,
		lost:     make(chan error, 1),
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID(c.clientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetKeepAlive(cfg.KeepAlive).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	c.client = paho.NewClient(opts)
	return c, nil
}

// ClientID returns the id presented to the broker.
func (c *Client) ClientID() string { return c.clientID }

// Connected reports whether the link is currently up.
func (c *Client) Connected() bool { return c.connected.Load() }

// Subscribe registers the handler for topic. Only one handler may be registered; the
// subscription is (re)established on every connect.
func (c *Client) Subscribe(topic string, handler Handler) error {
	if handler == nil || topic == "" {
		return errors.New("mqtt transport: empty topic or nil handler")
	}
	c.mu.Lock()
	if c.handler != nil {
		c.mu.Unlock()
		return ErrHandlerRegistered
	}
	c.topic = topic
	c.handler = handler
	c.mu.Unlock()

	if c.Connected() {
		return c.subscribe(c.client)
	}
	return nil
}

// Publish sends payload without waiting for the broker. Failures are logged, never retried.
func (c *Client) Publish(topic string, payload []byte) {
	token := c.client.Publish(topic, c.cfg.QoS, false, payload)
	go func() {
		if !token.WaitTimeout(c.cfg.PublishTimeout) {
			metrics.IncPublish(metrics.ResultError)
			c.logger.Warn("mqtt publish timed out", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			metrics.IncPublish(metrics.ResultError)
			c.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
			return
		}
		metrics.IncPublish(metrics.ResultSuccess)
	}()
}

// Run connects and keeps the connection alive until ctx is cancelled, retrying at the fixed
// reconnect interval after a failed attempt or a lost link.
func (c *Client) Run(ctx context.Context) error {
	defer func() {
		if c.client.IsConnectionOpen() {
			c.client.Disconnect(250)
		}
		c.setConnected(false)
	}()

	first := true
	for {
		if !first {
			metrics.IncTransportReconnect()
		}
		first = false

		select {
		case <-c.lost:
		default:
		}
		if err := c.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("mqtt connect failed", "broker", c.cfg.BrokerURL(), "retry_in", c.cfg.ReconnectInterval, "error", err)
		} else {
			select {
			case <-ctx.Done():
				return nil
			case <-c.lost:
			}
		}

		timer := time.NewTimer(c.cfg.ReconnectInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	token := c.client.Connect()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) onConnect(client paho.Client) {
	c.setConnected(true)
	c.logger.Info("mqtt connected", "broker", c.cfg.BrokerURL(), "client_id", c.clientID)
	if err := c.subscribe(client); err != nil {
		// A link without the raw subscription ingests nothing; drop it and let Run retry.
		c.logger.Error("mqtt subscribe failed, reconnecting", "error", err)
		c.setConnected(false)
		client.Disconnect(0)
		c.signalLost(err)
	}
}

func (c *Client) onConnectionLost(_ paho.Client, err error) {
	c.setConnected(false)
	c.logger.Warn("mqtt connection lost", "error", err)
	c.signalLost(err)
}

func (c *Client) signalLost(err error) {
	select {
	case c.lost <- err:
	default:
	}
}

func (c *Client) subscribe(client paho.Client) error {
	c.mu.Lock()
	topic := c.topic
	c.mu.Unlock()
	if topic == "" {
		return nil
	}
	token := client.Subscribe(topic, c.cfg.QoS, c.onMessage)
	if !token.WaitTimeout(c.cfg.ConnectTimeout) {
		return fmt.Errorf("mqtt transport: subscribe %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt transport: subscribe %s: %w", topic, err)
	}
	if sub, ok := token.(*paho.SubscribeToken); ok {
		if code, granted := sub.Result()[topic]; granted && code >= 0x80 {
			return fmt.Errorf("mqtt transport: subscribe %s refused (code 0x%02x)", topic, code)
		}
	}
	c.logger.Info("mqtt subscribed", "topic", topic)
	return nil
}

func (c *Client) onMessage(_ paho.Client, msg paho.Message) {
	reading, err := telemetry.DecodeReading(msg.Payload(), time.Now().UTC())
	if err != nil {
		metrics.IncTelemetry(metrics.ResultMalformed)
		c.logger.Warn("dropping malformed telemetry", "topic", msg.Topic(), "bytes", len(msg.Payload()), "error", err)
		return
	}
	metrics.IncTelemetry(metrics.ResultSuccess)

	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler(reading)
	}
}

func (c *Client) setConnected(up bool) {
	c.connected.Store(up)
	metrics.SetTransportConnected(up)
}
