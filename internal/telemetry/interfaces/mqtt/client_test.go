package mqtt

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/require"

	telemetry "lab-monitor-bridge/internal/telemetry/domain"
)

const rawTopic = "net4think/lab_monitor/data"

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func startBroker(t *testing.T, port int) *mochi.Server {
	t.Helper()
	server := mochi.New(nil)
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
		ID:      "t1",
		Type:    "tcp",
		Address: fmt.Sprintf("127.0.0.1:%d", port),
	})))
	require.NoError(t, server.Serve())
	return server
}

func externalClient(t *testing.T, port int) paho.Client {
	t.Helper()
	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://127.0.0.1:%d", port)).
		SetClientID(fmt.Sprintf("esp32-test-%d", time.Now().UnixNano()))
	client := paho.NewClient(opts)
	token := client.Connect()
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())
	t.Cleanup(func() { client.Disconnect(100) })
	return client
}

func runClient(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

type readings struct {
	mu   sync.Mutex
	list []telemetry.Reading
}

func (r *readings) add(reading telemetry.Reading) {
	r.mu.Lock()
	r.list = append(r.list, reading)
	r.mu.Unlock()
}

func (r *readings) snapshot() []telemetry.Reading {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]telemetry.Reading(nil), r.list...)
}

func TestClientReceivesAndPublishes(t *testing.T) {
	port := freePort(t)
	broker := startBroker(t, port)
	t.Cleanup(func() { _ = broker.Close() })

	c, err := NewClient(Config{Broker: "127.0.0.1", Port: port, QoS: 1}, nil)
	require.NoError(t, err)
	require.Regexp(t, `^lab_monitor_bridge_[0-9a-f]{8}$`, c.ClientID())

	got := &readings{}
	require.NoError(t, c.Subscribe(rawTopic, got.add))
	require.ErrorIs(t, c.Subscribe(rawTopic, got.add), ErrHandlerRegistered)

	runClient(t, c)
	require.Eventually(t, c.Connected, 5*time.Second, 20*time.Millisecond)

	device := externalClient(t, port)
	results := make(chan []byte, 1)
	sub := device.Subscribe("net4think/lab_monitor/pred_mq2", 1, func(_ paho.Client, msg paho.Message) {
		results <- msg.Payload()
	})
	require.True(t, sub.WaitTimeout(5*time.Second))
	require.NoError(t, sub.Error())

	// Malformed payloads are dropped; the next valid one still arrives.
	device.Publish(rawTopic, 1, false, []byte("not json")).WaitTimeout(5 * time.Second)
	device.Publish(rawTopic, 1, false, []byte(`{"temperature":25.1,"humidity":"61","mq135_ppm":150,"mq2_ppm":80,"mq7_ppm":null}`)).WaitTimeout(5 * time.Second)

	require.Eventually(t, func() bool { return len(got.snapshot()) == 1 }, 5*time.Second, 20*time.Millisecond)
	reading := got.snapshot()[0]
	require.Equal(t, 25.1, reading.Temperature)
	require.Equal(t, 61.0, reading.Humidity)
	require.Equal(t, 80.0, reading.MQ2PPM)
	require.Zero(t, reading.MQ7PPM)

	c.Publish("net4think/lab_monitor/pred_mq2", []byte(`{"label":"BAHAYA!","confidence":90}`))
	select {
	case payload := <-results:
		require.JSONEq(t, `{"label":"BAHAYA!","confidence":90}`, string(payload))
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for published result")
	}
}

func TestClientReconnectsAfterBrokerRestart(t *testing.T) {
	port := freePort(t)
	broker := startBroker(t, port)

	c, err := NewClient(Config{Broker: "127.0.0.1", Port: port, QoS: 1, ReconnectInterval: 100 * time.Millisecond}, nil)
	require.NoError(t, err)
	got := &readings{}
	require.NoError(t, c.Subscribe(rawTopic, got.add))
	runClient(t, c)
	require.Eventually(t, c.Connected, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, broker.Close())
	require.Eventually(t, func() bool { return !c.Connected() }, 5*time.Second, 20*time.Millisecond)

	broker = startBroker(t, port)
	t.Cleanup(func() { _ = broker.Close() })
	require.Eventually(t, c.Connected, 5*time.Second, 20*time.Millisecond)

	// The subscription is restored on reconnect.
	device := externalClient(t, port)
	require.Eventually(t, func() bool {
		device.Publish(rawTopic, 1, false, []byte(`{"mq2_ppm":10}`)).WaitTimeout(time.Second)
		return len(got.snapshot()) > 0
	}, 5*time.Second, 100*time.Millisecond)
}

// refuseSubscribeHook admits every client and refuses raw-topic subscriptions while refuse is set.
type refuseSubscribeHook struct {
	mochi.HookBase
	refuse  atomic.Bool
	refused atomic.Int32
}

func (h *refuseSubscribeHook) ID() string { return "refuse-subscribe" }

func (h *refuseSubscribeHook) Provides(b byte) bool {
	return b == mochi.OnConnectAuthenticate || b == mochi.OnACLCheck
}

func (h *refuseSubscribeHook) OnConnectAuthenticate(*mochi.Client, packets.Packet) bool { return true }

func (h *refuseSubscribeHook) OnACLCheck(_ *mochi.Client, topic string, write bool) bool {
	if write || topic != rawTopic || !h.refuse.Load() {
		return true
	}
	h.refused.Add(1)
	return false
}

func TestClientReconnectsWhenSubscribeRefused(t *testing.T) {
	port := freePort(t)
	hook := new(refuseSubscribeHook)
	hook.refuse.Store(true)

	broker := mochi.New(nil)
	require.NoError(t, broker.AddHook(hook, nil))
	require.NoError(t, broker.AddListener(listeners.NewTCP(listeners.Config{
		ID:      "t1",
		Type:    "tcp",
		Address: fmt.Sprintf("127.0.0.1:%d", port),
	})))
	require.NoError(t, broker.Serve())
	t.Cleanup(func() { _ = broker.Close() })

	c, err := NewClient(Config{Broker: "127.0.0.1", Port: port, QoS: 1, ReconnectInterval: 100 * time.Millisecond}, nil)
	require.NoError(t, err)
	got := &readings{}
	require.NoError(t, c.Subscribe(rawTopic, got.add))
	runClient(t, c)

	require.Eventually(t, func() bool { return hook.refused.Load() >= 1 }, 5*time.Second, 20*time.Millisecond)
	hook.refuse.Store(false)

	device := externalClient(t, port)
	require.Eventually(t, func() bool {
		device.Publish(rawTopic, 1, false, []byte(`{"mq2_ppm":10}`)).WaitTimeout(time.Second)
		return len(got.snapshot()) > 0
	}, 5*time.Second, 100*time.Millisecond)
}

func TestClientRetriesWhileBrokerDown(t *testing.T) {
	port := freePort(t)
	c, err := NewClient(Config{Broker: "127.0.0.1", Port: port, ReconnectInterval: 50 * time.Millisecond, ConnectTimeout: time.Second}, nil)
	require.NoError(t, err)
	runClient(t, c)

	time.Sleep(150 * time.Millisecond)
	require.False(t, c.Connected())

	broker := startBroker(t, port)
	t.Cleanup(func() { _ = broker.Close() })
	require.Eventually(t, c.Connected, 5*time.Second, 20*time.Millisecond)
}

func TestNewClientValidates(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	require.Error(t, err)
	_, err = NewClient(Config{Broker: "localhost", QoS: 3}, nil)
	require.Error(t, err)

	require.Equal(t, "tcp://broker.local:1883", Config{Broker: "broker.local"}.withDefaults().BrokerURL())
	require.Equal(t, "ssl://broker.local:8883", Config{Broker: "ssl://broker.local:8883"}.BrokerURL())
}
