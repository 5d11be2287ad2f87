package broadcast

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	classification "lab-monitor-bridge/internal/classification/domain"
	telemetry "lab-monitor-bridge/internal/telemetry/domain"
)

func TestBroadcastWithoutViewers(t *testing.T) {
	hub := NewHub()
	require.Zero(t, hub.BroadcastRaw(telemetry.Reading{MQ2PPM: 10}))
	require.Zero(t, hub.Count())
}

func TestBroadcastReachesEverySession(t *testing.T) {
	hub := NewHub()
	a, b := hub.Subscribe(), hub.Subscribe()
	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, 2, hub.Count())

	at := time.Date(2026, 1, 26, 8, 0, 0, 0, time.UTC)
	require.Equal(t, 2, hub.BroadcastRaw(telemetry.Reading{Temperature: 24.5, MQ135PPM: 120, ReceivedAt: at}))
	require.Equal(t, 2, hub.BroadcastClassification(classification.DefaultResult()))

	for _, s := range []*Session{a, b} {
		raw := <-s.Events()
		require.Equal(t, EventSensorData, raw.Name)
		var reading map[string]any
		require.NoError(t, json.Unmarshal(raw.Data, &reading))
		require.Equal(t, 24.5, reading["temperature"])
		require.Equal(t, float64(120), reading["mq135_ppm"])

		pred := <-s.Events()
		require.Equal(t, EventPredictions, pred.Name)
		var result classification.Result
		require.NoError(t, json.Unmarshal(pred.Data, &result))
		require.Equal(t, "AMAN", result.MQ2.Label)
	}
}

func TestLaggingSessionDoesNotBlockOthers(t *testing.T) {
	hub := NewHub(WithSessionBuffer(1))
	stuck := hub.Subscribe()
	healthy := make([]*Session, 3)
	for i := range healthy {
		healthy[i] = hub.Subscribe()
	}

	// stuck never drains, so its single slot fills on the first event.
	for i := 0; i < 3; i++ {
		delivered := hub.Broadcast(EventSensorData, map[string]int{"seq": i})
		if i == 0 {
			require.Equal(t, 4, delivered)
		} else {
			require.Equal(t, 3, delivered)
		}
		for _, s := range healthy {
			ev := <-s.Events()
			require.JSONEq(t, fmt.Sprintf(`{"seq":%d}`, i), string(ev.Data))
		}
	}
	require.Len(t, stuck.Events(), 1)
}

func TestUnsubscribeClosesSession(t *testing.T) {
	hub := NewHub()
	s := hub.Subscribe()
	hub.Unsubscribe(s)
	hub.Unsubscribe(s)
	hub.Unsubscribe(nil)

	_, ok := <-s.Events()
	require.False(t, ok)
	require.Zero(t, hub.Count())
	require.Zero(t, hub.BroadcastRaw(telemetry.Reading{}))
}
