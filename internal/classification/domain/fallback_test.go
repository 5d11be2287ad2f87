package classification

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	telemetry "lab-monitor-bridge/internal/telemetry/domain"
)

func TestFallbackScenario(t *testing.T) {
	got := Fallback(telemetry.Reading{Temperature: 25, Humidity: 60, MQ135PPM: 150, MQ2PPM: 40, MQ7PPM: 50})
	require.Equal(t, Result{
		MQ135: ChannelResult{Label: "Baik", Confidence: 90},
		MQ2:   ChannelResult{Label: "AMAN", Confidence: 90},
		MQ7:   ChannelResult{Label: "NORMAL", Confidence: 90},
	}, got)
}

func TestFallbackThresholdBoundaries(t *testing.T) {
	cases := []struct {
		name    string
		reading telemetry.Reading
		channel Channel
		label   string
	}{
		{"air below", telemetry.Reading{MQ135PPM: 199.99}, ChannelAirQuality, LabelAirGood},
		{"air at", telemetry.Reading{MQ135PPM: 200}, ChannelAirQuality, LabelAirModerate},
		{"air above", telemetry.Reading{MQ135PPM: 850}, ChannelAirQuality, LabelAirModerate},
		{"smoke below", telemetry.Reading{MQ2PPM: 69.9}, ChannelSmoke, LabelSmokeSafe},
		{"smoke at", telemetry.Reading{MQ2PPM: 70}, ChannelSmoke, LabelSmokeDanger},
		{"co below", telemetry.Reading{MQ7PPM: 99}, ChannelCO, LabelCONormal},
		{"co at", telemetry.Reading{MQ7PPM: 100}, ChannelCO, LabelCODanger},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, ok := Fallback(tc.reading).Get(tc.channel)
			require.True(t, ok)
			require.Equal(t, tc.label, res.Label)
			require.Equal(t, FallbackConfidence, res.Confidence)
		})
	}
}

func TestResultValidate(t *testing.T) {
	require.NoError(t, DefaultResult().Validate())

	missing := Fallback(telemetry.Reading{})
	missing.MQ7.Label = " "
	require.True(t, errors.Is(missing.Validate(), ErrInvalidResult))

	outOfRange := Fallback(telemetry.Reading{})
	outOfRange.MQ2.Confidence = 101
	require.True(t, errors.Is(outOfRange.Validate(), ErrInvalidResult))
}

func TestChannelSensorName(t *testing.T) {
	require.Equal(t, "MQ-135", ChannelAirQuality.SensorName())
	require.Equal(t, "MQ-2", ChannelSmoke.SensorName())
	require.Equal(t, "MQ-7", ChannelCO.SensorName())
}
