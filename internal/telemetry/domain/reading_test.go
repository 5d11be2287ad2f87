package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeReading(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	reading, err := DecodeReading([]byte(`{"temperature":25,"humidity":60,"mq135_ppm":150,"mq2_ppm":40,"mq7_ppm":50}`), at)
	require.NoError(t, err)
	require.Equal(t, Reading{
		Temperature: 25,
		Humidity:    60,
		MQ135PPM:    150,
		MQ2PPM:      40,
		MQ7PPM:      50,
		ReceivedAt:  at,
	}, reading)
}

func TestDecodeReadingCoercesMissingAndNonNumeric(t *testing.T) {
	reading, err := DecodeReading([]byte(`{"temperature":"24.5","humidity":null,"mq135_ppm":"n/a","mq2_ppm":true}`), time.Now())
	require.NoError(t, err)
	require.Equal(t, 24.5, reading.Temperature)
	require.Zero(t, reading.Humidity)
	require.Zero(t, reading.MQ135PPM)
	require.Zero(t, reading.MQ2PPM)
	require.Zero(t, reading.MQ7PPM)
}

func TestDecodeReadingRejectsMalformed(t *testing.T) {
	for _, payload := range []string{``, `not json`, `[1,2,3]`, `{"temperature":`, `42`} {
		_, err := DecodeReading([]byte(payload), time.Now())
		require.Error(t, err, payload)
		require.True(t, errors.Is(err, ErrMalformedPayload), payload)
	}
}

func TestReadingInputDropsTimestamp(t *testing.T) {
	reading := Reading{Temperature: 1, Humidity: 2, MQ135PPM: 3, MQ2PPM: 4, MQ7PPM: 5, ReceivedAt: time.Now()}
	require.Equal(t, ClassifierInput{Temperature: 1, Humidity: 2, MQ135PPM: 3, MQ2PPM: 4, MQ7PPM: 5}, reading.Input())
}
