package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedPayload indicates a payload that is not a JSON object.
var ErrMalformedPayload = errors.New("telemetry: malformed payload")

// Reading is one combined sensor sample as published by a device.
type Reading struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	MQ135PPM    float64   `json:"mq135_ppm"`
	MQ2PPM      float64   `json:"mq2_ppm"`
	MQ7PPM      float64   `json:"mq7_ppm"`
	ReceivedAt  time.Time `json:"timestamp"`
}

// ClassifierInput is the five-field request body sent to the classifier.
type ClassifierInput struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	MQ135PPM    float64 `json:"mq135_ppm"`
	MQ2PPM      float64 `json:"mq2_ppm"`
	MQ7PPM      float64 `json:"mq7_ppm"`
}

// Input strips the timestamp for the classifier contract.
func (r Reading) Input() ClassifierInput {
	return ClassifierInput{
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		MQ135PPM:    r.MQ135PPM,
		MQ2PPM:      r.MQ2PPM,
		MQ7PPM:      r.MQ7PPM,
	}
}

// DecodeReading parses a device payload. Missing or non-numeric fields coerce to 0.
func DecodeReading(payload []byte, receivedAt time.Time) (Reading, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Reading{}, ErrMalformedPayload
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return Reading{}, errors.Join(ErrMalformedPayload, err)
	}
	return Reading{
		Temperature: numberField(raw, "temperature"),
		Humidity:    numberField(raw, "humidity"),
		MQ135PPM:    numberField(raw, "mq135_ppm"),
		MQ2PPM:      numberField(raw, "mq2_ppm"),
		MQ7PPM:      numberField(raw, "mq7_ppm"),
		ReceivedAt:  receivedAt.UTC(),
	}, nil
}

func numberField(raw map[string]json.RawMessage, key string) float64 {
	value, ok := raw[key]
	if !ok {
		return 0
	}
	var number float64
	if err := json.Unmarshal(value, &number); err == nil {
		return finite(number)
	}
	var text string
	if err := json.Unmarshal(value, &text); err == nil {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err == nil {
			return finite(parsed)
		}
	}
	return 0
}

func finite(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	return value
}
