package classification

import (
	"errors"
	"fmt"
	"strings"
)

// Channel identifies one of the three independently classified gas sensors.
type Channel string

const (
	ChannelAirQuality Channel = "mq135"
	ChannelSmoke      Channel = "mq2"
	ChannelCO         Channel = "mq7"
)

// Channels lists every channel in evaluation order.
var Channels = []Channel{ChannelAirQuality, ChannelSmoke, ChannelCO}

// SensorName returns the operator-facing sensor name.
func (c Channel) SensorName() string {
	switch c {
	case ChannelAirQuality:
		return "MQ-135"
	case ChannelSmoke:
		return "MQ-2"
	case ChannelCO:
		return "MQ-7"
	default:
		return strings.ToUpper(string(c))
	}
}

// Source tells where a result came from.
type Source string

const (
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
)

// ErrInvalidResult indicates a classifier response that breaks the result contract.
var ErrInvalidResult = errors.New("classification: invalid result")

// ChannelResult is the label and confidence for one channel.
type ChannelResult struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Result holds one classification per channel.
type Result struct {
	MQ135 ChannelResult `json:"mq135"`
	MQ2   ChannelResult `json:"mq2"`
	MQ7   ChannelResult `json:"mq7"`
}

// Get returns the result for a channel.
func (r Result) Get(ch Channel) (ChannelResult, bool) {
	switch ch {
	case ChannelAirQuality:
		return r.MQ135, true
	case ChannelSmoke:
		return r.MQ2, true
	case ChannelCO:
		return r.MQ7, true
	default:
		return ChannelResult{}, false
	}
}

// Validate checks that every channel carries a label and a confidence in [0, 100].
func (r Result) Validate() error {
	for _, ch := range Channels {
		res, _ := r.Get(ch)
		if strings.TrimSpace(res.Label) == "" {
			return fmt.Errorf("%w: %s label missing", ErrInvalidResult, ch)
		}
		if res.Confidence < 0 || res.Confidence > 100 {
			return fmt.Errorf("%w: %s confidence %.2f out of range", ErrInvalidResult, ch, res.Confidence)
		}
	}
	return nil
}

// DefaultResult is the neutral result used before any classification exists.
func DefaultResult() Result {
	return Result{
		MQ135: ChannelResult{Label: LabelAirGood},
		MQ2:   ChannelResult{Label: LabelSmokeSafe},
		MQ7:   ChannelResult{Label: LabelCONormal},
	}
}
