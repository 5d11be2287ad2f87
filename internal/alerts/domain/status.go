package alerts

import (
	"time"

	classification "lab-monitor-bridge/internal/classification/domain"
)

// Transition is a change of category label on one channel.
type Transition struct {
	Channel    classification.Channel
	Sensor     string
	Previous   string
	Current    string
	Confidence int
	Tier       Tier
	At         time.Time
}

// Status remembers the last label observed on each channel. It is not safe for concurrent use.
type Status struct {
	last map[classification.Channel]string
}

// NewStatus returns a status with every channel unknown.
func NewStatus() *Status {
	return &Status{last: make(map[classification.Channel]string, len(classification.Channels))}
}

// Observe records label as the current label of ch and reports the previous one.
// changed is true only when a previous label existed and differs from label.
// An empty label is ignored.
func (s *Status) Observe(ch classification.Channel, label string) (previous string, changed bool) {
	if label == "" {
		return s.last[ch], false
	}
	previous = s.last[ch]
	s.last[ch] = label
	return previous, previous != "" && previous != label
}

// Snapshot copies the known labels.
func (s *Status) Snapshot() map[classification.Channel]string {
	out := make(map[classification.Channel]string, len(s.last))
	for ch, label := range s.last {
		out[ch] = label
	}
	return out
}
