package notify

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	alerts "lab-monitor-bridge/internal/alerts/domain"
)

// ChannelID is the Android notification channel the mobile app registers.
const ChannelID = "chem_monitor_channel"

// timestampLayout matches the millisecond ISO-8601 form the mobile app parses.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

var ErrNoEndpoints = errors.New("notify: no endpoints")

// Message is a rendered push notification.
type Message struct {
	Title string
	Body  string
	Data  map[string]string
	Tier  alerts.Tier
	Style alerts.Style
}

// BatchResult reports per-endpoint outcomes of one send. Rejected lists the endpoints the
// upstream reported as permanently invalid.
type BatchResult struct {
	SuccessCount int
	FailureCount int
	Rejected     []string
}

// Provider delivers one message to many endpoints.
type Provider interface {
	Send(ctx context.Context, msg Message, endpoints []string) (BatchResult, error)
}

// Build renders the message for a transition.
func (t *Template) Build(tr alerts.Transition) (Message, error) {
	style := alerts.TierStyle(tr.Tier)
	title, body, err := t.Render(TemplateData{
		Icon:       style.Icon,
		Sensor:     tr.Sensor,
		Status:     tr.Current,
		Previous:   tr.Previous,
		Confidence: tr.Confidence,
		Tier:       string(tr.Tier),
		Danger:     tr.Tier == alerts.TierDanger,
	})
	if err != nil {
		return Message{}, err
	}
	at := tr.At
	if at.IsZero() {
		at = time.Now()
	}
	return Message{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"sensor":     strings.ToLower(tr.Sensor),
			"status":     tr.Current,
			"confidence": strconv.Itoa(tr.Confidence),
			"type":       string(tr.Tier),
			"timestamp":  at.UTC().Format(timestampLayout),
		},
		Tier:  tr.Tier,
		Style: style,
	}, nil
}
