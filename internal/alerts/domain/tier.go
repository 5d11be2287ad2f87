package alerts

import (
	"errors"
	"strings"
)

// Tier is the severity bucket a category label falls into.
type Tier string

const (
	TierSafe    Tier = "safe"
	TierWarning Tier = "warning"
	TierDanger  Tier = "danger"
)

var ErrEmptyTierTable = errors.New("alerts: tier table has no keywords")

// TierTable maps label keywords to tiers. Danger keywords are checked before warning keywords;
// a label matching neither is safe.
type TierTable struct {
	Danger  []string `yaml:"danger"`
	Warning []string `yaml:"warning"`
}

// DefaultTierTable returns the built-in keyword table.
func DefaultTierTable() TierTable {
	return TierTable{
		Danger:  []string{"BAHAYA", "BURUK", "TIDAK SEHAT", "TIDAK AMAN", "BERBAHAYA"},
		Warning: []string{"WASPADA", "SEDANG", "PERHATIAN"},
	}
}

// Validate rejects a table without any keyword and blank keywords.
func (t TierTable) Validate() error {
	if len(t.Danger) == 0 && len(t.Warning) == 0 {
		return ErrEmptyTierTable
	}
	for _, kw := range append(append([]string{}, t.Danger...), t.Warning...) {
		if strings.TrimSpace(kw) == "" {
			return errors.New("alerts: blank tier keyword")
		}
	}
	return nil
}

// Classify returns the tier of a label. Matching is substring based and case-insensitive.
func (t TierTable) Classify(label string) Tier {
	upper := strings.ToUpper(label)
	if containsAny(upper, t.Danger) {
		return TierDanger
	}
	if containsAny(upper, t.Warning) {
		return TierWarning
	}
	return TierSafe
}

func containsAny(upper string, keywords []string) bool {
	for _, kw := range keywords {
		kw = strings.ToUpper(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

// Style carries the presentation hints attached to a push message.
type Style struct {
	Priority string
	Sound    string
	Color    string
	Icon     string
}

// TierStyle returns the presentation for a tier.
func TierStyle(tier Tier) Style {
	switch tier {
	case TierDanger:
		return Style{Priority: "high", Sound: "alarm", Color: "#EF4444", Icon: "🚨"}
	case TierWarning:
		return Style{Priority: "high", Sound: "default", Color: "#F59E0B", Icon: "⚠️"}
	default:
		return Style{Priority: "normal", Sound: "default", Color: "#10B981", Icon: "✅"}
	}
}
