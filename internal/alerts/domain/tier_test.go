package alerts

import (
	"testing"

	"github.com/stretchr/testify/require"

	classification "lab-monitor-bridge/internal/classification/domain"
)

func TestTierTableClassify(t *testing.T) {
	table := DefaultTierTable()
	cases := map[string]Tier{
		"BAHAYA!":      TierDanger,
		"BERBAHAYA!":   TierDanger,
		"Tidak Sehat":  TierDanger,
		"buruk":        TierDanger,
		"Sedang":       TierWarning,
		"waspada":      TierWarning,
		"Baik":         TierSafe,
		"AMAN":         TierSafe,
		"NORMAL":       TierSafe,
		"":             TierSafe,
		"TIDAK AMAN":   TierDanger,
		"PERHATIAN !!": TierWarning,
	}
	for label, want := range cases {
		require.Equal(t, want, table.Classify(label), label)
	}
}

func TestTierTableDangerBeforeWarning(t *testing.T) {
	table := TierTable{Danger: []string{"merah"}, Warning: []string{"MERAH"}}
	require.Equal(t, TierDanger, table.Classify("Zona Merah"))
}

func TestTierTableValidate(t *testing.T) {
	require.NoError(t, DefaultTierTable().Validate())
	require.ErrorIs(t, TierTable{}.Validate(), ErrEmptyTierTable)
	require.Error(t, TierTable{Danger: []string{"  "}}.Validate())
}

func TestTierStyle(t *testing.T) {
	danger := TierStyle(TierDanger)
	require.Equal(t, "high", danger.Priority)
	require.Equal(t, "alarm", danger.Sound)
	require.Equal(t, "#EF4444", danger.Color)

	warning := TierStyle(TierWarning)
	require.Equal(t, "high", warning.Priority)
	require.Equal(t, "default", warning.Sound)

	safe := TierStyle(TierSafe)
	require.Equal(t, "normal", safe.Priority)
	require.Equal(t, "#10B981", safe.Color)
}

func TestStatusObserve(t *testing.T) {
	s := NewStatus()

	prev, changed := s.Observe(classification.ChannelSmoke, "AMAN")
	require.Empty(t, prev)
	require.False(t, changed, "first observation never fires")

	_, changed = s.Observe(classification.ChannelSmoke, "AMAN")
	require.False(t, changed)

	prev, changed = s.Observe(classification.ChannelSmoke, "BAHAYA!")
	require.True(t, changed)
	require.Equal(t, "AMAN", prev)

	_, changed = s.Observe(classification.ChannelSmoke, "")
	require.False(t, changed)
	require.Equal(t, "BAHAYA!", s.Snapshot()[classification.ChannelSmoke])

	_, changed = s.Observe(classification.ChannelCO, "NORMAL")
	require.False(t, changed, "channels are independent")
}
