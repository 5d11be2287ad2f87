package classification

import telemetry "lab-monitor-bridge/internal/telemetry/domain"

// Labels emitted by the fallback rule and the neutral defaults.
const (
	LabelAirGood     = "Baik"
	LabelAirModerate = "Sedang"
	LabelSmokeSafe   = "AMAN"
	LabelSmokeDanger = "BAHAYA!"
	LabelCONormal    = "NORMAL"
	LabelCODanger    = "BERBAHAYA!"
)

// Fallback thresholds in ppm. A reading strictly below the threshold is the safe label.
const (
	AirQualityThreshold = 200.0
	SmokeThreshold      = 70.0
	COThreshold         = 100.0

	FallbackConfidence = 90.0
)

// Fallback classifies a reading with fixed thresholds. It never fails.
func Fallback(reading telemetry.Reading) Result {
	return Result{
		MQ135: threshold(reading.MQ135PPM, AirQualityThreshold, LabelAirGood, LabelAirModerate),
		MQ2:   threshold(reading.MQ2PPM, SmokeThreshold, LabelSmokeSafe, LabelSmokeDanger),
		MQ7:   threshold(reading.MQ7PPM, COThreshold, LabelCONormal, LabelCODanger),
	}
}

func threshold(value, limit float64, below, above string) ChannelResult {
	label := above
	if value < limit {
		label = below
	}
	return ChannelResult{Label: label, Confidence: FallbackConfidence}
}
