package queue

import (
	"math"

	"actionplane/internal/store"
)

func clampFactor(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

// ICEScore returns impact × confidence × ease, each factor clamped to 0..10 and scaled to 0..1.
func ICEScore(ice store.ICE) float64 {
	return (clampFactor(ice.Impact) / 10) * (clampFactor(ice.Confidence) / 10) * (clampFactor(ice.Ease) / 10)
}

// ICEPriority blends the ICE score with a manual priority into a 0..100 scheduling priority.
func ICEPriority(ice store.ICE, manual int) int {
	manual = clampPriority(manual)
	return int(math.Round((100*ICEScore(ice) + float64(manual)) / 2))
}

func clampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}
