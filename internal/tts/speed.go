package tts

import "math"

// Playback rate bounds. The upper and lower limits match what the ffmpeg
// atempo filter accepts in a single pass.
const (
	MinRate     = 0.5
	MaxRate     = 2.0
	DefaultRate = 1.0
)

// ClampRate bounds a playback rate multiplier to [MinRate, MaxRate].
// Zero, negative and NaN values select DefaultRate.
func ClampRate(rate float64) float64 {
	switch {
	case math.IsNaN(rate) || rate <= 0:
		return DefaultRate
	case rate < MinRate:
		return MinRate
	case rate > MaxRate:
		return MaxRate
	default:
		return rate
	}
}
