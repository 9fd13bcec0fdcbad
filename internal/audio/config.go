package audio

import (
	"fmt"
	"time"
)

// PlayerConfig contains configuration for the audio player.
type PlayerConfig struct {
	SampleRate     int           // 44100 or 48000 Hz only
	Channels       int           // 1 = mono, 2 = stereo
	BufferDuration time.Duration // device buffer, 0 lets oto decide
	Volume         float64       // 0.0 to 1.0
	FFmpegBinary   string
	DecodeTimeout  time.Duration
}

// DefaultPlayerConfig returns the default player configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate:     44100, // CD quality
		Channels:       1,     // Mono for TTS
		BufferDuration: 100 * time.Millisecond,
		Volume:         1.0,
		FFmpegBinary:   "ffmpeg",
		DecodeTimeout:  15 * time.Second,
	}
}

func validateConfig(config PlayerConfig) error {
	if config.SampleRate != 44100 && config.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000, got %d", config.SampleRate)
	}
	if config.Channels < 1 || config.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", config.Channels)
	}
	if config.Volume < 0 || config.Volume > 1 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", config.Volume)
	}
	return nil
}
