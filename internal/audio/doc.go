// Package audio plays synthesized clips on the local output device using
// the oto/v3 library. Encoded clips (MP3, Ogg, WAV) are decoded to 16-bit
// PCM with ffmpeg, which also applies the playback rate.
package audio
