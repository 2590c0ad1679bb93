package rtc

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	toneFrequency  = 440.0
	toneSampleRate = 48000
	toneDuration   = time.Second
	toneAmplitude  = 0.25
)

// GenerateTone returns mono signed 16-bit little-endian PCM of a sine wave.
func GenerateTone(frequency float64, duration time.Duration, sampleRate int) []byte {
	samples := int(duration.Seconds() * float64(sampleRate))
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := toneAmplitude * math.Sin(2*math.Pi*frequency*float64(i)/float64(sampleRate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v*math.MaxInt16)))
	}
	return pcm
}
