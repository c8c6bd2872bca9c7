// Package audio owns raw PCM capture, playback and artifact encoding for the
// assistant. Everything downstream works on 16-bit little-endian mono frames.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Frame is one capture period of mono PCM16 samples.
type Frame struct {
	Samples  []int16
	Captured time.Time
}

// Stats returns the peak absolute sample and the normalized RMS energy
// of p, where p is raw little-endian PCM16. RMS is in [0, 1].
func Stats(p []byte) (peakAbs int, rms float64) {
	if len(p) < 2 {
		return 0, 0
	}
	var sumSquares float64
	samples := 0
	for i := 0; i+1 < len(p); i += 2 {
		v := int16(binary.LittleEndian.Uint16(p[i : i+2]))
		abs := int(v)
		if abs < 0 {
			abs = -abs
		}
		if abs > peakAbs {
			peakAbs = abs
		}
		f := float64(v) / 32768.0
		sumSquares += f * f
		samples++
	}
	if samples == 0 {
		return peakAbs, 0
	}
	return peakAbs, math.Sqrt(sumSquares / float64(samples))
}

// RMS is Stats for sample slices; used on decoded frames.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	for _, v := range samples {
		f := float64(v) / 32768.0
		sumSquares += f * f
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}

// BytesToSamples decodes little-endian PCM16 into int16 samples. A trailing
// odd byte is ignored.
func BytesToSamples(p []byte) []int16 {
	out := make([]int16, 0, len(p)/2)
	for i := 0; i+1 < len(p); i += 2 {
		out = append(out, int16(binary.LittleEndian.Uint16(p[i:i+2])))
	}
	return out
}

// SamplesToBytes encodes int16 samples as little-endian PCM16.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
