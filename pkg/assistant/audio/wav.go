package audio

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Utterance is a finished recording: raw samples plus metadata. Recordings
// with zero samples are never produced; callers receive nil instead.
type Utterance struct {
	Samples      []int16
	SampleRateHz int
	Started      time.Time
	Duration     time.Duration
}

// WAVBytes renders the utterance as a complete mono PCM16 WAV file.
func (u *Utterance) WAVBytes() []byte {
	return EncodeWAV(SamplesToBytes(u.Samples), u.SampleRateHz, 1)
}

// SaveWAV writes the utterance into dir with the given prefix and a unix
// timestamp, returning the file path.
func (u *Utterance) SaveWAV(dir, prefix string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifacts dir: %w", err)
	}
	name := fmt.Sprintf("%s_%d.wav", prefix, u.Started.Unix())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, u.WAVBytes(), 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}

// EncodeWAV wraps raw little-endian PCM16 data in a RIFF/WAVE container.
func EncodeWAV(pcm []byte, sampleRateHz, channels int) []byte {
	dataSize := len(pcm)
	byteRate := sampleRateHz * channels * 2
	blockAlign := channels * 2

	out := make([]byte, 44+dataSize)
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRateHz))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], 16)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))
	copy(out[44:], pcm)
	return out
}

// DecodeWAV extracts the PCM payload and sample rate from a PCM16 WAV file.
// Only the canonical 44-byte-header layout produced by the local synthesis
// pipeline is supported; anything else is rejected.
func DecodeWAV(data []byte) (pcm []byte, sampleRateHz int, err error) {
	if len(data) < 44 {
		return nil, 0, fmt.Errorf("wav too short: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a RIFF/WAVE file")
	}
	format := binary.LittleEndian.Uint16(data[20:22])
	bits := binary.LittleEndian.Uint16(data[34:36])
	if format != 1 || bits != 16 {
		return nil, 0, fmt.Errorf("unsupported wav encoding: format=%d bits=%d", format, bits)
	}
	rate := int(binary.LittleEndian.Uint32(data[24:28]))

	// Scan chunks for "data"; piper emits fmt/data but some encoders add LIST.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if id == "data" {
			end := body + size
			if end > len(data) {
				end = len(data)
			}
			return data[body:end], rate, nil
		}
		off = body + size
		if size%2 == 1 {
			off++
		}
	}
	return nil, 0, fmt.Errorf("wav has no data chunk")
}
