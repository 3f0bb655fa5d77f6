// Package audio converts the raw 16-bit PCM produced by speech synthesis
// into sample buffers and playable WAV files.
package audio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// SpeechSampleRate is the rate of Gemini TTS output.
const SpeechSampleRate = 24000

const bytesPerSample = 2

// DecodeBase64 decodes a standard base64 string.
func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding audio payload: %w", err)
	}
	return b, nil
}

// Decode splits little-endian signed 16-bit interleaved PCM into one float32
// buffer per channel, each sample scaled by 1/32768.
func Decode(pcm []byte, channels int) ([][]float32, error) {
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}
	frame := channels * bytesPerSample
	if len(pcm)%frame != 0 {
		return nil, fmt.Errorf("pcm length %d is not a multiple of frame size %d", len(pcm), frame)
	}

	frames := len(pcm) / frame
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * bytesPerSample
			v := int16(binary.LittleEndian.Uint16(pcm[off:]))
			out[c][i] = float32(v) / 32768
		}
	}
	return out, nil
}

// Encode is the inverse of Decode. Samples outside [-1, 1) are clamped.
// All channels must have the same length.
func Encode(chans [][]float32) ([]byte, error) {
	if len(chans) == 0 {
		return nil, nil
	}
	frames := len(chans[0])
	for c, ch := range chans {
		if len(ch) != frames {
			return nil, fmt.Errorf("channel %d has %d samples, want %d", c, len(ch), frames)
		}
	}

	out := make([]byte, frames*len(chans)*bytesPerSample)
	for i := 0; i < frames; i++ {
		for c, ch := range chans {
			off := (i*len(chans) + c) * bytesPerSample
			binary.LittleEndian.PutUint16(out[off:], uint16(toInt16(ch[i])))
		}
	}
	return out, nil
}

func toInt16(f float32) int16 {
	v := math.Round(float64(f) * 32768)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// WAV wraps 16-bit PCM in a canonical RIFF/WAVE container.
func WAV(pcm []byte, sampleRate, channels int) []byte {
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))

	blockAlign := channels * bytesPerSample
	w := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }

	buf.WriteString("RIFF")
	w(uint32(36 + len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	w(uint32(16))
	w(uint16(1)) // PCM
	w(uint16(channels))
	w(uint32(sampleRate))
	w(uint32(sampleRate * blockAlign))
	w(uint16(blockAlign))
	w(uint16(bytesPerSample * 8))

	buf.WriteString("data")
	w(uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
