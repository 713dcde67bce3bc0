// Package pcm converts between float audio samples and the base64-wrapped
// 16-bit little-endian PCM carried by realtime model transports.
//
// The capture side always runs at [CaptureSampleRate] mono and the playback
// side at [PlaybackSampleRate] mono; those rates are policy of the session
// controller and are never negotiated per session.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"math"

	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio"
)

const (
	// CaptureSampleRate is the microphone sample rate sent to the model.
	CaptureSampleRate = 16000

	// PlaybackSampleRate is the sample rate of synthesized model audio.
	PlaybackSampleRate = 24000

	// CaptureFrameSize is the number of samples per capture frame.
	CaptureFrameSize = 4096

	// scale maps int16 to [-1, 1).
	scale = 32768
)

// Quantize converts a float sample to int16, clamping out-of-range values to
// the nearest representable boundary.
func Quantize(s float32) int16 {
	v := math.Round(float64(s) * scale)
	switch {
	case math.IsNaN(v):
		return 0
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// Encode quantizes samples to 16-bit PCM, packs them little-endian and wraps
// the bytes in standard base64.
func Encode(samples []float32) string {
	return base64.StdEncoding.EncodeToString(Float32ToPCM16(samples))
}

// EncodeChunk encodes mono samples into a transport-ready chunk.
func EncodeChunk(samples []float32, sampleRate int) audio.EncodedChunk {
	return audio.EncodedChunk{
		Data:       Encode(samples),
		SampleRate: sampleRate,
		Channels:   1,
	}
}

// Decode unwraps base64 text into raw PCM bytes. Malformed input yields a
// [*DecodeError].
func Decode(text string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return raw, nil
}

// DecodeAudioData reinterprets little-endian 16-bit PCM as normalized floats,
// de-interleaving into one slice per channel. The byte length must be a
// multiple of 2*channels, otherwise a [*FormatError] is returned.
func DecodeAudioData(raw []byte, sampleRate, channels int) (audio.Buffer, error) {
	if channels < 1 || sampleRate < 1 {
		return audio.Buffer{}, &FormatError{Bytes: len(raw), SampleRate: sampleRate, Channels: channels}
	}
	if len(raw)%(2*channels) != 0 {
		return audio.Buffer{}, &FormatError{Bytes: len(raw), SampleRate: sampleRate, Channels: channels}
	}

	frames := len(raw) / (2 * channels)
	data := make([][]float32, channels)
	for ch := range data {
		data[ch] = make([]float32, frames)
	}
	for i := range frames {
		for ch := range channels {
			off := (i*channels + ch) * 2
			s := int16(binary.LittleEndian.Uint16(raw[off:]))
			data[ch][i] = float32(s) / scale
		}
	}
	return audio.Buffer{Data: data, SampleRate: sampleRate}, nil
}

// Float32ToPCM16 quantizes samples into little-endian int16 bytes.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(Quantize(s)))
	}
	return out
}

// PCM16ToFloat32 converts little-endian int16 bytes to floats. A trailing odd
// byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / scale
	}
	return out
}
