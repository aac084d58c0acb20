// Package audio converts floating-point sample buffers between rates and
// encodes them as 16-bit little-endian PCM for the upstream service.
package audio

import (
	"encoding/binary"
	"math"
)

// Downsample averages input samples over sub-ranges proportional to the rate
// ratio. The output length is round(len(samples) / ratio). When the rates are
// equal the input is returned unchanged so that no resampling artifacts are
// introduced.
func Downsample(samples []float32, inputRate, outputRate int) []float32 {
	if inputRate == outputRate {
		return samples
	}

	ratio := float64(inputRate) / float64(outputRate)
	newLength := int(math.Round(float64(len(samples)) / ratio))
	result := make([]float32, newLength)

	offsetBuffer := 0
	for offsetResult := range result {
		nextOffsetBuffer := int(math.Round(float64(offsetResult+1) * ratio))
		var accum float64
		count := 0
		for i := offsetBuffer; i < nextOffsetBuffer && i < len(samples); i++ {
			accum += float64(samples[i])
			count++
		}
		if count > 0 {
			result[offsetResult] = float32(accum / float64(count))
		}
		offsetBuffer = nextOffsetBuffer
	}
	return result
}

// PCMEncode maps each sample, clamped to [-1, 1], to a signed 16-bit
// little-endian integer. Negative values scale by 32768 and non-negative by
// 32767; the asymmetry is required for bit-compatibility with the reference
// encoder.
func PCMEncode(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		s := float64(sample)
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}
		var v int16
		if s < 0 {
			v = int16(s * 0x8000)
		} else {
			v = int16(s * 0x7FFF)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// DecodeFloat32 reinterprets a raw inbound frame as little-endian float32
// samples. Trailing bytes that do not fill a full sample are ignored.
func DecodeFloat32(raw []byte) []float32 {
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}
