package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestDownsample_Identity(t *testing.T) {
	rates := []int{8000, 16000, 44100, 48000}
	samples := []float32{0.1, -0.2, 0.3, -0.4, 0.5}

	for _, rate := range rates {
		got := Downsample(samples, rate, rate)
		if len(got) != len(samples) {
			t.Fatalf("rate %d: length changed from %d to %d", rate, len(samples), len(got))
		}
		for i := range samples {
			if got[i] != samples[i] {
				t.Errorf("rate %d: sample %d changed from %v to %v", rate, i, samples[i], got[i])
			}
		}
	}
}

func TestDownsample_LengthLaw(t *testing.T) {
	tests := []struct {
		inLen   int
		inRate  int
		outRate int
	}{
		{441, 44100, 16000},
		{4410, 44100, 16000},
		{1000, 48000, 16000},
		{999, 44100, 8000},
		{1, 44100, 16000},
		{0, 44100, 16000},
	}

	for _, tt := range tests {
		samples := make([]float32, tt.inLen)
		got := Downsample(samples, tt.inRate, tt.outRate)
		want := int(math.Round(float64(tt.inLen) * float64(tt.outRate) / float64(tt.inRate)))
		if len(got) != want {
			t.Errorf("downsample(%d samples, %d->%d): length %d, want %d",
				tt.inLen, tt.inRate, tt.outRate, len(got), want)
		}
	}
}

func TestDownsample_Averages(t *testing.T) {
	// Halving the rate averages adjacent pairs.
	samples := []float32{0, 1, 0, 1, 0, 1, 0, 1}
	got := Downsample(samples, 16000, 8000)
	if len(got) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(got))
	}
	for i, v := range got {
		if v != 0.5 {
			t.Errorf("sample %d: got %v, want 0.5", i, v)
		}
	}
}

func TestPCMEncode_Boundaries(t *testing.T) {
	tests := []struct {
		name   string
		sample float32
		want   int16
	}{
		{"positive full scale", 1.0, 32767},
		{"negative full scale", -1.0, -32768},
		{"zero", 0, 0},
		{"clamped above", 2.5, 32767},
		{"clamped below", -3.0, -32768},
		{"negative half", -0.5, -16384},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := PCMEncode([]float32{tt.sample})
			if len(out) != 2 {
				t.Fatalf("expected 2 bytes, got %d", len(out))
			}
			got := int16(binary.LittleEndian.Uint16(out))
			if got != tt.want {
				t.Errorf("encode(%v) = %d, want %d", tt.sample, got, tt.want)
			}
		})
	}
}

func TestDecodeFloat32_RoundTrip(t *testing.T) {
	samples := []float32{0.25, -0.75, 1.0, -1.0}
	raw := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(s))
	}

	got := DecodeFloat32(raw)
	if len(got) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(got))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], samples[i])
		}
	}

	// Trailing partial sample is ignored.
	if got := DecodeFloat32(raw[:5]); len(got) != 1 {
		t.Errorf("expected 1 sample from 5 bytes, got %d", len(got))
	}
}
