package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestEncodeWAV_Header(t *testing.T) {
	sampleRate := 16000
	numSamples := 1600 // 0.1s
	samples := make([]int16, numSamples)
	for i := range samples {
		samples[i] = int16(16383 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}

	wav, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if len(wav) != 44+numSamples*2 {
		t.Fatalf("expected %d bytes, got %d", 44+numSamples*2, len(wav))
	}
	if string(wav[0:4]) != "RIFF" {
		t.Error("missing RIFF marker")
	}
	if string(wav[8:12]) != "WAVE" {
		t.Error("missing WAVE marker")
	}
	if string(wav[36:40]) != "data" {
		t.Error("missing data marker")
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != uint32(sampleRate) {
		t.Errorf("expected sample rate %d in header, got %d", sampleRate, got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Errorf("expected 1 channel, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(wav[34:36]); got != 16 {
		t.Errorf("expected 16 bits per sample, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(numSamples*2) {
		t.Errorf("expected data size %d, got %d", numSamples*2, got)
	}
}

func TestEncodeWAV_Invalid(t *testing.T) {
	if _, err := EncodeWAV(nil, 16000); err == nil {
		t.Error("expected error for empty samples")
	}
	if _, err := EncodeWAV([]int16{1, 2, 3}, 0); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestPCM16RoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 12345, -12345}
	got := PCM16FromBytes(PCM16ToBytes(samples))
	if len(got) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(got))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d: expected %d, got %d", i, samples[i], got[i])
		}
	}
}

func TestPCM16FromBytes_OddTrailingByte(t *testing.T) {
	got := PCM16FromBytes([]byte{0x34, 0x12, 0xff})
	if len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
	if got[0] != 0x1234 {
		t.Errorf("expected 0x1234, got %#x", got[0])
	}
}
