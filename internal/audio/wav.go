// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// LoadWAV decodes a PCM WAV file into a Segment. Integer samples are scaled
// to [-1, 1] by the file's bit depth; for multi-channel files only the first
// channel is kept.
func LoadWAV(path string) (*Segment, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wav file: %w", err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("not a valid wav file: %s", path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("wav file %s has no channel information", path)
	}

	channels := buf.Format.NumChannels
	bitDepth := int(decoder.BitDepth)
	frames := len(buf.Data) / channels

	samples := make([]float64, frames)
	for i := range frames {
		samples[i] = pcmToFloat(buf.Data[i*channels], bitDepth)
	}

	return NewSegment(buf.Format.SampleRate, samples)
}

// SaveWAV writes the segment as a mono PCM WAV at the given bit depth
// (16, 24 or 32). Samples outside [-1, 1] are clipped.
func SaveWAV(path string, seg *Segment, bitDepth int) error {
	if bitDepth != 16 && bitDepth != 24 && bitDepth != 32 {
		return fmt.Errorf("unsupported bit depth %d", bitDepth)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}

	encoder := wav.NewEncoder(file, seg.SampleRate(), bitDepth, 1, 1)

	sampleBuf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  seg.SampleRate(),
		},
		Data:           make([]int, seg.NumSamples()),
		SourceBitDepth: bitDepth,
	}
	for i, s := range seg.Samples() {
		sampleBuf.Data[i] = floatToPCM(s, bitDepth)
	}

	if err := encoder.Write(sampleBuf); err != nil {
		file.Close()
		return fmt.Errorf("failed to write wav data: %w", err)
	}
	if err := encoder.Close(); err != nil {
		file.Close()
		return fmt.Errorf("failed to finalize wav file: %w", err)
	}

	return file.Close()
}

func fullScale(bitDepth int) float64 {
	return float64(int64(1) << (bitDepth - 1))
}

func pcmToFloat(v, bitDepth int) float64 {
	if bitDepth == 8 {
		// 8-bit PCM is unsigned with a 128 midpoint.
		return float64(v-128) / 128
	}
	return float64(v) / fullScale(bitDepth)
}

func floatToPCM(s float64, bitDepth int) int {
	scale := fullScale(bitDepth)
	v := math.Round(s * scale)
	v = math.Max(-scale, math.Min(scale-1, v))
	return int(v)
}
