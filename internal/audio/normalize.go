// Package audio wraps the external tools that prepare a recording for
// transcription: ffmpeg resampling and optional Demucs vocal separation.
package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// NormalizeOptions control the ffmpeg preprocessing pass.
type NormalizeOptions struct {
	HighPass bool // highpass filter at 80 Hz to cut rumble
	Loudnorm bool // EBU R128 loudness normalization
}

// Normalizer converts arbitrary audio input to canonical 16kHz mono WAV.
type Normalizer struct {
	ffmpegPath string
	runner     Runner
}

// NewNormalizer creates a normalizer that shells out to ffmpeg.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		ffmpegPath: "ffmpeg",
		runner:     ExecRunner{},
	}
}

// Normalize resamples inputPath into a new WAV next to it and returns the
// new path. A failed run or an empty output file is a preprocessing failure.
func (n *Normalizer) Normalize(ctx context.Context, inputPath string, opts NormalizeOptions) (string, error) {
	outputPath := filepath.Join(filepath.Dir(inputPath), "normalized.wav")

	args := buildFFmpegArgs(inputPath, outputPath, opts)
	result, err := n.runner.Run(ctx, n.ffmpegPath, args...)
	if err != nil {
		return "", fmt.Errorf("ffmpeg failed (exit %d): %s", result.ExitCode, tail(result.Stderr))
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return "", fmt.Errorf("ffmpeg produced no output: %w", err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("ffmpeg produced a zero-length stream")
	}
	return outputPath, nil
}

func buildFFmpegArgs(inputPath, outputPath string, opts NormalizeOptions) []string {
	args := []string{
		"-i", inputPath,
		"-ar", "16000", // 16kHz sample rate
		"-ac", "1", // mono
		"-c:a", "pcm_s16le", // 16-bit PCM
	}

	var filters []string
	if opts.HighPass {
		filters = append(filters, "highpass=f=80")
	}
	if opts.Loudnorm {
		filters = append(filters, "loudnorm")
	}
	if len(filters) > 0 {
		args = append(args, "-af", strings.Join(filters, ","))
	}

	args = append(args, "-y", outputPath)
	return args
}

// tail keeps error messages readable when ffmpeg dumps its full banner.
func tail(s string) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	if len(lines) > 4 {
		lines = lines[len(lines)-4:]
	}
	return strings.Join(lines, "\n")
}
