package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Isolator produces an isolated vocal stem from a full mix. Implementations
// report availability so callers can degrade gracefully when the underlying
// model is not installed.
type Isolator interface {
	Available() bool
	Isolate(ctx context.Context, inputPath string) (string, error)
}

// DemucsIsolator runs the Demucs two-stem separation model via its CLI.
type DemucsIsolator struct {
	demucsPath string
	device     string
	runner     Runner
	lookPath   func(string) (string, error)
}

// NewDemucsIsolator creates an isolator that shells out to demucs.
func NewDemucsIsolator(device string) *DemucsIsolator {
	return &DemucsIsolator{
		demucsPath: "demucs",
		device:     device,
		runner:     ExecRunner{},
		lookPath:   exec.LookPath,
	}
}

// Available reports whether the demucs binary can be found.
func (d *DemucsIsolator) Available() bool {
	_, err := d.lookPath(d.demucsPath)
	return err == nil
}

// Isolate writes the vocals stem next to the input and returns its path.
func (d *DemucsIsolator) Isolate(ctx context.Context, inputPath string) (string, error) {
	outDir := filepath.Join(filepath.Dir(inputPath), "separated")

	args := []string{
		"--two-stems", "vocals",
		"-d", d.device,
		"-o", outDir,
		inputPath,
	}

	result, err := d.runner.Run(ctx, d.demucsPath, args...)
	if err != nil {
		return "", fmt.Errorf("demucs failed (exit %d): %s", result.ExitCode, tail(result.Stderr))
	}

	// Demucs writes <outDir>/<model>/<track>/vocals.wav; take the first match.
	track := baseName(inputPath)
	matches, err := filepath.Glob(filepath.Join(outDir, "*", track, "vocals.wav"))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("demucs produced no vocals stem for %s", track)
	}
	if info, err := os.Stat(matches[0]); err != nil || info.Size() == 0 {
		return "", fmt.Errorf("demucs vocals stem is empty")
	}
	return matches[0], nil
}

func baseName(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
