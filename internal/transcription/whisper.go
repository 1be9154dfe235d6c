package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"lyrix/internal/audio"
	"lyrix/internal/types"
)

// WhisperTranscriber wraps Python's OpenAI Whisper, tuned for singing:
// temperature pinned to zero for deterministic decoding and word-level
// timestamps enabled so the formatter can break lines on timing gaps.
type WhisperTranscriber struct {
	model     string
	device    string
	precision string
	threads   int
	runner    audio.Runner
	logger    zerolog.Logger
	mu        sync.Mutex // one decode at a time per process
}

// NewWhisperTranscriber creates a transcriber using `python -m whisper`.
func NewWhisperTranscriber(model, device, precision string, threads int, logger zerolog.Logger) *WhisperTranscriber {
	return &WhisperTranscriber{
		model:     model,
		device:    device,
		precision: precision,
		threads:   threads,
		runner:    audio.ExecRunner{},
		logger:    logger,
	}
}

// Transcribe decodes audioPath and returns segments with word timing.
// Zero segments is a valid empty result, not an error.
func (wt *WhisperTranscriber) Transcribe(ctx context.Context, audioPath, languageHint string) (*types.Transcript, error) {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	outDir := filepath.Join(filepath.Dir(audioPath), "whisper_output")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create whisper output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	absPath, err := filepath.Abs(audioPath)
	if err != nil {
		return nil, fmt.Errorf("resolve audio path: %w", err)
	}

	args := []string{
		"-m", "whisper",
		absPath,
		"--model", wt.model,
		"--device", wt.device,
		"--output_dir", outDir,
		"--output_format", "json",
		"--temperature", "0",
		"--word_timestamps", "True",
		"--threads", strconv.Itoa(wt.threads),
		"--fp16", boolFlag(wt.precision == "fp16"),
	}
	if languageHint != "" && languageHint != "auto" {
		args = append(args, "--language", languageHint)
	}

	result, err := wt.runner.Run(ctx, "python", args...)
	if err != nil {
		return nil, fmt.Errorf("whisper failed (exit %d): %s", result.ExitCode, strings.TrimSpace(result.Stderr))
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonPath := filepath.Join(outDir, base+".json")
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("read whisper output: %w", err)
	}

	transcript, err := ParseWhisperJSON(data)
	if err != nil {
		return nil, err
	}

	wt.logger.Info().
		Int("segments", len(transcript.Segments)).
		Float64("duration", transcript.Duration).
		Str("language", transcript.Language).
		Msg("transcription completed")
	return transcript, nil
}

// whisperOutput matches Python Whisper's JSON output format.
type whisperOutput struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Segments []whisperSegment `json:"segments"`
}

type whisperSegment struct {
	ID    int           `json:"id"`
	Start float64       `json:"start"`
	End   float64       `json:"end"`
	Text  string        `json:"text"`
	Words []whisperWord `json:"words"`
}

type whisperWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// ParseWhisperJSON converts Whisper's JSON file into the domain transcript.
func ParseWhisperJSON(data []byte) (*types.Transcript, error) {
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse whisper JSON: %w", err)
	}

	segments := make([]types.Segment, 0, len(out.Segments))
	for _, seg := range out.Segments {
		s := types.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		}
		for _, w := range seg.Words {
			text := strings.TrimSpace(w.Word)
			if text == "" {
				continue
			}
			s.Words = append(s.Words, types.Word{Text: text, Start: w.Start, End: w.End})
		}
		segments = append(segments, s)
	}

	var duration float64
	if len(segments) > 0 {
		duration = segments[len(segments)-1].End
	}

	return &types.Transcript{
		Text:     strings.TrimSpace(out.Text),
		Language: out.Language,
		Duration: duration,
		Segments: segments,
	}, nil
}

func boolFlag(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
