package types

import "time"

// Job state constants
const (
	StateQueued   = "queued"
	StateRunning  = "running"
	StateDone     = "done"
	StateError    = "error"
	StateNotFound = "not_found"
)

// IsTerminal reports whether a state admits no further transitions.
func IsTerminal(state string) bool {
	return state == StateDone || state == StateError
}

// Pipeline stage constants, in execution order
const (
	StageValidated      = "validated"
	StagePreprocessed   = "preprocessed"
	StageSeparating     = "separating"
	StageSeparated      = "separated"
	StageTranscribing   = "transcribing"
	StageTranscribed    = "transcribed"
	StagePostprocessing = "postprocessing"
	StageDone           = "done"
	StageError          = "error"
)

// Error code constants
const (
	CodeInvalidInput        = "invalid_input"
	CodeFileTooLarge        = "file_too_large"
	CodePreprocessingFailed = "preprocessing_failed"
	CodeExtractionFailed    = "extraction_failed"
	CodeTimeout             = "timeout"
	CodeNotFound            = "not_found"
	CodeInternal            = "internal"
)

// Timestamp mode constants
const (
	TimestampsNone = "none"
	TimestampsWord = "word"
)

// Options are the client-supplied knobs for one extraction request.
type Options struct {
	LanguageHint string `json:"language_hint"`
	Timestamps   string `json:"timestamps"`
	Diarize      bool   `json:"diarize"` // accepted, not implemented
}

// Word is a single recognized word with absolute timing in seconds.
type Word struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment represents a timestamped span of recognized speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

// Transcript is the output of the recognition stage.
type Transcript struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Segments []Segment `json:"segments"`
}

// Result is present only on a job in state done.
type Result struct {
	Lyrics        string `json:"lyrics"`
	RawTranscript string `json:"raw_transcript"`
	Words         []Word `json:"words,omitempty"`
}

// JobError is present only on a job in state error.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta carries informational facts about how a job was processed.
type Meta struct {
	DurationSeconds float64   `json:"duration_seconds"`
	Language        string    `json:"language,omitempty"`
	SeparationUsed  bool      `json:"separation_used"`
	Diarize         bool      `json:"diarize"`
	ProcessedAt     time.Time `json:"processed_at,omitempty"`
}
