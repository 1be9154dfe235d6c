package queue

import (
	"time"

	"lyrix/internal/types"
)

// Job is one queued unit of audio-to-lyrics work. It is created at
// submission and mutated only by the worker executing it.
type Job struct {
	ID        string          `json:"id"`
	Filename  string          `json:"filename"`
	AudioPath string          `json:"audio_path"`
	Options   types.Options   `json:"options"`
	State     string          `json:"state"`
	Stage     string          `json:"stage"`
	Progress  int             `json:"progress"`
	Result    *types.Result   `json:"result,omitempty"`
	Error     *types.JobError `json:"error,omitempty"`
	Meta      types.Meta      `json:"meta"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewJob creates a queued job with default values.
func NewJob(id, filename, audioPath string, opts types.Options) *Job {
	now := time.Now().UTC()
	if opts.LanguageHint == "" {
		opts.LanguageHint = "auto"
	}
	if opts.Timestamps == "" {
		opts.Timestamps = types.TimestampsNone
	}
	return &Job{
		ID:        id,
		Filename:  filename,
		AudioPath: audioPath,
		Options:   opts,
		State:     types.StateQueued,
		Progress:  0,
		Meta:      types.Meta{Diarize: opts.Diarize},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a snapshot safe to hand to other goroutines.
func (j *Job) Clone() *Job {
	c := *j
	if j.Result != nil {
		r := *j.Result
		if j.Result.Words != nil {
			r.Words = append([]types.Word(nil), j.Result.Words...)
		}
		c.Result = &r
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	return &c
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return types.IsTerminal(j.State)
}
