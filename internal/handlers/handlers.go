// Package handlers implements the HTTP surface: submission, status
// retrieval, progress streaming, and the extraction archive.
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"lyrix/internal/queue"
	"lyrix/internal/types"
)

// JobStatus is the wire representation of a job snapshot.
type JobStatus struct {
	JobID    string          `json:"job_id"`
	State    string          `json:"state"`
	Stage    string          `json:"stage,omitempty"`
	Progress int             `json:"progress"`
	Result   *types.Result   `json:"result,omitempty"`
	Error    *types.JobError `json:"error,omitempty"`
	Meta     *types.Meta     `json:"meta,omitempty"`
}

func statusFromJob(job *queue.Job) JobStatus {
	s := JobStatus{
		JobID:    job.ID,
		State:    job.State,
		Stage:    job.Stage,
		Progress: job.Progress,
	}
	if job.Terminal() {
		s.Result = job.Result
		s.Error = job.Error
		meta := job.Meta
		s.Meta = &meta
	}
	return s
}

// notFoundStatus is the uniform shape for unknown or expired ids. It is a
// normal outcome for pollers, not an HTTP-level failure.
func notFoundStatus(id string) JobStatus {
	return JobStatus{JobID: id, State: types.StateNotFound}
}

func errorReply(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}
