package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// JobStatus represents the state of a stage job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the job will not change status again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// StageJob is a persisted unit of pipeline work.
// It becomes runnable once every job in WaitOn has completed.
type StageJob struct {
	ID          surrealmodels.RecordID `json:"id"`
	Method      string                 `json:"method"`
	Args        map[string]any         `json:"args,omitempty"`
	WaitOn      []string               `json:"wait_on"`
	Status      JobStatus              `json:"status"`
	Output      map[string]any         `json:"output,omitempty"`
	Error       *string                `json:"error,omitempty"`
	Attempts    int                    `json:"attempts"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// ArgString returns a string argument, empty when missing or not a string.
func (j *StageJob) ArgString(key string) string {
	return argString(j.Args, key)
}

// Info returns the API view of the job.
func (j *StageJob) Info() StageJobInfo {
	id, _ := RecordIDString(j.ID)
	return StageJobInfo{
		ID:          id,
		Method:      j.Method,
		Args:        j.Args,
		WaitOn:      j.WaitOn,
		Status:      j.Status,
		Output:      j.Output,
		Error:       j.Error,
		Attempts:    j.Attempts,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

// StageJobInfo is a StageJob as served over HTTP, keyed by its plain ID.
type StageJobInfo struct {
	ID          string         `json:"id"`
	Method      string         `json:"method"`
	Args        map[string]any `json:"args,omitempty"`
	WaitOn      []string       `json:"wait_on"`
	Status      JobStatus      `json:"status"`
	Output      map[string]any `json:"output,omitempty"`
	Error       *string        `json:"error,omitempty"`
	Attempts    int            `json:"attempts"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// ArgString returns a string argument, empty when missing or not a string.
func (j *StageJobInfo) ArgString(key string) string {
	return argString(j.Args, key)
}

func argString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	s, _ := args[key].(string)
	return s
}
