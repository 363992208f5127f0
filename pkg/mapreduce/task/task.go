package task

import (
	"fmt"
	"time"
)

type Task struct {
	ID     string     `json:"id"`
	Type   TaskType   `json:"type"`
	Status TaskStatus `json:"state"`
	JobID  string     `json:"jobId"`

	// Worker holds the lease while Status is InProgress.
	Worker        string     `json:"worker,omitempty"`
	LeaseDeadline *time.Time `json:"leaseDeadline,omitempty"`

	// Output is the file recorded from the accepted success report.
	Output string `json:"output,omitempty"`

	MapMetadata    *MapMetadata    `json:"map,omitempty"`
	ReduceMetadata *ReduceMetadata `json:"reduce,omitempty"`

	seq       int
	heapIndex int
}

type MapMetadata struct {
	SplitPath       string `json:"splitPath"`
	ReduceWorkers   int    `json:"reducers"`
	CodePath        string `json:"userCodePath"`
	IntermediateDir string `json:"intermediateDir"`
}

type ReduceMetadata struct {
	Bucket          int    `json:"bucket"`
	IntermediateDir string `json:"intermediateDir"`
	OutputDir       string `json:"outputDir"`
	CodePath        string `json:"userCodePath"`
}

func MapID(jobID string, i int) string {
	return fmt.Sprintf("map-%s-%d", jobID, i)
}

func ReduceID(jobID string, bucket int) string {
	return fmt.Sprintf("reduce-%s-%d", jobID, bucket)
}

// NewMap builds the idle map task for split i of a job.
func NewMap(jobID string, i int, meta MapMetadata) *Task {
	return &Task{
		ID:          MapID(jobID, i),
		Type:        Map,
		Status:      Idle,
		JobID:       jobID,
		MapMetadata: &meta,
	}
}

// NewReduce builds the idle reduce task for one bucket of a job.
func NewReduce(jobID string, meta ReduceMetadata) *Task {
	return &Task{
		ID:             ReduceID(jobID, meta.Bucket),
		Type:           Reduce,
		Status:         Idle,
		JobID:          jobID,
		ReduceMetadata: &meta,
	}
}

// Clone returns a copy that shares nothing mutable with t.
func (t *Task) Clone() *Task {
	c := *t
	if t.MapMetadata != nil {
		m := *t.MapMetadata
		c.MapMetadata = &m
	}
	if t.ReduceMetadata != nil {
		r := *t.ReduceMetadata
		c.ReduceMetadata = &r
	}
	if t.LeaseDeadline != nil {
		d := *t.LeaseDeadline
		c.LeaseDeadline = &d
	}
	c.heapIndex = -1
	return &c
}

// CodePath returns the user code location for either task kind.
func (t *Task) CodePath() string {
	switch {
	case t.MapMetadata != nil:
		return t.MapMetadata.CodePath
	case t.ReduceMetadata != nil:
		return t.ReduceMetadata.CodePath
	}
	return ""
}
