package mapreduce

import (
	"encoding/json"
	"time"

	"github.com/paulniziolek/mrjobs/pkg/mapreduce/job"
	"github.com/paulniziolek/mrjobs/pkg/mapreduce/task"
)

type CreateJobRequest struct {
	UserCodePath  string `json:"userCodePath"`
	DatasetPath   string `json:"datasetPath"`
	Reducers      int    `json:"reducers"`
	SplitSizeMb   int    `json:"splitSizeMb"`
	LinesPerSplit int    `json:"linesPerSplit,omitempty"`
}

type CreateJobResponse struct {
	JobID    string `json:"jobId"`
	Maps     int    `json:"maps"`
	Reducers int    `json:"reducers"`
}

type RegisterRequest struct {
	WorkerID string `json:"workerId"`
}

type RegisterResponse struct {
	OK      bool     `json:"ok"`
	Workers []string `json:"workers"`
}

type GetTaskRequest struct {
	WorkerID string `json:"workerId"`
}

type GetTaskResponse struct {
	Task *task.Task `json:"task"`
}

type ReportRequest struct {
	OK       bool   `json:"ok"`
	WorkerID string `json:"workerId,omitempty"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
}

// UnmarshalJSON treats a report without an "ok" field as a success.
func (r *ReportRequest) UnmarshalJSON(b []byte) error {
	type plain ReportRequest
	p := plain{OK: true}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = ReportRequest(p)
	return nil
}

type ReportResponse struct {
	OK bool `json:"ok"`
}

type JobStatus struct {
	JobID       string    `json:"jobId"`
	Status      job.Phase `json:"status"`
	Maps        int       `json:"maps"`
	MapsDone    int       `json:"mapsDone"`
	MapsPending int       `json:"mapsPending"`
	Reduces     int       `json:"reduces"`
	ReducesDone int       `json:"reducesDone"`
	OutputDir   string    `json:"outputDir"`
	FinalOutput string    `json:"finalOutput,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
