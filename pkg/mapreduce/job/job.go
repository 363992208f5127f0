package job

import (
	"time"

	"github.com/google/uuid"
)

type Phase string

const (
	MapPhase    Phase = "MAP"
	ReducePhase Phase = "REDUCE"
	DonePhase   Phase = "DONE"
)

type Job struct {
	ID       string
	Phase    Phase
	Reducers int
	Maps     int

	CodePath        string
	SplitDir        string
	IntermediateDir string // shuffle output once the job leaves MAP
	OutputDir       string
	FinalOutput     string

	CreatedAt time.Time
}

// NewID returns a short random job id.
func NewID() string {
	return uuid.NewString()[:8]
}

// Advance moves the job to next. Phases only move forward; any other
// transition is refused.
func (j *Job) Advance(next Phase) bool {
	switch {
	case j.Phase == MapPhase && next == ReducePhase:
	case j.Phase == ReducePhase && next == DonePhase:
	default:
		return false
	}
	j.Phase = next
	return true
}
