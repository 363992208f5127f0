package mapreduce

import (
	"time"

	"github.com/paulniziolek/mrjobs/pkg/mapreduce/split"
)

const (
	DefaultReducers = 2
	TaskTimeout     = 30 * time.Second
)

type Config struct {
	// Root holds every job directory.
	Root string

	LinesPerSplit   int
	DefaultReducers int

	// TaskLease bounds how long a task stays in-progress before the reaper
	// hands it out again.
	TaskLease    time.Duration
	ReapInterval time.Duration

	// WorkerTTL drops workers that have not polled for this long from the
	// fairness rounds.
	WorkerTTL time.Duration

	Fairness bool
}

func DefaultConfig(root string) Config {
	return Config{
		Root:            root,
		LinesPerSplit:   split.DefaultLinesPerSplit,
		DefaultReducers: DefaultReducers,
		TaskLease:       TaskTimeout,
		ReapInterval:    time.Second,
		WorkerTTL:       time.Minute,
		Fairness:        true,
	}
}

type WorkerConfig struct {
	ID        string
	MasterURL string
	// Backoff is the pause between polls that returned no task.
	Backoff time.Duration
}

func DefaultWorkerConfig(id, masterURL string) WorkerConfig {
	return WorkerConfig{
		ID:        id,
		MasterURL: masterURL,
		Backoff:   500 * time.Millisecond,
	}
}
