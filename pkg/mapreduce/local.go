package mapreduce

import (
	"context"

	"github.com/paulniziolek/mrjobs/pkg/mapreduce/task"
)

// Local returns a Coordinator for workers running in the master's process.
func (m *Master) Local() Coordinator {
	return localCoordinator{m}
}

type localCoordinator struct {
	m *Master
}

func (l localCoordinator) Register(ctx context.Context, workerID string) error {
	_, err := l.m.RegisterWorker(workerID)
	return err
}

func (l localCoordinator) NextTask(ctx context.Context, workerID string) (*task.Task, error) {
	return l.m.NextTask(workerID)
}

func (l localCoordinator) Report(ctx context.Context, taskID string, result ReportRequest) error {
	return l.m.ReportResult(taskID, result)
}
