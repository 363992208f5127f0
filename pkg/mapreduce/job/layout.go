package job

import (
	"fmt"
	"os"
	"path/filepath"
)

const FinalName = "Final.txt"

// Layout places every job directory under a shared root:
//
//	splits/<id>/split-NNNNN
//	intermediate_map/job-<id>/mapper-<worker>-<task>-<seq>.txt
//	intermediate_reduce/job-<id>/bucket-<r>/reduce-NNNNN.txt
//	output/job-<id>/part-NNNNN.txt and Final.txt
//	jobs/job-<id>/<uploaded code>
type Layout struct {
	Root string
}

func (l Layout) SplitDir(id string) string {
	return filepath.Join(l.Root, "splits", id)
}

func (l Layout) MapDir(id string) string {
	return filepath.Join(l.Root, "intermediate_map", "job-"+id)
}

func (l Layout) ShuffleDir(id string) string {
	return filepath.Join(l.Root, "intermediate_reduce", "job-"+id)
}

func (l Layout) OutputDir(id string) string {
	return filepath.Join(l.Root, "output", "job-"+id)
}

func (l Layout) CodeDir(id string) string {
	return filepath.Join(l.Root, "jobs", "job-"+id)
}

// Prepare creates the directories a new job writes into before any task runs.
func (l Layout) Prepare(id string) error {
	for _, dir := range []string{l.MapDir(id), l.OutputDir(id)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("prepare job %s: %w", id, err)
		}
	}
	return nil
}

func PartName(bucket int) string {
	return fmt.Sprintf("part-%05d.txt", bucket)
}

// MapperName names the output of one map invocation. The task id keeps
// names unique when several processes share a worker id.
func MapperName(worker, taskID string, seq int64) string {
	return fmt.Sprintf("mapper-%s-%s-%d.txt", worker, taskID, seq)
}
