package mapreduce

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/paulniziolek/mrjobs/pkg/mapreduce/app"
	"github.com/paulniziolek/mrjobs/pkg/mapreduce/shuffle"
	"github.com/paulniziolek/mrjobs/pkg/mapreduce/task"
)

type fakeCoordinator struct {
	mu      sync.Mutex
	reports map[string]ReportRequest
	polls   int
}

func (f *fakeCoordinator) Register(ctx context.Context, workerID string) error {
	return nil
}

func (f *fakeCoordinator) NextTask(ctx context.Context, workerID string) (*task.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	return nil, nil
}

func (f *fakeCoordinator) Report(ctx context.Context, taskID string, result ReportRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reports == nil {
		f.reports = make(map[string]ReportRequest)
	}
	f.reports[taskID] = result
	return nil
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func TestMapAggregatesPerKey(t *testing.T) {
	dir := t.TempDir()
	splitPath := filepath.Join(dir, "split-00000")
	mustWrite(t, splitPath, "a b a\nb c\n")

	coord := &fakeCoordinator{}
	w := NewWorker(WorkerConfig{ID: "w1"}, coord, nil)
	tk := task.NewMap("j", 0, task.MapMetadata{
		SplitPath:       splitPath,
		ReduceWorkers:   1,
		CodePath:        "wordcount",
		IntermediateDir: filepath.Join(dir, "inter"),
	})
	w.Execute(context.Background(), tk)

	rep := coord.reports[tk.ID]
	if !rep.OK || rep.WorkerID != "w1" {
		t.Fatalf("unexpected report %+v", rep)
	}
	if filepath.Base(rep.Output) != "mapper-w1-map-j-0-1.txt" {
		t.Fatalf("unexpected output file %s", rep.Output)
	}
	if got := mustRead(t, rep.Output); got != "a 2\nb 2\nc 1\n" {
		t.Fatalf("map output %q", got)
	}

	// a second invocation must not clobber the first output
	w.Execute(context.Background(), tk)
	if second := coord.reports[tk.ID].Output; second == rep.Output {
		t.Fatalf("second map invocation reused %s", second)
	}
}

func TestReduceGroupsNonContiguousKeys(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, shuffle.BucketFile(dir, 1), "b 1\na 1\nb 2\n\na 5\n")

	coord := &fakeCoordinator{}
	w := NewWorker(WorkerConfig{ID: "w1"}, coord, nil)
	out := filepath.Join(dir, "out")
	tk := task.NewReduce("j", task.ReduceMetadata{Bucket: 1, IntermediateDir: dir, OutputDir: out, CodePath: "wordcount"})
	w.Execute(context.Background(), tk)

	rep := coord.reports[tk.ID]
	if !rep.OK {
		t.Fatalf("reduce failed: %s", rep.Error)
	}
	if rep.Output != filepath.Join(out, "part-00001.txt") {
		t.Fatalf("unexpected output %s", rep.Output)
	}
	if got := mustRead(t, rep.Output); got != "a 6\nb 3\n" {
		t.Fatalf("reduce output %q", got)
	}
}

func TestReduceRejectsMalformedRecords(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, shuffle.BucketFile(dir, 0), "a 1\nb notanumber\n")

	coord := &fakeCoordinator{}
	w := NewWorker(WorkerConfig{ID: "w1"}, coord, nil)
	tk := task.NewReduce("j", task.ReduceMetadata{Bucket: 0, IntermediateDir: dir, OutputDir: dir, CodePath: "wordcount"})
	w.Execute(context.Background(), tk)

	if rep := coord.reports[tk.ID]; rep.OK || rep.Error == "" {
		t.Fatalf("expected failed report, got %+v", rep)
	}
}

func TestPanicsBecomeFailedReports(t *testing.T) {
	app.Register("panicky", app.Funcs{
		MapFunc:    func(line string) []app.KeyValue { panic("bad line " + line) },
		ReduceFunc: func(key string, values []int64) int64 { return 0 },
	})

	dir := t.TempDir()
	splitPath := filepath.Join(dir, "split-00000")
	mustWrite(t, splitPath, "x\n")

	coord := &fakeCoordinator{}
	w := NewWorker(WorkerConfig{ID: "w1"}, coord, nil)
	tk := task.NewMap("j", 0, task.MapMetadata{SplitPath: splitPath, CodePath: "panicky.py", IntermediateDir: dir})
	w.Execute(context.Background(), tk)

	rep := coord.reports[tk.ID]
	if rep.OK || !strings.Contains(rep.Error, "panicked") {
		t.Fatalf("expected a panic report, got %+v", rep)
	}
}

func TestMapRejectsBadKeys(t *testing.T) {
	app.Register("spacey", app.Funcs{
		MapFunc:    func(line string) []app.KeyValue { return []app.KeyValue{{Key: "two words", Value: 1}} },
		ReduceFunc: func(key string, values []int64) int64 { return 0 },
	})

	dir := t.TempDir()
	splitPath := filepath.Join(dir, "split-00000")
	mustWrite(t, splitPath, "x\n")

	coord := &fakeCoordinator{}
	w := NewWorker(WorkerConfig{ID: "w1"}, coord, nil)
	tk := task.NewMap("j", 0, task.MapMetadata{SplitPath: splitPath, CodePath: "spacey", IntermediateDir: dir})
	w.Execute(context.Background(), tk)

	if rep := coord.reports[tk.ID]; rep.OK {
		t.Fatalf("expected whitespace key to fail the task")
	}
}

func TestUnknownCodeFails(t *testing.T) {
	coord := &fakeCoordinator{}
	w := NewWorker(WorkerConfig{ID: "w1"}, coord, nil)
	tk := task.NewMap("j", 0, task.MapMetadata{SplitPath: "missing", CodePath: "no-such-app"})
	w.Execute(context.Background(), tk)

	if rep := coord.reports[tk.ID]; rep.OK || rep.Error == "" {
		t.Fatalf("expected failed report, got %+v", rep)
	}
}

func TestRunBacksOffAndStops(t *testing.T) {
	coord := &fakeCoordinator{}
	w := NewWorker(WorkerConfig{Backoff: 10 * time.Millisecond}, coord, nil)
	if w.ID() == "" {
		t.Fatalf("expected a generated worker id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx); err != context.DeadlineExceeded {
		t.Fatalf("Run returned %v; expected deadline exceeded", err)
	}

	coord.mu.Lock()
	polls := coord.polls
	coord.mu.Unlock()
	if polls < 2 || polls > 20 {
		t.Fatalf("unexpected number of polls %d for a 10ms backoff over 100ms", polls)
	}
}
