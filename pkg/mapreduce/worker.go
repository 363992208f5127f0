package mapreduce

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/paulniziolek/mrjobs/pkg/mapreduce/app"
	"github.com/paulniziolek/mrjobs/pkg/mapreduce/job"
	"github.com/paulniziolek/mrjobs/pkg/mapreduce/shuffle"
	"github.com/paulniziolek/mrjobs/pkg/mapreduce/task"
)

// Coordinator is the master as seen by a worker.
type Coordinator interface {
	Register(ctx context.Context, workerID string) error
	NextTask(ctx context.Context, workerID string) (*task.Task, error)
	Report(ctx context.Context, taskID string, result ReportRequest) error
}

type Worker struct {
	cfg   WorkerConfig
	coord Coordinator
	apps  *app.Resolver

	// mapSeq numbers this worker's map outputs.
	mapSeq atomic.Int64
}

func NewWorker(cfg WorkerConfig, coord Coordinator, apps *app.Resolver) *Worker {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()[:8]
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultWorkerConfig("", "").Backoff
	}
	if apps == nil {
		apps = app.NewResolver()
	}
	return &Worker{cfg: cfg, coord: coord, apps: apps}
}

func (w *Worker) ID() string {
	return w.cfg.ID
}

// Run registers with the master and then polls for tasks until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	for {
		err := w.coord.Register(ctx, w.cfg.ID)
		if err == nil {
			break
		}
		log.Printf("worker %s: register: %v", w.cfg.ID, err)
		if !w.sleep(ctx) {
			return ctx.Err()
		}
	}
	log.Printf("worker %s: registered", w.cfg.ID)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t, err := w.coord.NextTask(ctx, w.cfg.ID)
		if err != nil {
			log.Printf("worker %s: next task: %v", w.cfg.ID, err)
		}
		if t == nil {
			if !w.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}
		w.Execute(ctx, t)
	}
}

func (w *Worker) sleep(ctx context.Context) bool {
	timer := time.NewTimer(w.cfg.Backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Execute runs one task and reports its outcome. Failures, including panics
// in user code, become failed reports.
func (w *Worker) Execute(ctx context.Context, t *task.Task) {
	output, err := w.process(t)
	report := ReportRequest{OK: err == nil, WorkerID: w.cfg.ID, Output: output}
	if err != nil {
		report.Error = err.Error()
		log.Printf("worker %s: task %s failed: %v", w.cfg.ID, t.ID, err)
	}
	if err := w.coord.Report(ctx, t.ID, report); err != nil {
		log.Printf("worker %s: report %s: %v", w.cfg.ID, t.ID, err)
	}
}

func (w *Worker) process(t *task.Task) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.ID, r)
		}
	}()

	a, err := w.apps.Resolve(t.CodePath())
	if err != nil {
		return "", err
	}
	switch t.Type {
	case task.Map:
		return w.processMapTask(a, t)
	case task.Reduce:
		return processReduceTask(a, t)
	}
	return "", fmt.Errorf("task %s has unknown type %q", t.ID, t.Type)
}

// processMapTask applies the map function to every line of the split and
// writes one record per key holding the sum of its values.
func (w *Worker) processMapTask(a app.Application, t *task.Task) (string, error) {
	meta := t.MapMetadata
	if meta == nil {
		return "", fmt.Errorf("map task %s has no map metadata", t.ID)
	}

	f, err := os.Open(meta.SplitPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	counts := make(map[string]int64)
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 64*1024), 16<<20)
	for s.Scan() {
		for _, kv := range a.Map(s.Text()) {
			if err := checkKey(kv.Key); err != nil {
				return "", err
			}
			counts[kv.Key] += kv.Value
		}
	}
	if err := s.Err(); err != nil {
		return "", fmt.Errorf("read %s: %w", meta.SplitPath, err)
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = fmt.Sprintf("%s %d", k, counts[k])
	}

	if err := os.MkdirAll(meta.IntermediateDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(meta.IntermediateDir, job.MapperName(fileSafe(w.cfg.ID), fileSafe(t.ID), w.mapSeq.Add(1)))
	if err := writeLinesAtomic(path, lines); err != nil {
		return "", err
	}
	return path, nil
}

type record struct {
	key   string
	value int64
}

// processReduceTask groups the records of one bucket by key and writes one
// reduced record per key.
func processReduceTask(a app.Application, t *task.Task) (string, error) {
	meta := t.ReduceMetadata
	if meta == nil {
		return "", fmt.Errorf("reduce task %s has no reduce metadata", t.ID)
	}

	files, err := filepath.Glob(filepath.Join(shuffle.BucketDir(meta.IntermediateDir, meta.Bucket), "*.txt"))
	if err != nil {
		return "", err
	}
	var records []record
	for _, path := range files {
		if records, err = readRecords(path, records); err != nil {
			return "", err
		}
	}

	if !contiguous(records) {
		log.Printf("task %s: keys of bucket %d are not contiguous, sorting", t.ID, meta.Bucket)
		sort.SliceStable(records, func(i, j int) bool { return records[i].key < records[j].key })
	}

	var lines []string
	for i := 0; i < len(records); {
		j := i
		var values []int64
		for ; j < len(records) && records[j].key == records[i].key; j++ {
			values = append(values, records[j].value)
		}
		lines = append(lines, fmt.Sprintf("%s %d", records[i].key, a.Reduce(records[i].key, values)))
		i = j
	}

	if err := os.MkdirAll(meta.OutputDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(meta.OutputDir, job.PartName(meta.Bucket))
	if err := writeLinesAtomic(path, lines); err != nil {
		return "", err
	}
	return path, nil
}

func readRecords(path string, records []record) ([]record, error) {
	f, err := os.Open(path)
	if err != nil {
		return records, err
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 64*1024), 16<<20)
	for n := 1; s.Scan(); n++ {
		fields := strings.Fields(s.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return records, fmt.Errorf("%s:%d: malformed record %q", path, n, s.Text())
		}
		v, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return records, fmt.Errorf("%s:%d: %w", path, n, err)
		}
		records = append(records, record{key: fields[0], value: v})
	}
	return records, s.Err()
}

// contiguous reports whether equal keys sit next to each other.
func contiguous(records []record) bool {
	seen := make(map[string]bool)
	for i, r := range records {
		if i > 0 && records[i-1].key == r.key {
			continue
		}
		if seen[r.key] {
			return false
		}
		seen[r.key] = true
	}
	return true
}

func checkKey(key string) error {
	if key == "" {
		return fmt.Errorf("map emitted an empty key")
	}
	if strings.IndexFunc(key, unicode.IsSpace) >= 0 {
		return fmt.Errorf("map emitted key %q containing whitespace", key)
	}
	return nil
}

func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, s)
}

func writeLinesAtomic(path string, lines []string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	for _, line := range lines {
		bw.WriteString(line)
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
