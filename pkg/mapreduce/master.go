package mapreduce

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/paulniziolek/mrjobs/pkg/mapreduce/job"
	"github.com/paulniziolek/mrjobs/pkg/mapreduce/shuffle"
	"github.com/paulniziolek/mrjobs/pkg/mapreduce/split"
	"github.com/paulniziolek/mrjobs/pkg/mapreduce/task"
)

// jobState is a job plus the claims that keep each phase transition
// single-shot while the slow part runs outside the lock.
type jobState struct {
	*job.Job
	shuffling bool
	merging   bool
}

type Master struct {
	cfg    Config
	layout job.Layout

	// tasklock guards everything below
	tasklock sync.Mutex
	jobs     map[string]*jobState
	order    []*jobState
	reserved map[string]bool
	tasks    *task.Queue

	// workers maps a worker id to the last time it was heard from; served
	// holds the workers that got a task in the current fairness round.
	workers map[string]time.Time
	served  map[string]bool

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func MakeMaster(cfg Config) (*Master, error) {
	if cfg.Root == "" {
		return nil, errors.New("master: empty root directory")
	}
	def := DefaultConfig(cfg.Root)
	if cfg.LinesPerSplit <= 0 {
		cfg.LinesPerSplit = def.LinesPerSplit
	}
	if cfg.DefaultReducers <= 0 {
		cfg.DefaultReducers = def.DefaultReducers
	}
	if cfg.TaskLease <= 0 {
		cfg.TaskLease = def.TaskLease
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = def.ReapInterval
	}
	if cfg.WorkerTTL <= 0 {
		cfg.WorkerTTL = def.WorkerTTL
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	cfg.Root = root

	m := &Master{
		cfg:      cfg,
		layout:   job.Layout{Root: root},
		jobs:     make(map[string]*jobState),
		reserved: make(map[string]bool),
		tasks:    task.NewQueue(),
		workers:  make(map[string]time.Time),
		served:   make(map[string]bool),
		stop:     make(chan struct{}),
	}

	m.wg.Add(1)
	go m.reaper()
	return m, nil
}

// Shutdown stops the lease reaper.
func (m *Master) Shutdown() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
}

func (m *Master) CreateJob(req CreateJobRequest) (CreateJobResponse, error) {
	id := m.reserveID()
	defer m.releaseID(id)
	return m.createJob(id, req)
}

// UploadJob stores user code under the job's directory and creates the job
// with that code.
func (m *Master) UploadJob(code io.Reader, filename string, req CreateJobRequest) (CreateJobResponse, error) {
	id := m.reserveID()
	defer m.releaseID(id)

	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) {
		name = "job"
	}
	dir := m.layout.CodeDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return CreateJobResponse{}, err
	}
	path := filepath.Join(dir, name)
	out, err := os.Create(path)
	if err != nil {
		return CreateJobResponse{}, err
	}
	if _, err := io.Copy(out, code); err != nil {
		out.Close()
		return CreateJobResponse{}, fmt.Errorf("store code for job %s: %w", id, err)
	}
	if err := out.Close(); err != nil {
		return CreateJobResponse{}, err
	}

	req.UserCodePath = path
	return m.createJob(id, req)
}

func (m *Master) reserveID() string {
	m.tasklock.Lock()
	defer m.tasklock.Unlock()
	for {
		id := job.NewID()
		if _, ok := m.jobs[id]; !ok && !m.reserved[id] {
			m.reserved[id] = true
			return id
		}
	}
}

func (m *Master) releaseID(id string) {
	m.tasklock.Lock()
	defer m.tasklock.Unlock()
	delete(m.reserved, id)
}

// createJob splits the dataset outside the lock, then publishes the job and
// all of its map tasks in one critical section.
func (m *Master) createJob(id string, req CreateJobRequest) (CreateJobResponse, error) {
	reducers := req.Reducers
	if reducers == 0 {
		reducers = m.cfg.DefaultReducers
	}
	if reducers < 0 {
		return CreateJobResponse{}, fmt.Errorf("%w: reducers must be positive, got %d", ErrInvalidJob, reducers)
	}
	if req.UserCodePath == "" {
		return CreateJobResponse{}, fmt.Errorf("%w: missing user code path", ErrInvalidJob)
	}
	if _, err := filepath.Match(req.DatasetPath, ""); err != nil {
		return CreateJobResponse{}, fmt.Errorf("%w: dataset pattern %q: %v", ErrInvalidJob, req.DatasetPath, err)
	}
	lines := req.LinesPerSplit
	if lines <= 0 {
		lines = m.cfg.LinesPerSplit
	}

	if err := m.layout.Prepare(id); err != nil {
		return CreateJobResponse{}, err
	}
	splitDir := m.layout.SplitDir(id)
	n, err := split.Split(req.DatasetPath, splitDir, split.Options{
		LinesPerSplit: lines,
		MaxBytes:      int64(req.SplitSizeMb) << 20,
	})
	if err != nil {
		log.Printf("job %s: dataset %q unreadable, creating it without map tasks: %v", id, req.DatasetPath, err)
		n = 0
	}

	j := &job.Job{
		ID:              id,
		Phase:           job.MapPhase,
		Reducers:        reducers,
		Maps:            n,
		CodePath:        req.UserCodePath,
		SplitDir:        splitDir,
		IntermediateDir: m.layout.MapDir(id),
		OutputDir:       m.layout.OutputDir(id),
		CreatedAt:       time.Now(),
	}

	m.tasklock.Lock()
	defer m.tasklock.Unlock()

	js := &jobState{Job: j}
	m.jobs[id] = js
	m.order = append(m.order, js)
	for i := 0; i < n; i++ {
		t := task.NewMap(id, i, task.MapMetadata{
			SplitPath:       filepath.Join(splitDir, split.Name(i)),
			ReduceWorkers:   reducers,
			CodePath:        j.CodePath,
			IntermediateDir: j.IntermediateDir,
		})
		if err := m.tasks.Push(t); err != nil {
			return CreateJobResponse{}, err
		}
	}

	log.Printf("job %s created: %d maps, %d reducers", id, n, reducers)
	return CreateJobResponse{JobID: id, Maps: n, Reducers: reducers}, nil
}

// RegisterWorker records a worker and returns every known worker id.
func (m *Master) RegisterWorker(workerID string) ([]string, error) {
	if workerID == "" {
		return nil, ErrNoWorker
	}
	m.tasklock.Lock()
	defer m.tasklock.Unlock()

	if _, ok := m.workers[workerID]; !ok {
		log.Printf("worker %s registered", workerID)
	}
	m.workers[workerID] = time.Now()

	ids := make([]string, 0, len(m.workers))
	for id := range m.workers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// NextTask hands the first idle map task to workerID. When none is idle it
// fires any pending phase transitions and then hands out the first idle
// reduce task. A nil task means there is nothing to do right now.
func (m *Master) NextTask(workerID string) (*task.Task, error) {
	if workerID == "" {
		return nil, ErrNoWorker
	}

	m.tasklock.Lock()
	m.workers[workerID] = time.Now()
	wait := m.cfg.Fairness && m.mustWait(workerID)
	if !wait {
		if t := m.claim(task.Map, workerID); t != nil {
			m.tasklock.Unlock()
			return t, nil
		}
	}
	shuffles, merges := m.claimTransitions()
	m.tasklock.Unlock()

	for _, js := range shuffles {
		m.startReduce(js)
	}
	for _, js := range merges {
		m.finish(js)
	}
	if wait {
		return nil, nil
	}

	m.tasklock.Lock()
	defer m.tasklock.Unlock()
	return m.claim(task.Reduce, workerID), nil
}

func (m *Master) claim(tt task.TaskType, workerID string) *task.Task {
	t := m.tasks.Claim(tt, workerID, time.Now().Add(m.cfg.TaskLease))
	if t == nil {
		return nil
	}
	m.served[workerID] = true
	log.Printf("assigned task %s to worker %s", t.ID, workerID)
	return t.Clone()
}

// mustWait reports whether workerID already got a task this round while some
// other registered worker is free and has not been served yet. The round
// resets once no such worker is left.
func (m *Master) mustWait(workerID string) bool {
	if !m.served[workerID] {
		return false
	}
	for w := range m.workers {
		if !m.served[w] && !m.tasks.Holding(w) {
			return true
		}
	}
	clear(m.served)
	return false
}

// claimTransitions marks every job that is ready to leave its phase. The
// caller runs the returned shuffles and merges after releasing the lock.
func (m *Master) claimTransitions() (shuffles, merges []*jobState) {
	for _, js := range m.order {
		switch js.Phase {
		case job.MapPhase:
			if !js.shuffling && m.tasks.AllDone(js.ID, task.Map) {
				js.shuffling = true
				shuffles = append(shuffles, js)
			}
		case job.ReducePhase:
			if !js.merging && m.tasks.AllDone(js.ID, task.Reduce) {
				js.merging = true
				merges = append(merges, js)
			}
		}
	}
	return shuffles, merges
}

// outputs returns the recorded outputs of a job's tasks of one type in task
// order, and whether every such task recorded one.
func (m *Master) outputs(jobID string, tt task.TaskType) ([]string, bool) {
	var files []string
	complete := true
	for _, t := range m.tasks.JobTasks(jobID) {
		if t.Type != tt {
			continue
		}
		if t.Output == "" {
			complete = false
			continue
		}
		files = append(files, t.Output)
	}
	return files, complete
}

// startReduce shuffles a job whose maps are all done and enqueues its reduce
// tasks. Only the poller holding the shuffling claim gets here.
func (m *Master) startReduce(js *jobState) {
	m.tasklock.Lock()
	inputs, complete := m.outputs(js.ID, task.Map)
	mapDir := js.IntermediateDir
	m.tasklock.Unlock()

	var err error
	if !complete {
		inputs, err = filepath.Glob(filepath.Join(mapDir, "*.txt"))
	}
	dir := m.layout.ShuffleDir(js.ID)
	if err == nil {
		err = shuffle.Shuffle(inputs, dir, js.Reducers)
	}

	m.tasklock.Lock()
	defer m.tasklock.Unlock()
	js.shuffling = false
	if err != nil {
		log.Printf("job %s: shuffle failed, will retry: %v", js.ID, err)
		return
	}
	if !js.Advance(job.ReducePhase) {
		return
	}
	js.IntermediateDir = dir
	for r := 0; r < js.Reducers; r++ {
		t := task.NewReduce(js.ID, task.ReduceMetadata{
			Bucket:          r,
			IntermediateDir: dir,
			OutputDir:       js.OutputDir,
			CodePath:        js.CodePath,
		})
		if err := m.tasks.Push(t); err != nil {
			log.Printf("job %s: %v", js.ID, err)
		}
	}
	log.Printf("job %s: shuffled %d map outputs into %d buckets, phase %s", js.ID, len(inputs), js.Reducers, js.Phase)
}

// finish merges the reduce outputs of a job into its final artifact. Only
// the caller holding the merging claim gets here.
func (m *Master) finish(js *jobState) {
	m.tasklock.Lock()
	parts, complete := m.outputs(js.ID, task.Reduce)
	outDir := js.OutputDir
	m.tasklock.Unlock()

	var err error
	if !complete {
		parts, err = filepath.Glob(filepath.Join(outDir, "part-*.txt"))
	}
	final := filepath.Join(outDir, job.FinalName)
	if err == nil {
		err = shuffle.Merge(parts, final)
	}

	m.tasklock.Lock()
	defer m.tasklock.Unlock()
	js.merging = false
	if err != nil {
		log.Printf("job %s: final merge failed, will retry: %v", js.ID, err)
		return
	}
	if js.Advance(job.DonePhase) {
		js.FinalOutput = final
		log.Printf("job %s: done, output in %s", js.ID, final)
	}
}

// ReportResult records the outcome of a task. Reports for a done task are
// ignored, so a repeated report never fires a transition twice.
func (m *Master) ReportResult(taskID string, req ReportRequest) error {
	m.tasklock.Lock()
	t := m.tasks.Get(taskID)
	if t == nil {
		m.tasklock.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if req.WorkerID != "" {
		m.workers[req.WorkerID] = time.Now()
	}

	var merge *jobState
	switch {
	case t.Status == task.Done:
		log.Printf("task %s is already done, ignoring report", t.ID)
	case req.OK:
		m.tasks.Complete(t)
		t.Output = req.Output
		log.Printf("task %s complete", t.ID)
		if js := m.jobs[t.JobID]; t.Type == task.Reduce && js.Phase == job.ReducePhase &&
			!js.merging && m.tasks.AllDone(js.ID, task.Reduce) {
			js.merging = true
			merge = js
		}
	case req.WorkerID != "" && t.Worker != req.WorkerID:
		log.Printf("task %s: ignoring failure from %s, lease held by %q", t.ID, req.WorkerID, t.Worker)
	default:
		m.tasks.Release(t)
		log.Printf("task %s failed, rescheduling: %s", t.ID, req.Error)
	}
	m.tasklock.Unlock()

	if merge != nil {
		m.finish(merge)
	}
	return nil
}

func (m *Master) JobStatus(jobID string) (JobStatus, error) {
	m.tasklock.Lock()
	defer m.tasklock.Unlock()

	js, ok := m.jobs[jobID]
	if !ok {
		return JobStatus{}, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	st := JobStatus{
		JobID:       js.ID,
		Status:      js.Phase,
		Maps:        js.Maps,
		MapsDone:    m.tasks.Count(js.ID, task.Map, task.Done),
		ReducesDone: m.tasks.Count(js.ID, task.Reduce, task.Done),
		OutputDir:   js.OutputDir,
		FinalOutput: js.FinalOutput,
		CreatedAt:   js.CreatedAt,
	}
	st.MapsPending = st.Maps - st.MapsDone
	if js.Phase != job.MapPhase {
		st.Reduces = js.Reducers
	}
	return st, nil
}

// ResultPath returns the final artifact of a finished job.
func (m *Master) ResultPath(jobID string) (string, error) {
	m.tasklock.Lock()
	defer m.tasklock.Unlock()

	js, ok := m.jobs[jobID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	if js.Phase != job.DonePhase {
		return "", fmt.Errorf("%w: job %s is in phase %s", ErrNotReady, jobID, js.Phase)
	}
	return js.FinalOutput, nil
}

func (m *Master) reaper() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.reap(now)
		}
	}
}

// reap returns expired leases to idle and forgets silent workers.
func (m *Master) reap(now time.Time) {
	m.tasklock.Lock()
	defer m.tasklock.Unlock()

	for _, t := range m.tasks.Expire(now) {
		log.Printf("task %s: lease expired, rescheduling", t.ID)
	}
	for w, seen := range m.workers {
		if now.Sub(seen) > m.cfg.WorkerTTL {
			delete(m.workers, w)
			delete(m.served, w)
			log.Printf("worker %s timed out", w)
		}
	}
}
