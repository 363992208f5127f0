package task

import (
	"container/heap"
	"fmt"
	"time"
)

// Queue is the ordered task collection of a master. Idle tasks of each type
// are handed out in insertion order, including tasks that went back to idle
// after a failure or an expired lease.
//
// Queue is not safe for concurrent use; the owner serializes access.
type Queue struct {
	tasks      []*Task
	byID       map[string]*Task
	byJob      map[string][]*Task
	idle       map[TaskType]*idleHeap
	inProgress map[string]*Task
}

func NewQueue() *Queue {
	return &Queue{
		byID:       make(map[string]*Task),
		byJob:      make(map[string][]*Task),
		idle:       map[TaskType]*idleHeap{Map: {}, Reduce: {}},
		inProgress: make(map[string]*Task),
	}
}

// Push appends an idle task.
func (q *Queue) Push(t *Task) error {
	if _, ok := q.byID[t.ID]; ok {
		return fmt.Errorf("task %s already queued", t.ID)
	}
	h, ok := q.idle[t.Type]
	if !ok {
		return fmt.Errorf("task %s has unknown type %q", t.ID, t.Type)
	}

	t.seq = len(q.tasks)
	t.Status = Idle
	t.Worker = ""
	q.tasks = append(q.tasks, t)
	q.byID[t.ID] = t
	q.byJob[t.JobID] = append(q.byJob[t.JobID], t)
	heap.Push(h, t)
	return nil
}

func (q *Queue) Get(id string) *Task {
	return q.byID[id]
}

func (q *Queue) Len() int {
	return len(q.tasks)
}

// Claim leases the earliest idle task of the given type to worker.
// It returns nil when no such task is idle.
func (q *Queue) Claim(tt TaskType, worker string, deadline time.Time) *Task {
	h := q.idle[tt]
	if h == nil || h.Len() == 0 {
		return nil
	}
	t := heap.Pop(h).(*Task)
	t.Status = InProgress
	t.Worker = worker
	t.LeaseDeadline = &deadline
	q.inProgress[t.ID] = t
	return t
}

// Complete marks t done. Done is terminal.
func (q *Queue) Complete(t *Task) {
	switch t.Status {
	case Done:
		return
	case Idle:
		heap.Remove(q.idle[t.Type], t.heapIndex)
	case InProgress:
		delete(q.inProgress, t.ID)
	}
	t.Status = Done
	t.Worker = ""
	t.LeaseDeadline = nil
}

// Release returns an in-progress task to idle.
func (q *Queue) Release(t *Task) {
	if t.Status != InProgress {
		return
	}
	delete(q.inProgress, t.ID)
	t.Status = Idle
	t.Worker = ""
	t.LeaseDeadline = nil
	heap.Push(q.idle[t.Type], t)
}

// Expire releases every in-progress task whose lease ended before now.
func (q *Queue) Expire(now time.Time) []*Task {
	var expired []*Task
	for _, t := range q.inProgress {
		if t.LeaseDeadline != nil && now.After(*t.LeaseDeadline) {
			expired = append(expired, t)
		}
	}
	for _, t := range expired {
		q.Release(t)
	}
	return expired
}

// Holding reports whether worker currently leases any task.
func (q *Queue) Holding(worker string) bool {
	for _, t := range q.inProgress {
		if t.Worker == worker {
			return true
		}
	}
	return false
}

// JobTasks returns the tasks of a job in insertion order.
func (q *Queue) JobTasks(jobID string) []*Task {
	return q.byJob[jobID]
}

// Count returns how many tasks of a job have the given type and status.
func (q *Queue) Count(jobID string, tt TaskType, status TaskStatus) int {
	n := 0
	for _, t := range q.byJob[jobID] {
		if t.Type == tt && t.Status == status {
			n++
		}
	}
	return n
}

// AllDone reports whether every task of the given type in a job is done.
// A job without tasks of that type is trivially done.
func (q *Queue) AllDone(jobID string, tt TaskType) bool {
	for _, t := range q.byJob[jobID] {
		if t.Type == tt && t.Status != Done {
			return false
		}
	}
	return true
}

// idleHeap orders idle tasks by insertion sequence.
type idleHeap []*Task

func (h idleHeap) Len() int           { return len(h) }
func (h idleHeap) Less(i, j int) bool { return h[i].seq < h[j].seq }
func (h idleHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *idleHeap) Push(x any) {
	t := x.(*Task)
	t.heapIndex = len(*h)
	*h = append(*h, t)
}

func (h *idleHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIndex = -1
	*h = old[:n-1]
	return t
}
