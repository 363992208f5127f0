package task

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func newMaps(t *testing.T, q *Queue, jobID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := q.Push(NewMap(jobID, i, MapMetadata{ReduceWorkers: 1})); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
}

func TestClaimInsertionOrder(t *testing.T) {
	q := NewQueue()
	newMaps(t, q, "j1", 3)
	deadline := time.Now().Add(time.Minute)

	for i := 0; i < 3; i++ {
		got := q.Claim(Map, "w1", deadline)
		if got == nil || got.ID != MapID("j1", i) {
			t.Fatalf("claim %d: got %v; expected %s", i, got, MapID("j1", i))
		}
		if got.Status != InProgress || got.Worker != "w1" {
			t.Fatalf("claimed task has status %q worker %q", got.Status, got.Worker)
		}
	}
	if got := q.Claim(Map, "w1", deadline); got != nil {
		t.Fatalf("expected no idle map task, got %s", got.ID)
	}
	if got := q.Claim(Reduce, "w1", deadline); got != nil {
		t.Fatalf("expected no idle reduce task, got %s", got.ID)
	}
}

func TestReleaseKeepsPosition(t *testing.T) {
	q := NewQueue()
	newMaps(t, q, "j1", 3)
	deadline := time.Now().Add(time.Minute)

	first := q.Claim(Map, "w1", deadline)
	second := q.Claim(Map, "w2", deadline)
	q.Release(first)

	if got := q.Claim(Map, "w3", deadline); got != first {
		t.Fatalf("expected released %s to be handed out first, got %s", first.ID, got.ID)
	}
	if second.Worker != "w2" {
		t.Fatalf("unexpected worker %q on %s", second.Worker, second.ID)
	}
	if first.Worker != "w3" {
		t.Fatalf("expected w3 to hold %s, got %q", first.ID, first.Worker)
	}
}

func TestCompleteIsTerminal(t *testing.T) {
	q := NewQueue()
	newMaps(t, q, "j1", 2)

	idle := q.Get(MapID("j1", 1))
	q.Complete(idle)
	if idle.Status != Done {
		t.Fatalf("expected done, got %q", idle.Status)
	}
	q.Release(idle)
	if idle.Status != Done {
		t.Fatalf("release regressed a done task to %q", idle.Status)
	}

	got := q.Claim(Map, "w1", time.Now())
	if got == nil || got.ID != MapID("j1", 0) {
		t.Fatalf("expected %s, got %v", MapID("j1", 0), got)
	}
	if q.Claim(Map, "w1", time.Now()) != nil {
		t.Fatalf("completed idle task was handed out")
	}
	q.Complete(got)

	if !q.AllDone("j1", Map) {
		t.Fatalf("expected all maps done")
	}
	if q.Count("j1", Map, Done) != 2 {
		t.Fatalf("expected 2 done maps, got %d", q.Count("j1", Map, Done))
	}
}

func TestExpire(t *testing.T) {
	q := NewQueue()
	newMaps(t, q, "j1", 2)
	now := time.Now()

	short := q.Claim(Map, "w1", now.Add(time.Second))
	long := q.Claim(Map, "w2", now.Add(time.Hour))

	expired := q.Expire(now.Add(time.Minute))
	if len(expired) != 1 || expired[0] != short {
		t.Fatalf("expected only %s to expire, got %v", short.ID, expired)
	}
	if short.Status != Idle || short.Worker != "" {
		t.Fatalf("expired task has status %q worker %q", short.Status, short.Worker)
	}
	if long.Status != InProgress {
		t.Fatalf("unexpired task has status %q", long.Status)
	}
	if q.Holding("w1") || !q.Holding("w2") {
		t.Fatalf("unexpected lease holders after expiry")
	}
}

func TestPushRejectsDuplicates(t *testing.T) {
	q := NewQueue()
	newMaps(t, q, "j1", 1)
	if err := q.Push(NewMap("j1", 0, MapMetadata{})); err == nil {
		t.Fatalf("expected duplicate push to fail")
	}
	if err := q.Push(&Task{ID: "x", Type: UnknownType}); err == nil {
		t.Fatalf("expected unknown type to fail")
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 task, got %d", q.Len())
	}
}

func TestAllDoneWithoutTasks(t *testing.T) {
	q := NewQueue()
	if !q.AllDone("missing", Reduce) {
		t.Fatalf("a job without tasks should be trivially done")
	}
}

func TestLeaseDeadlineOnlyWhileClaimed(t *testing.T) {
	q := NewQueue()
	newMaps(t, q, "j1", 1)
	encode := func(tk *Task) string {
		b, err := json.Marshal(tk)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		return string(b)
	}

	if s := encode(q.Get(MapID("j1", 0))); strings.Contains(s, "leaseDeadline") {
		t.Fatalf("idle task carries a lease: %s", s)
	}
	tk := q.Claim(Map, "w1", time.Now().Add(time.Minute))
	if s := encode(tk); !strings.Contains(s, "leaseDeadline") {
		t.Fatalf("claimed task has no lease: %s", s)
	}
	q.Complete(tk)
	if s := encode(tk); strings.Contains(s, "leaseDeadline") {
		t.Fatalf("done task carries a lease: %s", s)
	}
}
