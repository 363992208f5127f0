package job

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAdvanceForwardOnly(t *testing.T) {
	j := &Job{Phase: MapPhase}

	if j.Advance(DonePhase) {
		t.Fatalf("MAP -> DONE should be refused")
	}
	if !j.Advance(ReducePhase) {
		t.Fatalf("MAP -> REDUCE refused")
	}
	if j.Advance(ReducePhase) {
		t.Fatalf("REDUCE -> REDUCE should fire only once")
	}
	if j.Advance(MapPhase) {
		t.Fatalf("REDUCE -> MAP should be refused")
	}
	if !j.Advance(DonePhase) {
		t.Fatalf("REDUCE -> DONE refused")
	}
	if j.Advance(DonePhase) || j.Phase != DonePhase {
		t.Fatalf("DONE must be terminal, phase is %s", j.Phase)
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		if len(id) != 8 {
			t.Fatalf("id %q has length %d", id, len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestLayoutPrepare(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	if err := l.Prepare("abc"); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	for _, dir := range []string{l.MapDir("abc"), l.OutputDir("abc")} {
		st, err := os.Stat(dir)
		if err != nil || !st.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
	if got, want := l.ShuffleDir("abc"), filepath.Join(l.Root, "intermediate_reduce", "job-abc"); got != want {
		t.Fatalf("ShuffleDir = %s; expected %s", got, want)
	}
	if got := MapperName("w1", "map-j-3", 12); got != "mapper-w1-map-j-3-12.txt" {
		t.Fatalf("MapperName = %s", got)
	}
}
