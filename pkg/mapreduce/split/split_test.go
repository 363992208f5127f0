package split

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeLines(t *testing.T, path string, lines []string, trailingNewline bool) {
	t.Helper()
	content := strings.Join(lines, "\n")
	if trailingNewline {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readSplit(t *testing.T, dir string, i int) []string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, Name(i)))
	if err != nil {
		t.Fatalf("read split %d: %v", i, err)
	}
	return strings.SplitAfter(string(b), "\n")[:strings.Count(string(b), "\n")]
}

func TestSplitSizes(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "splits")

	var lines []string
	for i := 0; i < 45; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	writeLines(t, filepath.Join(in, "data.txt"), lines, true)

	n, err := Split(filepath.Join(in, "*.txt"), out, Options{LinesPerSplit: 20})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 splits, got %d", n)
	}
	for i, want := range []int{20, 20, 5} {
		if got := len(readSplit(t, out, i)); got != want {
			t.Fatalf("split %d has %d lines; expected %d", i, got, want)
		}
	}
	if _, err := os.Stat(filepath.Join(out, Name(3))); !os.IsNotExist(err) {
		t.Fatalf("unexpected fourth split")
	}
}

func TestSplitPreservesOrderAcrossFiles(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()

	writeLines(t, filepath.Join(in, "a.txt"), []string{"a1", "a2", "a3"}, false)
	writeLines(t, filepath.Join(in, "b.txt"), []string{"b1", "b2"}, true)
	if err := os.Mkdir(filepath.Join(in, "dir.txt"), 0o755); err != nil {
		t.Fatal(err)
	}

	n, err := Split(filepath.Join(in, "*.txt"), out, Options{LinesPerSplit: 2})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 splits, got %d", n)
	}

	var got []string
	for i := 0; i < n; i++ {
		got = append(got, readSplit(t, out, i)...)
	}
	want := []string{"a1\n", "a2\n", "a3\n", "b1\n", "b2\n"}
	if strings.Join(got, "") != strings.Join(want, "") {
		t.Fatalf("split contents %q; expected %q", got, want)
	}
}

func TestSplitNoMatch(t *testing.T) {
	out := t.TempDir()
	n, err := Split(filepath.Join(t.TempDir(), "missing-*"), out, Options{})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 splits, got %d", n)
	}
}

func TestSplitBadPattern(t *testing.T) {
	if _, err := Split("[", t.TempDir(), Options{}); err == nil {
		t.Fatalf("expected malformed pattern to fail")
	}
}

func TestSplitMaxBytes(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	writeLines(t, filepath.Join(in, "d"), []string{"0123456789", "0123456789", "0123456789"}, true)

	n, err := Split(filepath.Join(in, "d"), out, Options{LinesPerSplit: 100, MaxBytes: 15})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected byte cap to close splits early, got %d splits", n)
	}
}
