// Package shuffle turns the map outputs of a job into sorted, hash-partitioned
// buckets and merges reduce outputs into the final artifact.
package shuffle

import (
	"bufio"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const mergedName = "complete.txt"

// ihash(key) % r picks the bucket of key
func ihash(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() & 0x7fffffff)
}

// Partition returns the bucket of key among r buckets.
func Partition(key string, r int) int {
	return ihash(key) % r
}

// Key returns the key token of an intermediate record line.
func Key(line string) string {
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		return line[:i]
	}
	return strings.TrimRight(line, "\r\n")
}

func BucketDir(dir string, r int) string {
	return filepath.Join(dir, fmt.Sprintf("bucket-%d", r))
}

func BucketFile(dir string, r int) string {
	return filepath.Join(BucketDir(dir, r), fmt.Sprintf("reduce-%05d.txt", r))
}

// Shuffle merges inputs into dir/complete.txt, sorts every line, and appends
// each sorted line to the bucket chosen by Partition. Bucket files are
// rewritten from scratch, so a failed shuffle can simply run again.
func Shuffle(inputs []string, dir string, r int) error {
	if r <= 0 {
		return fmt.Errorf("shuffle: invalid bucket count %d", r)
	}
	for i := 0; i < r; i++ {
		if err := os.MkdirAll(BucketDir(dir, i), 0o755); err != nil {
			return err
		}
	}

	merged := filepath.Join(dir, mergedName)
	if err := Merge(inputs, merged); err != nil {
		return err
	}

	lines, err := readLines(merged)
	if err != nil {
		return err
	}
	sort.Strings(lines)
	if err := writeLines(merged, lines); err != nil {
		return err
	}

	return partition(lines, dir, r)
}

func partition(sorted []string, dir string, r int) error {
	files := make([]*os.File, r)
	writers := make([]*bufio.Writer, r)
	defer func() {
		for _, f := range files {
			if f != nil {
				f.Close()
			}
		}
	}()
	for i := range files {
		f, err := os.Create(BucketFile(dir, i))
		if err != nil {
			return err
		}
		files[i] = f
		writers[i] = bufio.NewWriter(f)
	}

	for _, line := range sorted {
		b := Partition(Key(line), r)
		writers[b].WriteString(line)
		writers[b].WriteByte('\n')
	}

	for i, w := range writers {
		if err := w.Flush(); err != nil {
			return err
		}
		err := files[i].Close()
		files[i] = nil
		if err != nil {
			return err
		}
	}
	return nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 64*1024), 16<<20)
	for s.Scan() {
		if line := s.Text(); strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines, s.Err()
}

func writeLines(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, line := range lines {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
