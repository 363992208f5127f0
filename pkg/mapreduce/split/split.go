// Package split cuts a dataset into line-aligned chunks, one per map task.
package split

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	DefaultLinesPerSplit = 20
	DefaultMaxBytes      = 64 << 20
)

// Name is the file name of the i-th split.
func Name(i int) string {
	return fmt.Sprintf("split-%05d", i)
}

type Options struct {
	LinesPerSplit int
	// MaxBytes closes a split early once it holds this many bytes.
	MaxBytes int64
}

// Split writes the lines of every file matching pattern into dir as
// split-NNNNN files and returns how many were written. Line order is kept
// within and across files. A pattern that matches nothing yields zero splits.
func Split(pattern, dir string, opts Options) (int, error) {
	if opts.LinesPerSplit <= 0 {
		opts.LinesPerSplit = DefaultLinesPerSplit
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}

	files, err := filepath.Glob(pattern)
	if err != nil {
		return 0, fmt.Errorf("split %q: %w", pattern, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	w := &writer{dir: dir, opts: opts}
	for _, path := range files {
		st, err := os.Stat(path)
		if err != nil {
			return 0, err
		}
		if st.IsDir() {
			continue
		}
		if err := w.copyLines(path); err != nil {
			return 0, err
		}
	}
	if err := w.flush(); err != nil {
		return 0, err
	}
	return w.count, nil
}

type writer struct {
	dir   string
	opts  Options
	buf   []string
	size  int64
	count int
}

func (w *writer) copyLines(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			if line[len(line)-1] != '\n' {
				line += "\n"
			}
			w.buf = append(w.buf, line)
			w.size += int64(len(line))
			if len(w.buf) >= w.opts.LinesPerSplit || w.size >= w.opts.MaxBytes {
				if ferr := w.flush(); ferr != nil {
					return ferr
				}
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
	}
}

func (w *writer) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	out, err := os.Create(filepath.Join(w.dir, Name(w.count)))
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(out)
	for _, line := range w.buf {
		bw.WriteString(line)
	}
	if err := bw.Flush(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	w.buf = w.buf[:0]
	w.size = 0
	w.count++
	return nil
}
