package document

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
)

// File is a document backed by a file on disk. Reload swaps in a fresh
// snapshot atomically; a scan already running keeps reading whichever
// snapshot each call observes.
type File struct {
	path  string
	lines atomic.Pointer[Lines]
}

func OpenFile(path string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	f := &File{path: abs}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) Reload() error {
	fh, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.path, err)
	}
	defer fh.Close()
	lines, err := Read(fh)
	if err != nil {
		return fmt.Errorf("%s: %w", f.path, err)
	}
	f.lines.Store(&lines)
	return nil
}

func (f *File) Path() string  { return f.path }
func (f *File) ID() string    { return f.path }
func (f *File) Title() string { return filepath.Base(f.path) }

func (f *File) Snapshot() Lines {
	return *f.lines.Load()
}

func (f *File) LineCount() int {
	return f.Snapshot().LineCount()
}

func (f *File) LineText(index int) string {
	return f.Snapshot().LineText(index)
}
