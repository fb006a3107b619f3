package ixbuild

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/trix/pkg/trix"
)

// atomicFile buffers writes into a temp file that replaces the target on
// commit.
type atomicFile struct {
	path    string
	tmpPath string
	f       *os.File
	w       *bufio.Writer
	offset  int64
}

func createAtomic(path string) (*atomicFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating directory for %s: %w", path, err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	return &atomicFile{path: path, tmpPath: tmpPath, f: f, w: bufio.NewWriterSize(f, 64*1024)}, nil
}

func (a *atomicFile) writeLine(line string) error {
	n, err := a.w.WriteString(line)
	if err == nil {
		err = a.w.WriteByte('\n')
		n++
	}
	a.offset += int64(n)
	if err != nil {
		return fmt.Errorf("writing %s: %w", a.path, err)
	}
	return nil
}

func (a *atomicFile) commit() error {
	if err := a.w.Flush(); err != nil {
		a.abort()
		return fmt.Errorf("flushing %s: %w", a.path, err)
	}
	if err := a.f.Sync(); err != nil {
		a.abort()
		return fmt.Errorf("syncing %s: %w", a.path, err)
	}
	if err := a.f.Close(); err != nil {
		os.Remove(a.tmpPath)
		return fmt.Errorf("closing %s: %w", a.path, err)
	}
	if err := os.Rename(a.tmpPath, a.path); err != nil {
		return fmt.Errorf("renaming %s: %w", a.path, err)
	}
	return nil
}

func (a *atomicFile) abort() {
	a.f.Close()
	os.Remove(a.tmpPath)
}

// sparseWriter decides where block entries of an .ixx file go. An entry is
// only placed on a line whose folded prefix is above every earlier line's,
// so a lookup never lands past a line it should have scanned.
type sparseWriter struct {
	width     int
	binSize   int64
	lastEntry int64
	maxPrefix string
	lines     []string
}

func newSparseWriter(width int, binSize int64) *sparseWriter {
	return &sparseWriter{width: width, binSize: binSize, lastEntry: -1}
}

// observe is called with the key and starting offset of every line of the
// indexed file, in file order.
func (s *sparseWriter) observe(key string, offset int64) {
	prefix := trix.PaddedPrefix(key, s.width)
	due := s.lastEntry < 0 || offset-s.lastEntry >= s.binSize
	if due && (s.lastEntry < 0 || prefix > s.maxPrefix) {
		s.lines = append(s.lines, trix.FormatSparseLine(prefix, s.width, offset))
		s.lastEntry = offset
	}
	if prefix > s.maxPrefix {
		s.maxPrefix = prefix
	}
}

func (s *sparseWriter) writeTo(path string) (int, error) {
	f, err := createAtomic(path)
	if err != nil {
		return 0, err
	}
	for _, line := range s.lines {
		if err := f.writeLine(line); err != nil {
			f.abort()
			return 0, err
		}
	}
	return len(s.lines), f.commit()
}
