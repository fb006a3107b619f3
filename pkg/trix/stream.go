package trix

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Stream is a seekable byte source. Local files satisfy it directly; remote
// or cached sources can be plugged in through an Opener.
type Stream interface {
	io.Reader
	io.Seeker
	io.Closer
}

// Opener opens the files that make up an index.
type Opener interface {
	Open(path string) (Stream, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(path string) (Stream, error)

func (f OpenerFunc) Open(path string) (Stream, error) { return f(path) }

// FileOpener opens paths on the local filesystem.
var FileOpener Opener = OpenerFunc(func(path string) (Stream, error) {
	return os.Open(path)
})

// lineReader reads newline-terminated lines from a Stream, supporting
// repositioning by absolute byte offset.
type lineReader struct {
	stream Stream
	br     *bufio.Reader
	lines  int64
}

func newLineReader(s Stream) *lineReader {
	return &lineReader{stream: s, br: bufio.NewReaderSize(s, 64*1024)}
}

func (lr *lineReader) seek(offset int64) error {
	if _, err := lr.stream.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seeking to %d: %w", offset, err)
	}
	lr.br.Reset(lr.stream)
	return nil
}

// next returns the next line without its terminator. It reports false at
// end of stream.
func (lr *lineReader) next() (string, bool, error) {
	line, err := lr.br.ReadString('\n')
	if err != nil {
		if err != io.EOF {
			return "", false, err
		}
		if line == "" {
			return "", false, nil
		}
	}
	lr.lines++
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, true, nil
}

func (lr *lineReader) close() error {
	return lr.stream.Close()
}

// splitFirstField splits off the first whitespace-delimited field of line.
func splitFirstField(line string) (field, rest string) {
	line = strings.TrimLeft(line, " \t")
	i := strings.IndexAny(line, " \t")
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimLeft(line[i:], " \t")
}
