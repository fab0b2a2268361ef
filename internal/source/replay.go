package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/yuyu-tech02/Blink-counter/pkg/types"
)

const maxRecordSize = 64 * 1024

// Replay plays back a JSON-lines score trace, one record per line.
type Replay struct {
	path   string
	reader io.Reader

	file    *os.File
	scanner *bufio.Scanner
	line    int
	seq     uint64
}

// NewReplay creates a replay of the trace file at path. The file is opened
// by Open.
func NewReplay(path string) *Replay {
	return &Replay{path: path}
}

// NewReplayReader creates a replay reading records from r.
func NewReplayReader(r io.Reader) *Replay {
	return &Replay{reader: r}
}

// Open opens the trace. A missing or unreadable file is reported here.
func (r *Replay) Open(ctx context.Context) error {
	src := r.reader
	if r.path != "" {
		f, err := os.Open(r.path)
		if err != nil {
			return fmt.Errorf("open trace: %w", err)
		}
		r.file = f
		src = f
	}
	if src == nil {
		return fmt.Errorf("open trace: no trace configured")
	}

	r.scanner = bufio.NewScanner(src)
	r.scanner.Buffer(make([]byte, 0, 4096), maxRecordSize)
	r.line = 0
	r.seq = 0
	return nil
}

// Next returns the next record. Blank lines are skipped; a malformed line is
// a transient error and the replay moves past it.
func (r *Replay) Next(ctx context.Context) (*types.Frame, error) {
	if r.scanner == nil {
		return nil, fmt.Errorf("replay not open: %w", ErrSourceLost)
	}

	for r.scanner.Scan() {
		r.line++
		data := bytes.TrimSpace(r.scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		frame, err := DecodeRecord(data)
		if err != nil {
			return nil, fmt.Errorf("trace line %d: %w", r.line, err)
		}
		r.seq++
		frame.Sequence = r.seq
		return &frame, nil
	}

	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trace after line %d: %v: %w", r.line, err, ErrSourceFailed)
	}
	return nil, fmt.Errorf("end of trace after %d lines: %w", r.line, ErrSourceLost)
}

// Close releases the trace file.
func (r *Replay) Close() error {
	r.scanner = nil
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}
