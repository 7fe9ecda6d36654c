package log

import (
	"io"

	"heapstore/pkg/primitives"

	"github.com/pkg/errors"
)

// LogWriter buffers serialized records in memory and writes them at their
// LSN offset. A record larger than the buffer bypasses it.
type LogWriter struct {
	writer       io.WriterAt
	currentLSN   primitives.LSN // next LSN to assign
	flushedLSN   primitives.LSN // everything below this is written out
	buffer       []byte
	bufferOffset int
}

func NewLogWriter(writer io.WriterAt, bufferSize int, start primitives.LSN) *LogWriter {
	return &LogWriter{
		writer:     writer,
		buffer:     make([]byte, bufferSize),
		currentLSN: start,
		flushedLSN: start,
	}
}

// Write appends data and returns the LSN it was assigned.
func (w *LogWriter) Write(data []byte) (primitives.LSN, error) {
	assigned := w.currentLSN

	if len(data) > len(w.buffer) {
		if err := w.Flush(); err != nil {
			return 0, err
		}
		if _, err := w.writer.WriteAt(data, int64(w.flushedLSN)); err != nil {
			return 0, errors.Wrapf(err, "write log record at %d", w.flushedLSN)
		}
		w.flushedLSN += primitives.LSN(len(data))
		w.currentLSN = w.flushedLSN
		return assigned, nil
	}

	if w.bufferOffset+len(data) > len(w.buffer) {
		if err := w.Flush(); err != nil {
			return 0, err
		}
	}
	copy(w.buffer[w.bufferOffset:], data)
	w.bufferOffset += len(data)
	w.currentLSN += primitives.LSN(len(data))
	return assigned, nil
}

// Flush writes out whatever is buffered.
func (w *LogWriter) Flush() error {
	if w.bufferOffset == 0 {
		return nil
	}
	if _, err := w.writer.WriteAt(w.buffer[:w.bufferOffset], int64(w.flushedLSN)); err != nil {
		return errors.Wrapf(err, "flush %d log bytes at %d", w.bufferOffset, w.flushedLSN)
	}
	w.flushedLSN = w.currentLSN
	w.bufferOffset = 0
	return nil
}

func (w *LogWriter) CurrentLSN() primitives.LSN {
	return w.currentLSN
}

// FlushedLSN returns the LSN up to which records have reached the
// underlying writer.
func (w *LogWriter) FlushedLSN() primitives.LSN {
	return w.flushedLSN
}

// Buffered returns the number of bytes not yet written out.
func (w *LogWriter) Buffered() int {
	return w.bufferOffset
}
