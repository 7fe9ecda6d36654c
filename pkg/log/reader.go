package log

import (
	"encoding/binary"
	"io"
	"os"

	"heapstore/pkg/primitives"

	"github.com/pkg/errors"
)

// Reader iterates the records of a log file in LSN order.
type Reader struct {
	file   *os.File
	offset int64
}

func NewReader(path primitives.Filepath) (*Reader, error) {
	file, err := os.Open(path.String())
	if err != nil {
		return nil, errors.Wrapf(err, "open log %s", path)
	}
	return &Reader{file: file}, nil
}

// ReadNext returns the next record, or io.EOF once the log is exhausted.
// A truncated or corrupt record is a storage-invalid error.
func (r *Reader) ReadNext() (*LogRecord, error) {
	var sizeBuf [SizeFieldSize]byte
	n, err := r.file.ReadAt(sizeBuf[:], r.offset)
	if n == 0 && err == io.EOF {
		return nil, io.EOF
	}
	if n < SizeFieldSize {
		if err == io.EOF {
			return nil, r.corrupt("truncated size field")
		}
		return nil, errors.Wrapf(err, "read log record size at %d", r.offset)
	}

	size := binary.BigEndian.Uint32(sizeBuf[:])
	if size < MinRecordSize || size > MaxRecordSize {
		return nil, r.corrupt("implausible record size %d", size)
	}

	data := make([]byte, size)
	n, err = r.file.ReadAt(data, r.offset)
	if n < int(size) {
		if err == io.EOF {
			return nil, r.corrupt("truncated record of %d bytes, have %d", size, n)
		}
		return nil, errors.Wrapf(err, "read log record at %d", r.offset)
	}

	rec, err := DeserializeLogRecord(data)
	if err != nil {
		return nil, err
	}
	if rec.LSN != primitives.LSN(r.offset) {
		return nil, r.corrupt("record claims LSN %d", rec.LSN)
	}
	r.offset += int64(size)
	return rec, nil
}

// ReadAll reads every remaining record.
func (r *Reader) ReadAll() ([]*LogRecord, error) {
	var records []*LogRecord
	for {
		rec, err := r.ReadNext()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}

func (r *Reader) Reset() {
	r.offset = 0
}

func (r *Reader) Close() error {
	return r.file.Close()
}

func (r *Reader) corrupt(format string, args ...any) error {
	return corrupt(format+" at offset %d", append(args, r.offset)...)
}
