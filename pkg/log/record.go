package log

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"heapstore/pkg/concurrency/transaction"
	"heapstore/pkg/dberror"
	"heapstore/pkg/primitives"

	"github.com/cespare/xxhash/v2"
)

// RecordType identifies what a log record describes.
type RecordType uint8

const (
	UpdateRecord RecordType = iota + 1 // before and after image of one page
	CommitRecord
	AbortRecord
)

func (t RecordType) String() string {
	switch t {
	case UpdateRecord:
		return "UPDATE"
	case CommitRecord:
		return "COMMIT"
	case AbortRecord:
		return "ABORT"
	default:
		return fmt.Sprintf("RecordType(%d)", uint8(t))
	}
}

// Sizes of the fixed parts of a serialized record.
const (
	SizeFieldSize = 4
	TypeSize      = 1
	LSNSize       = 8
	TIDSize       = 8
	TableIDSize   = 8
	PageNoSize    = 8
	ImageLenSize  = 4
	ChecksumSize  = 8
	MinRecordSize = SizeFieldSize + TypeSize + LSNSize + TIDSize + TableIDSize + PageNoSize + 2*ImageLenSize + ChecksumSize
	MaxRecordSize = 16 * 1024 * 1024
	checksumStart = SizeFieldSize
)

// LogRecord is a single entry of the log. LSN is the byte offset of the
// record in the log file.
type LogRecord struct {
	LSN         primitives.LSN
	Type        RecordType
	TID         transaction.TransactionID
	PageID      primitives.PageID // zero for commit and abort records
	BeforeImage []byte
	AfterImage  []byte
}

func (r *LogRecord) String() string {
	if r.Type == UpdateRecord {
		return fmt.Sprintf("LSN %d %s %s %s before=%dB after=%dB",
			r.LSN, r.Type, r.TID, r.PageID, len(r.BeforeImage), len(r.AfterImage))
	}
	return fmt.Sprintf("LSN %d %s %s", r.LSN, r.Type, r.TID)
}

// SerializeLogRecord encodes r as
//
//	[size u32][type u8][lsn u64][tid i64][tableID u64][pageNo u64]
//	[beforeLen u32][before][afterLen u32][after][checksum u64]
//
// in big-endian order. size counts the whole record, checksum is xxhash64 of
// the bytes between the two.
func SerializeLogRecord(r *LogRecord) []byte {
	size := MinRecordSize + len(r.BeforeImage) + len(r.AfterImage)

	var buf bytes.Buffer
	buf.Grow(size)

	_ = binary.Write(&buf, binary.BigEndian, uint32(size))
	buf.WriteByte(byte(r.Type))
	_ = binary.Write(&buf, binary.BigEndian, uint64(r.LSN))
	_ = binary.Write(&buf, binary.BigEndian, r.TID.ID())
	_ = binary.Write(&buf, binary.BigEndian, uint64(r.PageID.TableID))
	_ = binary.Write(&buf, binary.BigEndian, uint64(r.PageID.PageNo))
	writeImage(&buf, r.BeforeImage)
	writeImage(&buf, r.AfterImage)

	sum := xxhash.Sum64(buf.Bytes()[checksumStart:])
	_ = binary.Write(&buf, binary.BigEndian, sum)
	return buf.Bytes()
}

func writeImage(buf *bytes.Buffer, image []byte) {
	_ = binary.Write(buf, binary.BigEndian, uint32(len(image)))
	buf.Write(image)
}

// DeserializeLogRecord decodes one complete record, size prefix included.
// Any structural problem or checksum mismatch is a storage-invalid error.
func DeserializeLogRecord(data []byte) (*LogRecord, error) {
	if len(data) < MinRecordSize {
		return nil, corrupt("record of %d bytes is shorter than the %d byte minimum", len(data), MinRecordSize)
	}

	size := binary.BigEndian.Uint32(data)
	if int(size) != len(data) {
		return nil, corrupt("size field says %d bytes, have %d", size, len(data))
	}

	body := data[:len(data)-ChecksumSize]
	want := binary.BigEndian.Uint64(data[len(data)-ChecksumSize:])
	if got := xxhash.Sum64(body[checksumStart:]); got != want {
		return nil, corrupt("checksum mismatch: stored %016x, computed %016x", want, got)
	}

	r := &LogRecord{}
	off := SizeFieldSize

	r.Type = RecordType(data[off])
	off += TypeSize
	if r.Type < UpdateRecord || r.Type > AbortRecord {
		return nil, corrupt("unknown record type %d", r.Type)
	}

	r.LSN = primitives.LSN(binary.BigEndian.Uint64(data[off:]))
	off += LSNSize
	r.TID = transaction.NewTransactionIDFromValue(int64(binary.BigEndian.Uint64(data[off:])))
	off += TIDSize
	r.PageID.TableID = primitives.TableID(binary.BigEndian.Uint64(data[off:]))
	off += TableIDSize
	r.PageID.PageNo = primitives.PageNumber(binary.BigEndian.Uint64(data[off:]))
	off += PageNoSize

	var err error
	if r.BeforeImage, off, err = readImage(body, off); err != nil {
		return nil, err
	}
	if r.AfterImage, off, err = readImage(body, off); err != nil {
		return nil, err
	}
	if off != len(body) {
		return nil, corrupt("%d trailing bytes after images", len(body)-off)
	}
	return r, nil
}

func readImage(body []byte, off int) ([]byte, int, error) {
	if off+ImageLenSize > len(body) {
		return nil, off, corrupt("image length at offset %d past end of record", off)
	}
	n := int(binary.BigEndian.Uint32(body[off:]))
	off += ImageLenSize
	if off+n > len(body) {
		return nil, off, corrupt("image of %d bytes at offset %d past end of record", n, off)
	}
	if n == 0 {
		return nil, off, nil
	}
	return bytes.Clone(body[off : off+n]), off + n, nil
}

func corrupt(format string, args ...any) *dberror.DBError {
	return dberror.NewStorageInvalid("corrupt log record: "+fmt.Sprintf(format, args...)).
		In("DeserializeLogRecord", "Log")
}
