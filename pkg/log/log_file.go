package log

import (
	"fmt"
	"os"
	"sync"

	"heapstore/pkg/concurrency/transaction"
	"heapstore/pkg/logging"
	"heapstore/pkg/primitives"
	"heapstore/pkg/storage/page"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultBufferSize is the log buffer size used when none is configured.
const DefaultBufferSize = 64 * 1024

// LogFile is what the buffer pool needs from a log: an update record per
// flushed page, a way to force it to disk, and completion records.
type LogFile interface {
	LogWrite(tid transaction.TransactionID, before, after page.Page) error
	Force() error
	LogCommit(tid transaction.TransactionID) error
	LogAbort(tid transaction.TransactionID) error
	Close() error
}

// FileLog is an append-only LogFile backed by a single file. Records are
// buffered until Force; commit and abort records force themselves.
type FileLog struct {
	mutex  sync.Mutex
	file   *os.File
	path   primitives.Filepath
	writer *LogWriter
	log    *logrus.Entry

	// syncedLSN is the writer's FlushedLSN as of the last fsync.
	syncedLSN primitives.LSN
}

// NewFileLog opens (or creates) the log at path and positions the writer
// after any existing records.
func NewFileLog(path primitives.Filepath, bufferSize int) (*FileLog, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if err := path.MkdirAll(); err != nil {
		return nil, errors.Wrapf(err, "create log directory for %s", path)
	}

	file, err := os.OpenFile(path.String(), os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "open log %s", path)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrapf(err, "stat log %s", path)
	}

	start := primitives.LSN(info.Size())
	return &FileLog{
		file:      file,
		path:      path,
		writer:    NewLogWriter(file, bufferSize, start),
		log:       logging.WithComponent("FileLog").WithField("path", path.String()),
		syncedLSN: start,
	}, nil
}

// LogWrite appends an update record holding both images of a page.
func (l *FileLog) LogWrite(tid transaction.TransactionID, before, after page.Page) error {
	if after == nil {
		return fmt.Errorf("log write for %s: after image is nil", tid)
	}

	rec := &LogRecord{
		Type:       UpdateRecord,
		TID:        tid,
		PageID:     after.GetID(),
		AfterImage: after.GetPageData(),
	}
	if before != nil {
		rec.BeforeImage = before.GetPageData()
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	lsn, err := l.append(rec)
	if err != nil {
		return err
	}
	l.log.WithFields(logrus.Fields{"tx_id": tid.ID(), "lsn": uint64(lsn)}).
		WithFields(logging.PageFields(rec.PageID)).Debug("logged page update")
	return nil
}

// Force writes buffered records and syncs the file. It skips the sync when
// nothing was written since the last one.
func (l *FileLog) Force() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.force()
}

func (l *FileLog) LogCommit(tid transaction.TransactionID) error {
	return l.complete(tid, CommitRecord)
}

func (l *FileLog) LogAbort(tid transaction.TransactionID) error {
	return l.complete(tid, AbortRecord)
}

func (l *FileLog) complete(tid transaction.TransactionID, recordType RecordType) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	lsn, err := l.append(&LogRecord{Type: recordType, TID: tid})
	if err != nil {
		return err
	}
	if err := l.force(); err != nil {
		return err
	}
	l.log.WithFields(logrus.Fields{"tx_id": tid.ID(), "lsn": uint64(lsn)}).Debugf("logged %s", recordType)
	return nil
}

// CurrentLSN returns the LSN the next record will get.
func (l *FileLog) CurrentLSN() primitives.LSN {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.writer.CurrentLSN()
}

func (l *FileLog) Path() primitives.Filepath {
	return l.path
}

// Close forces outstanding records and closes the file.
func (l *FileLog) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.file == nil {
		return nil
	}
	forceErr := l.force()
	closeErr := l.file.Close()
	l.file = nil
	if forceErr != nil {
		return forceErr
	}
	return errors.Wrapf(closeErr, "close log %s", l.path)
}

func (l *FileLog) append(rec *LogRecord) (primitives.LSN, error) {
	if l.file == nil {
		return 0, fmt.Errorf("log %s is closed", l.path)
	}
	rec.LSN = l.writer.CurrentLSN()
	return l.writer.Write(SerializeLogRecord(rec))
}

func (l *FileLog) force() error {
	if l.file == nil {
		return fmt.Errorf("log %s is closed", l.path)
	}
	if err := l.writer.Flush(); err != nil {
		return err
	}
	flushed := l.writer.FlushedLSN()
	if flushed == l.syncedLSN {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		return errors.Wrapf(err, "sync log %s", l.path)
	}
	l.syncedLSN = flushed
	l.log.WithField("lsn", uint64(flushed)).Debug("synced log")
	return nil
}
