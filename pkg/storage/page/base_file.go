package page

import (
	"fmt"
	"io"
	"os"
	"sync"

	"heapstore/pkg/dberror"
	"heapstore/pkg/primitives"

	"github.com/pkg/errors"
)

// BaseFile provides page-granular I/O on a flat file: page k lives at byte
// offset k*pageSize and the file has no header.
//
// All public methods are safe for concurrent use.
type BaseFile struct {
	file     *os.File
	mutex    sync.RWMutex
	filePath primitives.Filepath
	pageSize int
}

// NewBaseFile opens (creating if needed) the file at filePath. The page size
// in effect at this call is used for the lifetime of the BaseFile.
func NewBaseFile(filePath primitives.Filepath) (*BaseFile, error) {
	if filePath.IsEmpty() {
		return nil, fmt.Errorf("filePath cannot be empty")
	}

	file, err := os.OpenFile(string(filePath), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", filePath)
	}

	return &BaseFile{
		file:     file,
		filePath: filePath,
		pageSize: PageSize(),
	}, nil
}

func (bf *BaseFile) PageSize() int {
	return bf.pageSize
}

// FilePath returns the path used to open the file.
func (bf *BaseFile) FilePath() primitives.Filepath {
	return bf.filePath
}

// NumPages returns the number of complete pages in the file.
// A trailing partial page (from a torn append) is not counted.
func (bf *BaseFile) NumPages() (primitives.PageNumber, error) {
	bf.mutex.RLock()
	defer bf.mutex.RUnlock()

	if bf.file == nil {
		return 0, fmt.Errorf("file is closed")
	}
	return bf.numPagesLocked()
}

func (bf *BaseFile) numPagesLocked() (primitives.PageNumber, error) {
	info, err := bf.file.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", bf.filePath)
	}
	return primitives.PageNumber(info.Size() / int64(bf.pageSize)), nil
}

// ReadPageData reads exactly one page. Reading beyond the last page, or a
// read that returns fewer bytes than a page, is a storage-invalid error.
func (bf *BaseFile) ReadPageData(pageNo primitives.PageNumber) ([]byte, error) {
	bf.mutex.RLock()
	defer bf.mutex.RUnlock()

	if bf.file == nil {
		return nil, fmt.Errorf("file is closed")
	}

	numPages, err := bf.numPagesLocked()
	if err != nil {
		return nil, err
	}
	if pageNo >= numPages {
		return nil, dberror.NewStorageInvalid(
			fmt.Sprintf("page %d does not exist in %s (%d pages)", pageNo, bf.filePath, numPages))
	}

	pageData := make([]byte, bf.pageSize)
	n, err := bf.file.ReadAt(pageData, int64(pageNo)*int64(bf.pageSize))
	if n < bf.pageSize {
		if err == nil || err == io.EOF {
			return nil, dberror.NewStorageInvalid(
				fmt.Sprintf("short read of page %d in %s: %d of %d bytes", pageNo, bf.filePath, n, bf.pageSize))
		}
		return nil, dberror.NewIO(errors.Wrapf(err, "read page %d of %s", pageNo, bf.filePath), "read page")
	}
	return pageData, nil
}

// WritePageData writes exactly one page and syncs the file.
func (bf *BaseFile) WritePageData(pageNo primitives.PageNumber, pageData []byte) error {
	bf.mutex.Lock()
	defer bf.mutex.Unlock()

	if bf.file == nil {
		return fmt.Errorf("file is closed")
	}
	if len(pageData) != bf.pageSize {
		return fmt.Errorf("invalid page data size: expected %d, got %d", bf.pageSize, len(pageData))
	}

	if _, err := bf.file.WriteAt(pageData, int64(pageNo)*int64(bf.pageSize)); err != nil {
		return dberror.NewIO(errors.Wrapf(err, "write page %d of %s", pageNo, bf.filePath), "write page")
	}
	if err := bf.file.Sync(); err != nil {
		return dberror.NewIO(errors.Wrapf(err, "sync %s", bf.filePath), "sync")
	}
	return nil
}

// AllocateNewPage appends a zero-filled page and returns its number.
// Concurrent callers always receive distinct page numbers, and the file
// grows by exactly one page per call.
func (bf *BaseFile) AllocateNewPage() (primitives.PageNumber, error) {
	bf.mutex.Lock()
	defer bf.mutex.Unlock()

	if bf.file == nil {
		return 0, fmt.Errorf("file is closed")
	}

	pageNo, err := bf.numPagesLocked()
	if err != nil {
		return 0, err
	}

	zeroPage := make([]byte, bf.pageSize)
	if _, err := bf.file.WriteAt(zeroPage, int64(pageNo)*int64(bf.pageSize)); err != nil {
		return 0, dberror.NewIO(errors.Wrapf(err, "append page %d to %s", pageNo, bf.filePath), "append page")
	}
	if err := bf.file.Sync(); err != nil {
		return 0, dberror.NewIO(errors.Wrapf(err, "sync %s", bf.filePath), "sync")
	}
	return pageNo, nil
}

// Close closes the file. Closing twice is a no-op.
func (bf *BaseFile) Close() error {
	bf.mutex.Lock()
	defer bf.mutex.Unlock()

	if bf.file == nil {
		return nil
	}
	err := bf.file.Close()
	bf.file = nil
	return err
}
