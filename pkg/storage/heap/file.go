package heap

import (
	"errors"
	"fmt"

	"heapstore/pkg/concurrency/transaction"
	"heapstore/pkg/dberror"
	"heapstore/pkg/logging"
	"heapstore/pkg/primitives"
	"heapstore/pkg/storage/page"
	"heapstore/pkg/tuple"

	"github.com/sirupsen/logrus"
)

// HeapFile stores the tuples of one table as an unordered sequence of
// HeapPages. Pages are only ever appended; tuples are placed first-fit.
type HeapFile struct {
	*page.BaseFile
	tableID   primitives.TableID
	tupleDesc *tuple.TupleDescription
	log       *logrus.Entry
}

// NewHeapFile opens the heap file at path for table tableID.
// The same file must always be opened with the same table ID and schema.
func NewHeapFile(path primitives.Filepath, tableID primitives.TableID, td *tuple.TupleDescription) (*HeapFile, error) {
	if !tableID.IsValid() {
		return nil, fmt.Errorf("heap file %s needs a valid table ID", path)
	}
	if td == nil {
		return nil, fmt.Errorf("heap file %s needs a schema", path)
	}

	baseFile, err := page.NewBaseFile(path)
	if err != nil {
		return nil, err
	}
	if NumSlots(baseFile.PageSize(), td.GetSize()) == 0 {
		_ = baseFile.Close()
		return nil, fmt.Errorf("tuple of %d bytes does not fit a %d byte page", td.GetSize(), baseFile.PageSize())
	}

	return &HeapFile{
		BaseFile:  baseFile,
		tableID:   tableID,
		tupleDesc: td,
		log: logging.WithComponent("HeapFile").WithFields(logrus.Fields{
			"table_id": uint64(tableID),
			"path":     path.String(),
		}),
	}, nil
}

func (hf *HeapFile) GetID() primitives.TableID {
	return hf.tableID
}

func (hf *HeapFile) GetTupleDesc() *tuple.TupleDescription {
	return hf.tupleDesc
}

// ReadPage reads a page from disk. The page must exist and belong to this file.
func (hf *HeapFile) ReadPage(pid primitives.PageID) (page.Page, error) {
	if pid.TableID != hf.tableID {
		return nil, dberror.NewStorageInvalid(
			fmt.Sprintf("%s does not belong to table %d", pid, hf.tableID)).In("ReadPage", "HeapFile")
	}

	data, err := hf.ReadPageData(pid.PageNo)
	if err != nil {
		return nil, dberror.Wrap(err, dberror.CodeIO, "ReadPage", "HeapFile")
	}
	return NewHeapPage(pid, data, hf.tupleDesc)
}

// WritePage writes p at its page offset.
func (hf *HeapFile) WritePage(p page.Page) error {
	if p == nil {
		return fmt.Errorf("page cannot be nil")
	}
	pid := p.GetID()
	if pid.TableID != hf.tableID {
		return dberror.NewStorageInvalid(
			fmt.Sprintf("%s does not belong to table %d", pid, hf.tableID)).In("WritePage", "HeapFile")
	}
	return hf.WritePageData(pid.PageNo, p.GetPageData())
}

// InsertTuple places t in the first page with a free slot, scanning pages in
// ascending order. Pages are inspected under a shared lock and only the
// chosen page is locked exclusively; a full page whose lock was taken just
// for the scan is released again. When every page is full a new empty page
// is appended and t lands in its slot 0.
func (hf *HeapFile) InsertTuple(fetcher page.PageFetcher, tid transaction.TransactionID, t *tuple.Tuple) ([]page.Page, error) {
	if err := t.Conforms(hf.tupleDesc); err != nil {
		return nil, err
	}

	numPages, err := hf.NumPages()
	if err != nil {
		return nil, err
	}

	for pageNo := primitives.PageNumber(0); pageNo < numPages; pageNo++ {
		pid := primitives.NewPageID(hf.tableID, pageNo)
		heldBefore := fetcher.HoldsLock(tid, pid)

		p, err := hf.fetch(fetcher, tid, pid, transaction.ReadOnly)
		if err != nil {
			return nil, err
		}
		if p.GetNumEmptySlots() == 0 {
			if !heldBefore {
				fetcher.UnsafeReleasePage(tid, pid)
			}
			continue
		}

		p, err = hf.fetch(fetcher, tid, pid, transaction.ReadWrite)
		if err != nil {
			return nil, err
		}
		if err := p.InsertTuple(t); err != nil {
			if errors.Is(err, dberror.ErrPageFull) {
				continue
			}
			return nil, err
		}
		return []page.Page{p}, nil
	}

	return hf.insertIntoNewPage(fetcher, tid, t)
}

func (hf *HeapFile) insertIntoNewPage(fetcher page.PageFetcher, tid transaction.TransactionID, t *tuple.Tuple) ([]page.Page, error) {
	pageNo, err := hf.AllocateNewPage()
	if err != nil {
		return nil, dberror.Wrap(err, dberror.CodeIO, "InsertTuple", "HeapFile")
	}
	pid := primitives.NewPageID(hf.tableID, pageNo)
	hf.log.WithField("page_no", uint64(pageNo)).Debug("appended empty page")

	p, err := hf.fetch(fetcher, tid, pid, transaction.ReadWrite)
	if err != nil {
		return nil, err
	}
	if err := p.InsertTuple(t); err != nil {
		return nil, err
	}
	return []page.Page{p}, nil
}

// DeleteTuple removes t from the slot recorded in t.RecordID.
func (hf *HeapFile) DeleteTuple(fetcher page.PageFetcher, tid transaction.TransactionID, t *tuple.Tuple) ([]page.Page, error) {
	rid := t.RecordID
	if rid == nil {
		return nil, dberror.NewTupleNotFound("tuple has no record ID").In("DeleteTuple", "HeapFile")
	}
	if rid.PageID.TableID != hf.tableID {
		return nil, dberror.NewTupleNotFound(
			fmt.Sprintf("%s does not belong to table %d", rid, hf.tableID)).In("DeleteTuple", "HeapFile")
	}

	p, err := hf.fetch(fetcher, tid, rid.PageID, transaction.ReadWrite)
	if err != nil {
		return nil, err
	}
	if err := p.DeleteTuple(t); err != nil {
		return nil, err
	}
	return []page.Page{p}, nil
}

// Iterator returns an iterator over every tuple of the file, reading pages
// through fetcher with shared locks held by tid.
func (hf *HeapFile) Iterator(fetcher page.PageFetcher, tid transaction.TransactionID) *FileIterator {
	return NewFileIterator(hf, fetcher, tid)
}

func (hf *HeapFile) fetch(fetcher page.PageFetcher, tid transaction.TransactionID, pid primitives.PageID, perm transaction.Permissions) (*HeapPage, error) {
	p, err := fetcher.GetPage(tid, pid, perm)
	if err != nil {
		return nil, err
	}
	hp, ok := p.(*HeapPage)
	if !ok {
		return nil, fmt.Errorf("%s is not a heap page", pid)
	}
	return hp, nil
}
