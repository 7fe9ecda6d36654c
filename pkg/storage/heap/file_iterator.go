package heap

import (
	"fmt"

	"heapstore/pkg/concurrency/transaction"
	"heapstore/pkg/primitives"
	"heapstore/pkg/storage/page"
	"heapstore/pkg/tuple"
)

// FileIterator walks a heap file page by page. Each page is fetched with a
// shared lock for the iterating transaction; the locks stay held until that
// transaction completes.
type FileIterator struct {
	file     *HeapFile
	fetcher  page.PageFetcher
	tid      transaction.TransactionID
	nextPage primitives.PageNumber
	numPages primitives.PageNumber
	pending  []*tuple.Tuple
	isOpen   bool
}

func NewFileIterator(file *HeapFile, fetcher page.PageFetcher, tid transaction.TransactionID) *FileIterator {
	return &FileIterator{
		file:    file,
		fetcher: fetcher,
		tid:     tid,
	}
}

// Open positions the iterator before the first tuple. Pages appended after
// Open are not visited.
func (it *FileIterator) Open() error {
	numPages, err := it.file.NumPages()
	if err != nil {
		return err
	}
	it.numPages = numPages
	it.nextPage = 0
	it.pending = nil
	it.isOpen = true
	return nil
}

func (it *FileIterator) HasNext() (bool, error) {
	if !it.isOpen {
		return false, fmt.Errorf("iterator not opened")
	}

	for len(it.pending) == 0 {
		if it.nextPage >= it.numPages {
			return false, nil
		}
		if err := it.loadPage(it.nextPage); err != nil {
			return false, err
		}
		it.nextPage++
	}
	return true, nil
}

func (it *FileIterator) Next() (*tuple.Tuple, error) {
	hasNext, err := it.HasNext()
	if err != nil {
		return nil, err
	}
	if !hasNext {
		return nil, fmt.Errorf("no more tuples")
	}

	t := it.pending[0]
	it.pending = it.pending[1:]
	return t, nil
}

func (it *FileIterator) Rewind() error {
	return it.Open()
}

func (it *FileIterator) Close() error {
	it.pending = nil
	it.isOpen = false
	return nil
}

func (it *FileIterator) loadPage(pageNo primitives.PageNumber) error {
	pid := primitives.NewPageID(it.file.GetID(), pageNo)
	p, err := it.file.fetch(it.fetcher, it.tid, pid, transaction.ReadOnly)
	if err != nil {
		return err
	}
	it.pending = p.GetTuples()
	return nil
}

// ReadAll drains a fresh iterator over file into a slice.
func ReadAll(file *HeapFile, fetcher page.PageFetcher, tid transaction.TransactionID) ([]*tuple.Tuple, error) {
	it := file.Iterator(fetcher, tid)
	if err := it.Open(); err != nil {
		return nil, err
	}
	defer it.Close()

	var out []*tuple.Tuple
	for {
		hasNext, err := it.HasNext()
		if err != nil {
			return nil, err
		}
		if !hasNext {
			return out, nil
		}
		t, err := it.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
}
