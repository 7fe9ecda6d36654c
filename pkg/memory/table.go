package memory

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"heapstore/pkg/dberror"
	"heapstore/pkg/logging"
	"heapstore/pkg/primitives"
	"heapstore/pkg/storage/page"
	"heapstore/pkg/tuple"
)

// Catalog resolves a table ID to the file that stores the table.
type Catalog interface {
	GetDbFile(tableID primitives.TableID) (page.DbFile, error)
}

// TableInfo holds what the catalog knows about one table.
type TableInfo struct {
	Name string
	File page.DbFile
}

func (ti *TableInfo) GetID() primitives.TableID {
	return ti.File.GetID()
}

func (ti *TableInfo) GetTupleDesc() *tuple.TupleDescription {
	return ti.File.GetTupleDesc()
}

// TableManager is the name and ID registry of open tables. It maintains
// bidirectional mappings between table names and IDs and implements Catalog.
type TableManager struct {
	nameToTable map[string]*TableInfo
	idToTable   map[primitives.TableID]*TableInfo
	mutex       sync.RWMutex
}

func NewTableManager() *TableManager {
	return &TableManager{
		nameToTable: make(map[string]*TableInfo),
		idToTable:   make(map[primitives.TableID]*TableInfo),
	}
}

// AddTable registers f under name. Both the name and the file's table ID
// must be unused.
func (tm *TableManager) AddTable(name string, f page.DbFile) error {
	if f == nil {
		return fmt.Errorf("file cannot be nil")
	}
	if name == "" {
		return fmt.Errorf("table name cannot be empty")
	}

	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	if _, exists := tm.nameToTable[name]; exists {
		return dberror.NewDuplicateTable(fmt.Sprintf("table %q already exists", name))
	}
	if existing, exists := tm.idToTable[f.GetID()]; exists {
		return dberror.NewDuplicateTable(
			fmt.Sprintf("%s is already registered as %q", f.GetID(), existing.Name))
	}

	info := &TableInfo{Name: name, File: f}
	tm.nameToTable[name] = info
	tm.idToTable[f.GetID()] = info

	logging.WithTable(name, f.GetID()).Debug("table registered")
	return nil
}

func (tm *TableManager) GetDbFile(tableID primitives.TableID) (page.DbFile, error) {
	info, err := tm.GetTableInfo(tableID)
	if err != nil {
		return nil, err
	}
	return info.File, nil
}

func (tm *TableManager) GetTableInfo(tableID primitives.TableID) (*TableInfo, error) {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	info, exists := tm.idToTable[tableID]
	if !exists {
		return nil, dberror.NewTableNotFound(fmt.Sprintf("no table with %s", tableID))
	}
	return info, nil
}

func (tm *TableManager) GetTableID(name string) (primitives.TableID, error) {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	info, exists := tm.nameToTable[name]
	if !exists {
		return primitives.InvalidTableID, dberror.NewTableNotFound(fmt.Sprintf("table %q not found", name))
	}
	return info.GetID(), nil
}

func (tm *TableManager) GetTableName(tableID primitives.TableID) (string, error) {
	info, err := tm.GetTableInfo(tableID)
	if err != nil {
		return "", err
	}
	return info.Name, nil
}

func (tm *TableManager) GetTupleDesc(tableID primitives.TableID) (*tuple.TupleDescription, error) {
	info, err := tm.GetTableInfo(tableID)
	if err != nil {
		return nil, err
	}
	return info.GetTupleDesc(), nil
}

func (tm *TableManager) TableExists(name string) bool {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()
	_, exists := tm.nameToTable[name]
	return exists
}

// RemoveTable unregisters name and closes its file.
func (tm *TableManager) RemoveTable(name string) error {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	info, exists := tm.nameToTable[name]
	if !exists {
		return dberror.NewTableNotFound(fmt.Sprintf("table %q not found", name))
	}

	delete(tm.nameToTable, name)
	delete(tm.idToTable, info.GetID())
	return info.File.Close()
}

// Clear unregisters every table and closes all files, returning the
// combined close errors.
func (tm *TableManager) Clear() error {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	var errs []error
	for _, info := range tm.idToTable {
		if err := info.File.Close(); err != nil {
			logging.WithTable(info.Name, info.GetID()).WithError(err).Warn("failed to close table file")
			errs = append(errs, err)
		}
	}

	clear(tm.nameToTable)
	clear(tm.idToTable)
	return errors.Join(errs...)
}

// GetAllTableNames returns the registered names in sorted order.
func (tm *TableManager) GetAllTableNames() []string {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()
	return slices.Sorted(maps.Keys(tm.nameToTable))
}

// ValidateIntegrity checks that the name and ID maps describe the same tables.
func (tm *TableManager) ValidateIntegrity() error {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	if len(tm.nameToTable) != len(tm.idToTable) {
		return fmt.Errorf("catalog integrity violation: map size mismatch")
	}
	for name, info := range tm.nameToTable {
		if other, exists := tm.idToTable[info.GetID()]; !exists || other != info {
			return fmt.Errorf("catalog integrity violation: table %s missing from ID map", name)
		}
	}
	return nil
}
