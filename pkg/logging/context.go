package logging

import (
	"heapstore/pkg/primitives"

	"github.com/sirupsen/logrus"
)

// WithTx returns an entry carrying the transaction ID.
//
// Example:
//
//	log := logging.WithTx(tid.ID())
//	log.Info("transaction committed")
func WithTx(txID int64) *logrus.Entry {
	return GetLogger().WithField("tx_id", txID)
}

// WithTable returns an entry carrying the table name and ID.
func WithTable(name string, id primitives.TableID) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{"table": name, "table_id": uint64(id)})
}

// WithPage returns an entry carrying the page coordinates.
//
// Example:
//
//	log := logging.WithPage(pid)
//	log.Debug("page evicted")
func WithPage(pid primitives.PageID) *logrus.Entry {
	return GetLogger().WithFields(PageFields(pid))
}

// WithLock returns an entry for lock manager events.
func WithLock(txID int64, pid primitives.PageID, mode string) *logrus.Entry {
	fields := PageFields(pid)
	fields["tx_id"] = txID
	fields["lock_type"] = mode
	return GetLogger().WithFields(fields)
}

// WithComponent returns an entry tagged with a subsystem name.
func WithComponent(component string) *logrus.Entry {
	return GetLogger().WithField("component", component)
}

// WithError returns an entry carrying err.
func WithError(err error) *logrus.Entry {
	return GetLogger().WithError(err)
}

// PageFields returns the structured fields describing a page.
func PageFields(pid primitives.PageID) logrus.Fields {
	return logrus.Fields{
		"table_id": uint64(pid.TableID),
		"page_no":  uint64(pid.PageNo),
	}
}
