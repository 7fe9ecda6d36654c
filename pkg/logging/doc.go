// Package logging provides the process-wide structured logger for heapstore.
//
// The package wraps logrus and exposes a single logger that is configured once
// and then retrieved via GetLogger. Components never construct their own
// logrus.Logger; they derive an entry through the helpers in this package so
// that level, format and destination are controlled from one place.
//
// # Initialisation
//
// Call Init (or InitDefault) once at program startup:
//
//	if err := logging.Init(logging.Config{Level: logging.LevelDebug, OutputPath: "logs/heapstore.log"}); err != nil {
//	    log.Fatal(err)
//	}
//
// If GetLogger is called before Init, a default INFO logger writing to stdout
// is created lazily.
//
// # Context helpers
//
//	log := logging.WithComponent("BufferPool")
//	log.WithFields(logging.PageFields(pid)).Debug("page cached")
//	logging.WithTx(tid.ID()).Info("transaction committed")
package logging
