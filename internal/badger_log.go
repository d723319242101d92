package internal

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// badgerLogWriter redirects badger's own logging (compactions, value log GC,
// replay) to the process slog.Logger.
type badgerLogWriter struct {
	logger *slog.Logger
}

func NewBadgerLogger(logger *slog.Logger) badger.Logger {
	return &badgerLogWriter{logger: logger.With("component", "badger")}
}

func (w *badgerLogWriter) Errorf(format string, args ...interface{}) {
	w.logger.Error(clean(format, args))
}

func (w *badgerLogWriter) Warningf(format string, args ...interface{}) {
	w.logger.Warn(clean(format, args))
}

func (w *badgerLogWriter) Infof(format string, args ...interface{}) {
	w.logger.Info(clean(format, args))
}

func (w *badgerLogWriter) Debugf(format string, args ...interface{}) {
	w.logger.Debug(clean(format, args))
}

// clean drops the trailing newline badger appends to most messages.
func clean(format string, args []interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
