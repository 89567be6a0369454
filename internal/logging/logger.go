// Package logging provides structured, per-task logfmt logging built on
// go-kit/log, in the style of the rest of the stack's request-scoped loggers.
package logging

import (
	"os"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/patrickmn/go-cache"
)

var loggerCacheExpiry = 6 * time.Hour

var loggerCache = cache.New(loggerCacheExpiry, 10*time.Minute)

// AddContext permanently attaches keyvals to the logger for taskID. Future
// calls to Log/LogError for the same taskID include this context.
func AddContext(taskID string, keyvals ...interface{}) {
	logger := kitlog.With(getLogger(taskID), keyvals...)
	_ = loggerCache.Replace(taskID, logger, loggerCacheExpiry)
}

// Log emits a logfmt line scoped to taskID.
func Log(taskID string, message string, keyvals ...interface{}) {
	_ = kitlog.With(getLogger(taskID), "msg", message).Log(keyvals...)
}

// LogNoTaskID logs in contexts with no task to scope to, such as bootstrap.
func LogNoTaskID(message string, keyvals ...interface{}) {
	_ = kitlog.With(newLogger(), "msg", message).Log(keyvals...)
}

// LogError emits a logfmt line scoped to taskID with the error included.
func LogError(taskID string, message string, err error, keyvals ...interface{}) {
	logger := kitlog.With(getLogger(taskID), "msg", message, "err", err.Error())
	_ = logger.Log(keyvals...)
}

func getLogger(taskID string) kitlog.Logger {
	if logger, found := loggerCache.Get(taskID); found {
		return logger.(kitlog.Logger)
	}
	logger := kitlog.With(newLogger(), "task_id", taskID)
	_ = loggerCache.Add(taskID, logger, loggerCacheExpiry)
	return logger
}

func newLogger() kitlog.Logger {
	base := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	return kitlog.With(base, "ts", kitlog.DefaultTimestampUTC)
}
