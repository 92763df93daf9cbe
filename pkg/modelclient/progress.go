package modelclient

import (
	"go.uber.org/zap"
)

// Progress reports how far an upload has come.
type Progress interface {
	Start(total int) Tracker
}

// Tracker follows a single upload call. Its methods are called from the
// goroutine consuming the results.
type Tracker interface {
	// Describe names the kind of objects currently being uploaded.
	Describe(label string)
	Increment()
	Finish()
}

// NopProgress discards progress.
type NopProgress struct{}

func (NopProgress) Start(int) Tracker { return nopTracker{} }

type nopTracker struct{}

func (nopTracker) Describe(string) {}
func (nopTracker) Increment()      {}
func (nopTracker) Finish()         {}

// LogProgress writes progress to a zap logger.
type LogProgress struct {
	Logger *zap.Logger
}

func (p LogProgress) Start(total int) Tracker {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &logTracker{logger: logger, total: total}
}

type logTracker struct {
	logger *zap.Logger
	total  int
	done   int
	label  string
}

func (t *logTracker) Describe(label string) {
	t.label = label
	t.logger.Info("Uploading objects",
		zap.String("kind", label),
		zap.Int("done", t.done),
		zap.Int("total", t.total))
}

func (t *logTracker) Increment() {
	t.done++
	t.logger.Debug("Uploaded object",
		zap.String("kind", t.label),
		zap.Int("done", t.done),
		zap.Int("total", t.total))
}

func (t *logTracker) Finish() {
	t.logger.Info("Finished uploading objects",
		zap.Int("done", t.done),
		zap.Int("total", t.total))
}
