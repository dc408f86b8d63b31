package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// AsyncLogger buffers entries onto a channel drained by a single background
// writer goroutine. Logging never blocks the caller: when the buffer is full
// the entry is dropped with a warning. Writes are best-effort; a failed
// insert is logged, never retried, and never affects the audited operation.
type AsyncLogger struct {
	repo    Repository
	lg      *zap.Logger
	entries chan Entry

	closeOnce sync.Once
	done      chan struct{}
}

var _ Logger = (*AsyncLogger)(nil)

// NewAsyncLogger starts the background writer and returns the logger. Call
// Close during shutdown to flush buffered entries.
func NewAsyncLogger(repo Repository, lg *zap.Logger, buffer int) *AsyncLogger {
	if buffer <= 0 {
		buffer = 256
	}
	l := &AsyncLogger{
		repo:    repo,
		lg:      lg,
		entries: make(chan Entry, buffer),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

// Log enqueues an entry for background persistence. The passed context is not
// retained: audit writes outlive the originating request.
func (l *AsyncLogger) Log(_ context.Context, e Entry) {
	select {
	case l.entries <- e:
	default:
		l.lg.Warn("audit buffer full, entry dropped",
			zap.String("entity_type", e.EntityType),
			zap.String("entity_id", e.EntityID),
		)
	}
}

// Close stops accepting entries and blocks until the writer has drained the
// buffer.
func (l *AsyncLogger) Close() {
	l.closeOnce.Do(func() {
		close(l.entries)
	})
	<-l.done
}

func (l *AsyncLogger) run() {
	defer close(l.done)
	for e := range l.entries {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := l.repo.Insert(ctx, e); err != nil {
			l.lg.Error("audit write failed",
				zap.String("entity_type", e.EntityType),
				zap.String("entity_id", e.EntityID),
				zap.Error(err),
			)
		}
		cancel()
	}
}
