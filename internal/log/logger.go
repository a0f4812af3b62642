// Package log implements the ambient logging stack: an async CommonLogger
// that stamps call-site + level + time and fans out to pluggable sinks on a
// dedicated goroutine, grounded on the teacher's src/framework/log's
// CommonLogger/LogSink pair.
//
// The teacher's own CommonLogger backs its queue with "utility/queue"'s
// LockFreeQueue — a type that is referenced throughout the teacher's log
// and network packages but never actually shipped in the retrieved source
// tree. Rather than invent a lock-free MPSC queue from scratch, this
// substitutes eapache/queue (already in the pack's dependency surface)
// guarded by internal/spinlock's SpinLock for the same enqueue/dequeue
// shape — a deliberate, corpus-consistent stand-in (see DESIGN.md).
package log

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/eapache/queue"

	"github.com/ouyang506/gamenetcore/internal/spinlock"
)

// Content is one log record queued for the sink goroutine.
type Content struct {
	Level    LogLevel
	Time     time.Time
	Location string
	Message  string
}

// Sink receives queued log content on the logger's dedicated goroutine.
type Sink interface {
	Sink(content *Content)
	Flush()
}

// Logger is an async, level-filtered, multi-sink logger. Log* calls never
// block on sink I/O — they enqueue and return; a background goroutine
// drains the queue and fans out to every registered Sink.
type Logger struct {
	level LogLevel
	sinks []Sink

	mu    spinlock.SpinLock
	queue *queue.Queue
	wake  chan struct{}
	done  chan struct{}
}

// New creates a Logger at the given minimum level. Start must be called
// once before any Log* call will actually reach a sink.
func New(level LogLevel) *Logger {
	return &Logger{
		level: level,
		queue: queue.New(),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (l *Logger) AddSink(sink Sink) {
	l.sinks = append(l.sinks, sink)
}

// Start launches the background drain goroutine.
func (l *Logger) Start() {
	go l.loopSink()
}

// Stop signals the drain goroutine to flush remaining entries and exit.
func (l *Logger) Stop() {
	close(l.done)
	l.nudge()
}

func (l *Logger) nudge() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Logger) loopSink() {
	for {
		l.drainOnce()
		select {
		case <-l.done:
			l.drainOnce()
			for _, sink := range l.sinks {
				sink.Flush()
			}
			return
		case <-l.wake:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (l *Logger) drainOnce() {
	for {
		l.mu.Lock()
		if l.queue.Length() == 0 {
			l.mu.Unlock()
			return
		}
		v := l.queue.Remove()
		l.mu.Unlock()

		content := v.(*Content)
		for _, sink := range l.sinks {
			sink.Sink(content)
		}
	}
}

func (l *Logger) levelLog(depth int, lvl LogLevel, fmtStr string, args ...interface{}) {
	if lvl < l.level {
		return
	}
	content := &Content{
		Level: lvl,
		Time:  time.Now(),
	}
	_, fullname, line, ok := runtime.Caller(depth + 1)
	if !ok {
		content.Location = "???.go:0"
	} else {
		_, fileName := filepath.Split(fullname)
		content.Location = fmt.Sprintf("%s:%d", fileName, line)
	}
	content.Message = fmt.Sprintf(fmtStr, args...)

	l.mu.Lock()
	l.queue.Add(content)
	l.mu.Unlock()
	l.nudge()
}

func (l *Logger) LogDebug(fmtStr string, args ...interface{}) { l.levelLog(1, LogLevelDebug, fmtStr, args...) }
func (l *Logger) LogInfo(fmtStr string, args ...interface{})  { l.levelLog(1, LogLevelInfo, fmtStr, args...) }
func (l *Logger) LogWarn(fmtStr string, args ...interface{})  { l.levelLog(1, LogLevelWarn, fmtStr, args...) }
func (l *Logger) LogError(fmtStr string, args ...interface{}) { l.levelLog(1, LogLevelError, fmtStr, args...) }
func (l *Logger) LogFatal(fmtStr string, args ...interface{}) { l.levelLog(1, LogLevelFatal, fmtStr, args...) }
