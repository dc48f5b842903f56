package logger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// sinkSpec declares one log destination. Lines below min never reach it.
type sinkSpec struct {
	name string
	w    io.Writer
	min  slog.Level
}

type sink struct {
	name string
	buf  *bufio.Writer
	min  slog.Level
	err  error
}

var errWriterClosed = errors.New("logger: writer closed")

type logLine struct {
	level slog.Level
	data  []byte
}

// asyncWriter fans formatted lines out to its sinks on a single goroutine.
// A sink that fails is skipped from then on; the others keep receiving
// lines, so a full disk under the log file does not silence stdout.
type asyncWriter struct {
	lines   chan logLine
	flushes chan chan error
	done    chan struct{}

	// sendMu keeps Write from racing the close of lines.
	sendMu sync.RWMutex
	closed bool

	mu    sync.Mutex
	sinks []*sink
}

func newAsyncWriter(specs []sinkSpec) *asyncWriter {
	sinks := make([]*sink, 0, len(specs))
	for _, s := range specs {
		if s.w == nil {
			continue
		}
		sinks = append(sinks, &sink{name: s.name, buf: bufio.NewWriterSize(s.w, 64*1024), min: s.min})
	}
	w := &asyncWriter{
		lines:   make(chan logLine, 512),
		flushes: make(chan chan error),
		done:    make(chan struct{}),
		sinks:   sinks,
	}
	go w.run()
	return w
}

func (w *asyncWriter) run() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				w.flushSinks()
				return
			}
			w.deliver(line)
		case ack := <-w.flushes:
			ack <- w.flushSinks()
		}
	}
}

// Write queues p for every sink whose floor admits level. It blocks when the
// queue is full rather than dropping lines.
func (w *asyncWriter) Write(level slog.Level, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if err := w.failed(); err != nil {
		return err
	}
	w.sendMu.RLock()
	defer w.sendMu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.lines <- logLine{level: level, data: append([]byte(nil), p...)}
	return nil
}

// Flush blocks until every queued line has been written out.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	select {
	case w.flushes <- ack:
		return <-ack
	case <-w.done:
		return w.sinkErrors()
	}
}

// Close drains the queue and reports the sink failures seen so far.
func (w *asyncWriter) Close() error {
	w.sendMu.Lock()
	if !w.closed {
		w.closed = true
		close(w.lines)
	}
	w.sendMu.Unlock()
	<-w.done
	return w.sinkErrors()
}

func (w *asyncWriter) deliver(line logLine) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.sinks {
		if s.err != nil || line.level < s.min {
			continue
		}
		if _, err := s.buf.Write(line.data); err != nil {
			s.err = err
			continue
		}
		if err := s.buf.Flush(); err != nil {
			s.err = err
		}
	}
}

func (w *asyncWriter) flushSinks() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	for _, s := range w.sinks {
		if s.err != nil {
			errs = append(errs, fmt.Errorf("log sink %s: %w", s.name, s.err))
			continue
		}
		if err := s.buf.Flush(); err != nil {
			s.err = err
			errs = append(errs, fmt.Errorf("log sink %s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) sinkErrors() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	for _, s := range w.sinks {
		if s.err != nil {
			errs = append(errs, fmt.Errorf("log sink %s: %w", s.name, s.err))
		}
	}
	return errors.Join(errs...)
}

// failed reports an error once no sink is left to write to.
func (w *asyncWriter) failed() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.sinks) == 0 {
		return nil
	}
	for _, s := range w.sinks {
		if s.err == nil {
			return nil
		}
	}
	return errors.New("logger: every sink failed")
}
