package log

import (
	"fmt"
	"os"
	"sync"
)

// FileLogger appends events to a CBOR trace file. When a size limit is
// set the file is rotated to "<path>.1" once it grows past the limit,
// replacing any previous rotation. It is safe for concurrent use.
type FileLogger struct {
	path    string
	maxSize int64

	mu     sync.Mutex
	file   *os.File
	size   int64
	closed bool
	err    error
}

// FileOption configures a FileLogger.
type FileOption func(*FileLogger)

// WithMaxSize rotates the trace after it exceeds n bytes. Zero disables
// rotation.
func WithMaxSize(n int64) FileOption {
	return func(l *FileLogger) { l.maxSize = n }
}

// NewFileLogger opens path for appending, creating it if needed.
func NewFileLogger(path string, opts ...FileOption) (*FileLogger, error) {
	l := &FileLogger{path: path}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) open() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	l.file = f
	l.size = info.Size()
	return nil
}

// Path returns the active trace file.
func (l *FileLogger) Path() string { return l.path }

// Log appends the event. Write failures never reach the caller; the
// first one is kept and reported by Err.
func (l *FileLogger) Log(event Event) {
	data, err := EncodeEvent(event)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if err == nil {
		err = l.write(data)
	}
	if err != nil && l.err == nil {
		l.err = err
	}
}

func (l *FileLogger) write(data []byte) error {
	if l.maxSize > 0 && l.size > 0 && l.size+int64(len(data)) > l.maxSize {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("rotating %s: %w", l.path, err)
		}
	}
	n, err := l.file.Write(data)
	l.size += int64(n)
	return err
}

func (l *FileLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(l.path, l.path+".1"); err != nil {
		return err
	}
	return l.open()
}

// Err returns the first write error, if any.
func (l *FileLogger) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close closes the file. Events logged afterwards are dropped. Calling
// Close more than once is harmless.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)
