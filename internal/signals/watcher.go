package signals

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"time"
)

// Watcher tails a JSONL signal stream by polling for appended content
// and hands each complete line to a handler. Polling tolerates the file
// not existing yet (the supervisor may start first) and truncation
// (stream rotation restarts from the beginning).
type Watcher struct {
	path         string
	handler      func(ctx context.Context, sig *Signal)
	onError      func(line []byte, err error)
	pollInterval time.Duration

	mu       sync.Mutex
	position int64
	partial  []byte
}

// NewWatcher creates a Watcher over the stream at path. onError receives
// unparseable lines and may be nil.
func NewWatcher(path string, handler func(ctx context.Context, sig *Signal), onError func(line []byte, err error)) *Watcher {
	return &Watcher{
		path:         path,
		handler:      handler,
		onError:      onError,
		pollInterval: 500 * time.Millisecond,
	}
}

// SetPollInterval sets the polling interval for stream checks.
func (w *Watcher) SetPollInterval(d time.Duration) {
	w.pollInterval = d
}

// Start tails the stream until the context is cancelled. Signals already
// in the file at start are processed: on restart the supervisor rebuilds
// its view of live sessions from the stream.
func (w *Watcher) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.Drain(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Drain reads and dispatches everything appended since the last call.
// Exposed separately so tests and one-shot callers can pump the stream
// without the polling loop.
func (w *Watcher) Drain(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	file, err := os.Open(w.path)
	if err != nil {
		// Not created yet, or transiently unreadable.
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return
	}
	if info.Size() < w.position {
		// Truncated: start over.
		w.position = 0
		w.partial = nil
	}

	if _, err := file.Seek(w.position, io.SeekStart); err != nil {
		return
	}
	data, err := io.ReadAll(file)
	if err != nil && len(data) == 0 {
		return
	}
	w.position += int64(len(data))

	buf := append(w.partial, data...)
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSpace(buf[:idx])
		buf = buf[idx+1:]
		if len(line) == 0 {
			continue
		}

		sig, err := ParseSignal(line)
		if err != nil {
			if w.onError != nil {
				w.onError(line, err)
			}
			continue
		}
		w.handler(ctx, sig)

		select {
		case <-ctx.Done():
			w.partial = append([]byte(nil), buf...)
			return
		default:
		}
	}
	w.partial = append([]byte(nil), buf...)
}
