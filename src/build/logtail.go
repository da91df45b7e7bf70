package build

import "sync"

const defaultLogTail = 4096

// tailWriter retains the last max bytes written to it. Backend output is
// unbounded; reports only want the tail, where failures surface.
type tailWriter struct {
	mu        sync.Mutex
	max       int
	buf       []byte
	truncated bool
}

func newTailWriter(max int) *tailWriter {
	if max <= 0 {
		max = defaultLogTail
	}
	return &tailWriter{max: max}
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	if len(w.buf) > w.max {
		w.buf = w.buf[len(w.buf)-w.max:]
		w.truncated = true
	}
	return len(p), nil
}

// String renders the captured tail, prefixed with a marker when earlier
// output was dropped.
func (w *tailWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.truncated {
		return "[...truncated...]\n" + string(w.buf)
	}
	return string(w.buf)
}
