package exec

import (
	"bytes"
	"sync"
)

// capture collects stdout, stderr and their interleaving. os/exec may write
// to the two streams from separate goroutines, so all buffers share one lock.
type capture struct {
	mu       sync.Mutex
	stdout   lockedBuffer
	stderr   lockedBuffer
	combined lockedBuffer
}

type lockedBuffer struct {
	mu  *sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newCapture() *capture {
	c := &capture{}
	c.stdout.mu = &c.mu
	c.stderr.mu = &c.mu
	c.combined.mu = &c.mu
	return c
}

type streamWriter struct {
	c      *capture
	stream *bytes.Buffer
}

func (w *streamWriter) Write(p []byte) (int, error) {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	w.stream.Write(p)
	return w.c.combined.buf.Write(p)
}

func (c *capture) stdoutWriter() *streamWriter {
	return &streamWriter{c: c, stream: &c.stdout.buf}
}

func (c *capture) stderrWriter() *streamWriter {
	return &streamWriter{c: c, stream: &c.stderr.buf}
}
