package transport

import (
	"strings"
	"sync"
)

// Transcript accumulates raw request/response dumps. The content is
// unscrubbed; pass String() through the adapter's Scrub before writing it
// anywhere.
type Transcript struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (t *Transcript) write(direction string, raw []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.WriteString(direction)
	t.buf.WriteString(" ")
	t.buf.Write(raw)
	t.buf.WriteString("\n")
}

// String returns everything captured so far.
func (t *Transcript) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

// Reset discards the captured dumps.
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Reset()
}
