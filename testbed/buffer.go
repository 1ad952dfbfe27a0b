package testbed

import (
	"sync"

	"github.com/acarl005/stripansi"
)

const defaultStderrTailBytes = 64 * 1024 // kept in memory per class process

// tailBuffer keeps only the last N bytes written to it so the end of a class's
// stderr can be attached to error records without holding the whole stream.
type tailBuffer struct {
	maxBytes int

	mu       sync.Mutex
	total    int64
	contents []byte
}

func newTailBuffer(maxBytes int) *tailBuffer {
	if maxBytes <= 0 {
		maxBytes = defaultStderrTailBytes
	}
	return &tailBuffer{
		maxBytes: maxBytes,
		contents: make([]byte, 0, maxBytes),
	}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += int64(len(p))
	b.contents = append(b.contents, p...)
	if len(b.contents) > b.maxBytes {
		b.contents = b.contents[len(b.contents)-b.maxBytes:]
	}
	return len(p), nil
}

// String returns the retained tail with ANSI escape sequences removed
func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return stripansi.Strip(string(b.contents))
}

func (b *tailBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.contents)) < b.total
}
