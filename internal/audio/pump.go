package audio

import (
	"errors"
	"io"
	"sync"
)

// pumpChunks copies src into sink until EOF or a read failure. sink must
// copy the bytes it keeps.
func pumpChunks(src io.Reader, chunkSize int, sink func([]byte)) error {
	if chunkSize < 256 {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			sink(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
	}
}

// sliceBuffer accumulates captured bytes and hands them out in order.
type sliceBuffer struct {
	mu      sync.Mutex
	pending []byte

	flushMu sync.Mutex
}

func (b *sliceBuffer) append(p []byte) {
	b.mu.Lock()
	b.pending = append(b.pending, p...)
	b.mu.Unlock()
}

// flush delivers everything buffered so far. Concurrent flushes are
// serialized so chunks arrive in capture order.
func (b *sliceBuffer) flush(deliver func([]byte)) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	chunk := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(chunk) > 0 && deliver != nil {
		deliver(chunk)
	}
}
