package benchmark

import (
	"context"
	"io"
	"sync"
)

var zeroPattern = []byte{0}

// Stream is a bounded synthetic payload. Every chunk is paid for on the
// limiter before it is handed to the reader, so whoever consumes the stream
// is held to the bucket's rate.
type Stream struct {
	ctx     context.Context
	limiter *TokenBucket
	pattern []byte
	chunk   int64

	mu        sync.Mutex
	remaining int64
	offset    int64 // position in the repeating pattern
}

// NewStream returns a stream of exactly length bytes, released at most chunk
// bytes per Read. An empty pattern means zero bytes.
func NewStream(ctx context.Context, length, chunk int64, limiter *TokenBucket, pattern []byte) *Stream {
	if len(pattern) == 0 {
		pattern = zeroPattern
	}
	if chunk <= 0 {
		chunk = length
	}
	return &Stream{
		ctx:       ctx,
		limiter:   limiter,
		pattern:   pattern,
		chunk:     chunk,
		remaining: max(length, 0),
	}
}

// Remaining reports how many bytes have not been read yet.
func (s *Stream) Remaining() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.remaining == 0 {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	n := min(int64(len(p)), s.chunk, s.remaining)
	if err := s.limiter.Acquire(s.ctx, n); err != nil {
		return 0, err
	}
	s.fill(p[:n])
	s.remaining -= n
	return int(n), nil
}

func (s *Stream) fill(p []byte) {
	if len(s.pattern) == 1 {
		b := s.pattern[0]
		for i := range p {
			p[i] = b
		}
		return
	}
	for len(p) > 0 {
		pos := s.offset % int64(len(s.pattern))
		c := copy(p, s.pattern[pos:])
		p = p[c:]
		s.offset += int64(c)
	}
}
