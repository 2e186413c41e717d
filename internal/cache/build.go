package cache

import (
	"io"
	"sync"
)

// build is one in-flight artifact construction. It implements io.Writer for
// the build function; every write is forwarded to the store upload pipe and
// fanned out to all attached consumers. Nothing is buffered beyond the
// per-consumer queues, so artifact size never translates into memory.
type build struct {
	key string

	// upload feeds the blob store while the build runs. It is touched only
	// from the build goroutine, so no lock guards it.
	upload *io.PipeWriter

	mu        sync.Mutex
	consumers []*consumer
	done      bool
	err       error
}

// Write fans p out to every attached consumer and to the store upload. A
// consumer with a full queue blocks the build until it drains or
// disconnects; a disconnected consumer is detached without affecting the
// others.
func (b *build) Write(p []byte) (int, error) {
	if b.upload != nil {
		if _, err := b.upload.Write(p); err != nil {
			// The store side gave up; the live stream carries on.
			b.upload = nil
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.consumers) == 0 {
		return len(p), nil
	}

	// The caller may reuse p after Write returns, but queued chunks outlive
	// this call.
	chunk := append([]byte(nil), p...)

	i := 0
	for i < len(b.consumers) {
		c := b.consumers[i]
		select {
		case c.chunks <- chunk:
			i++
		case <-c.detached:
			close(c.chunks)
			b.consumers = append(b.consumers[:i], b.consumers[i+1:]...)
		}
	}
	return len(p), nil
}

// attach registers a new consumer. It receives everything written from this
// point forward; the head of the artifact is covered by the store once the
// build lands there. Returns nil when the build has already finished.
func (b *build) attach(queueDepth int) *consumer {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done {
		return nil
	}

	c := &consumer{
		chunks:   make(chan []byte, queueDepth),
		detached: make(chan struct{}),
	}
	b.consumers = append(b.consumers, c)
	return c
}

// finish marks the build complete and releases all consumers. On failure the
// error is delivered to each consumer after its remaining queued chunks.
func (b *build) finish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.done = true
	b.err = err
	for _, c := range b.consumers {
		c.err = err
		close(c.chunks)
	}
	b.consumers = nil
}

// consumer is one attached reader of a build. Close detaches it; the build
// carries on for the remaining consumers and the store upload.
type consumer struct {
	chunks   chan []byte
	detached chan struct{}
	once     sync.Once

	// err is set before chunks is closed and read only after the close is
	// observed.
	err error

	cur []byte
}

func (c *consumer) Read(p []byte) (int, error) {
	for len(c.cur) == 0 {
		chunk, ok := <-c.chunks
		if !ok {
			if c.err != nil {
				return 0, c.err
			}
			return 0, io.EOF
		}
		c.cur = chunk
	}
	n := copy(p, c.cur)
	c.cur = c.cur[n:]
	return n, nil
}

// Close detaches the consumer from the build.
func (c *consumer) Close() error {
	c.once.Do(func() { close(c.detached) })
	return nil
}
