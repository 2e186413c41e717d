package cache

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// DefaultQueueDepth is the per-consumer chunk queue bound. A consumer that
// falls this many chunks behind blocks the build until it catches up or
// disconnects.
const DefaultQueueDepth = 32

// BuildFunc produces an artifact by writing it to w. The context is owned by
// the coordinator, not by any single requester, so one client disconnecting
// never cancels a build other clients are attached to.
type BuildFunc func(ctx context.Context, w io.Writer) error

// Coordinator ensures each artifact is built at most once at a time. The
// first request for a key starts the build; requests arriving while it runs
// attach to it and receive the stream from their attach point forward;
// requests arriving after it finished are served from the blob store.
type Coordinator struct {
	store      BlobStore
	logger     *slog.Logger
	queueDepth int

	mu     sync.Mutex
	builds map[string]*build
}

// NewCoordinator creates a coordinator over the given store. store may be
// nil, in which case artifacts are built per the single-flight rules but
// never persisted.
func NewCoordinator(store BlobStore, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:      store,
		logger:     logger,
		queueDepth: DefaultQueueDepth,
		builds:     make(map[string]*build),
	}
}

// Cached reports whether a finished artifact for key is in the store.
func (c *Coordinator) Cached(ctx context.Context, key string) bool {
	if c.store == nil {
		return false
	}
	ok, err := c.store.Exists(ctx, key)
	if err != nil {
		c.logger.Warn("blob store lookup failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}
	return ok
}

// GetOrBuild returns a reader over the artifact for key. Stored artifacts
// are read from the store and size is their length; otherwise the reader is
// attached to the running (or newly started) build and size is -1.
//
// A store failure is degraded, not fatal: the artifact is rebuilt and served
// even when the store is unreachable.
func (c *Coordinator) GetOrBuild(ctx context.Context, key, contentType string, fn BuildFunc) (io.ReadCloser, int64, error) {
	for {
		if c.store != nil {
			ok, err := c.store.Exists(ctx, key)
			if err != nil {
				c.logger.Warn("blob store lookup failed, building instead",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
			} else if ok {
				rc, size, err := c.store.Get(ctx, key)
				if err == nil {
					return rc, size, nil
				}
				c.logger.Warn("blob store read failed, building instead",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
			}
		}

		c.mu.Lock()
		b, ok := c.builds[key]
		if !ok {
			b = &build{key: key}
			// The creator attaches before the build goroutine starts so
			// it sees the stream from byte zero.
			cons := b.attach(c.queueDepth)
			c.builds[key] = b
			c.mu.Unlock()
			go c.run(b, contentType, fn)
			c.logger.Info("starting artifact build", slog.String("key", key))
			return cons, -1, nil
		}
		c.mu.Unlock()

		if cons := b.attach(c.queueDepth); cons != nil {
			c.logger.Debug("attaching to running build", slog.String("key", key))
			return cons, -1, nil
		}
		// The build finished between the registry lookup and the attach.
		// Go around again; the store check will pick the artifact up.
	}
}

// run executes the build and finishes all consumers. The store upload runs
// concurrently off a pipe so the artifact streams into the store as it is
// produced; the store's side makes the object visible only once the upload
// completes, so partial artifacts are never served.
func (c *Coordinator) run(b *build, contentType string, fn BuildFunc) {
	var (
		pw        *io.PipeWriter
		uploadErr chan error
	)
	if c.store != nil {
		var pr *io.PipeReader
		pr, pw = io.Pipe()
		b.upload = pw
		uploadErr = make(chan error, 1)
		go func() {
			uploadErr <- c.store.Put(context.Background(), b.key, pr, contentType)
		}()
	}

	err := fn(context.Background(), b)

	c.mu.Lock()
	delete(c.builds, b.key)
	c.mu.Unlock()

	b.finish(err)

	if err != nil {
		c.logger.Error("artifact build failed",
			slog.String("key", b.key),
			slog.String("error", err.Error()),
		)
	}

	if pw != nil {
		if err != nil {
			// Poison the pipe so the store abandons the upload.
			_ = pw.CloseWithError(err)
		} else {
			_ = pw.Close()
		}
		if perr := <-uploadErr; perr != nil && err == nil {
			c.logger.Warn("artifact upload failed",
				slog.String("key", b.key),
				slog.String("error", perr.Error()),
			)
		}
	}
}
