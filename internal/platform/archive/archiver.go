// Package archive persists raw provider wire messages to object storage so
// transactions can be audited and replayed. Failures here never propagate
// into the booking path.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultContentType  = "application/octet-stream"
)

var errBucketRequired = errors.New("archive: bucket is required")

// objectStore abstracts bucket writes for testing.
type objectStore interface {
	NewWriter(ctx context.Context, name, contentType string) io.WriteCloser
}

type bucketStore struct {
	bucket *storage.BucketHandle
}

func (s bucketStore) NewWriter(ctx context.Context, name, contentType string) io.WriteCloser {
	writer := s.bucket.Object(name).NewWriter(ctx)
	writer.ContentType = contentType
	return writer
}

// Archiver writes wire messages into a bucket, one object per message.
type Archiver struct {
	store        objectStore
	logger       *zap.Logger
	clock        func() time.Time
	writeTimeout time.Duration
	contentType  string
	entropy      io.Reader
}

// Option customises archiver behaviour.
type Option func(*Archiver)

// WithLogger attaches a logger for write failures.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Archiver) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithClock injects a custom clock.
func WithClock(clock func() time.Time) Option {
	return func(a *Archiver) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithWriteTimeout bounds each object write.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(a *Archiver) {
		if timeout > 0 {
			a.writeTimeout = timeout
		}
	}
}

// WithContentType overrides the stored content type.
func WithContentType(contentType string) Option {
	return func(a *Archiver) {
		if contentType != "" {
			a.contentType = contentType
		}
	}
}

// NewArchiver constructs an archiver writing into the provided bucket.
func NewArchiver(bucket *storage.BucketHandle, opts ...Option) (*Archiver, error) {
	if bucket == nil {
		return nil, errBucketRequired
	}
	return newArchiver(bucketStore{bucket: bucket}, opts...), nil
}

func newArchiver(store objectStore, opts ...Option) *Archiver {
	archiver := &Archiver{
		store:        store,
		logger:       zap.NewNop(),
		clock:        time.Now,
		writeTimeout: defaultWriteTimeout,
		contentType:  defaultContentType,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(archiver)
		}
	}
	archiver.entropy = ulid.Monotonic(rand.New(rand.NewSource(archiver.clock().UnixNano())), 0)
	return archiver
}

// Archive stores one payload under a date-partitioned object name derived
// from the message kind and transaction reference.
func (a *Archiver) Archive(ctx context.Context, kind, reference string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}

	name := a.objectName(kind, reference)

	writeCtx, cancel := context.WithTimeout(ctx, a.writeTimeout)
	defer cancel()

	writer := a.store.NewWriter(writeCtx, name, a.contentType)
	if _, err := writer.Write(payload); err != nil {
		_ = writer.Close()
		return fmt.Errorf("archive: write %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("archive: close %s: %w", name, err)
	}

	a.logger.Debug("wire message archived",
		zap.String("object", name),
		zap.Int("bytes", len(payload)))
	return nil
}

// objectName partitions by kind and UTC date so operators can prune by
// prefix. The ULID suffix keeps retried messages from overwriting each other.
func (a *Archiver) objectName(kind, reference string) string {
	now := a.clock().UTC()
	id := ulid.MustNew(ulid.Timestamp(now), a.entropy)
	return fmt.Sprintf("%s/%s/%s-%s",
		sanitizeSegment(kind),
		now.Format("2006/01/02"),
		sanitizeSegment(reference),
		id.String())
}

func sanitizeSegment(segment string) string {
	trimmed := strings.TrimSpace(segment)
	if trimmed == "" {
		return "unknown"
	}
	replacer := strings.NewReplacer("/", "-", "\\", "-", " ", "-", "#", "-", "?", "-")
	return replacer.Replace(trimmed)
}
