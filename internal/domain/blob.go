package domain

import (
	"context"
	"io"
	"time"
)

// ObjectInfo is the listing metadata of a stored object. Path is relative to
// the store's configured prefix.
type ObjectInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// ObjectWriter stores objects. PutMultipart is for bodies too large for a
// single request.
type ObjectWriter interface {
	Put(ctx context.Context, path string, body io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, body io.Reader, partSize int64) error
}

// ObjectReader reads stored objects. Get returns ErrNotFound for a missing
// path.
type ObjectReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// SnapshotArchive keeps a cold copy of snapshots in object storage, for
// recovery when the snapshot database is lost.
type SnapshotArchive interface {
	Archive(ctx context.Context, snap Snapshot) (string, error)
	LatestArchived(ctx context.Context) (Snapshot, error)
}
