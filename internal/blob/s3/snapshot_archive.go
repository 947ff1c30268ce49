package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

// snapshotPrefix is the root of archived snapshots.
const snapshotPrefix = "snapshots/"

// multipartThreshold switches large snapshots to a multipart upload.
const multipartThreshold = 8 * 1024 * 1024

// SnapshotArchive implements domain.SnapshotArchive on any blob store.
// Snapshots are written as JSON under snapshots/YYYY/MM/DD/<id>.json.
type SnapshotArchive struct {
	writer domain.ObjectWriter
	reader domain.ObjectReader
}

var _ domain.SnapshotArchive = (*SnapshotArchive)(nil)

// NewSnapshotArchive creates a SnapshotArchive.
func NewSnapshotArchive(writer domain.ObjectWriter, reader domain.ObjectReader) *SnapshotArchive {
	return &SnapshotArchive{writer: writer, reader: reader}
}

// SnapshotPath returns the object path for snap.
func SnapshotPath(snap domain.Snapshot) string {
	return snapshotPrefix + snap.TakenAt.UTC().Format("2006/01/02") + "/" + snap.ID + ".json"
}

// Archive uploads snap and returns its path. Snapshot IDs are immutable, so
// an ID that is already archived is not uploaded again.
func (a *SnapshotArchive) Archive(ctx context.Context, snap domain.Snapshot) (string, error) {
	if snap.ID == "" {
		return "", fmt.Errorf("s3blob: archive snapshot: empty id")
	}
	p := SnapshotPath(snap)
	exists, err := a.reader.Exists(ctx, p)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive snapshot %s: %w", snap.ID, err)
	}
	if exists {
		return p, nil
	}

	buf, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive snapshot marshal: %w", err)
	}
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, p, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, p, bytes.NewReader(buf), "application/json")
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive snapshot %s: %w", snap.ID, err)
	}
	return p, nil
}

// LatestArchived returns the most recently written snapshot. It returns
// domain.ErrNotFound when the archive is empty.
func (a *SnapshotArchive) LatestArchived(ctx context.Context) (domain.Snapshot, error) {
	infos, err := a.reader.List(ctx, snapshotPrefix)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("s3blob: latest snapshot: %w", err)
	}

	var latest *domain.ObjectInfo
	for i := range infos {
		info := &infos[i]
		if path.Ext(info.Path) != ".json" {
			continue
		}
		if latest == nil || newer(info, latest) {
			latest = info
		}
	}
	if latest == nil {
		return domain.Snapshot{}, fmt.Errorf("s3blob: latest snapshot: %w", domain.ErrNotFound)
	}

	body, err := a.reader.Get(ctx, latest.Path)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("s3blob: latest snapshot: %w", err)
	}
	defer body.Close()

	var snap domain.Snapshot
	if err := json.NewDecoder(body).Decode(&snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("s3blob: decode snapshot %s: %w", latest.Path, err)
	}
	return snap, nil
}

// newer orders by day partition first, then modification time.
func newer(a, b *domain.ObjectInfo) bool {
	da, db := path.Dir(a.Path), path.Dir(b.Path)
	if da != db {
		return da > db
	}
	if !a.LastModified.Equal(b.LastModified) {
		return a.LastModified.After(b.LastModified)
	}
	return a.Path > b.Path
}
