package s3blob

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

type memBlobs struct {
	objects map[string][]byte
	mod     map[string]time.Time
	now     time.Time
}

func newMemBlobs() *memBlobs {
	return &memBlobs{
		objects: make(map[string][]byte),
		mod:     make(map[string]time.Time),
		now:     time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memBlobs) Put(_ context.Context, p string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.now = m.now.Add(time.Second)
	m.objects[p] = b
	m.mod[p] = m.now
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, p string, data io.Reader, _ int64) error {
	return m.Put(ctx, p, data, "")
}

func (m *memBlobs) Get(_ context.Context, p string) (io.ReadCloser, error) {
	b, ok := m.objects[p]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.ObjectInfo, error) {
	var out []domain.ObjectInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.ObjectInfo{Path: p, Size: int64(len(b)), LastModified: m.mod[p]})
		}
	}
	return out, nil
}

func (m *memBlobs) Exists(_ context.Context, p string) (bool, error) {
	_, ok := m.objects[p]
	return ok, nil
}

func TestSnapshotPath(t *testing.T) {
	snap := domain.Snapshot{ID: "abc", TakenAt: time.Date(2026, 3, 7, 23, 0, 0, 0, time.FixedZone("X", -2*3600))}
	assert.Equal(t, "snapshots/2026/03/08/abc.json", SnapshotPath(snap))
}

func TestSnapshotArchiveRoundTrip(t *testing.T) {
	blobs := newMemBlobs()
	a := NewSnapshotArchive(blobs, blobs)
	ctx := context.Background()

	_, err := a.LatestArchived(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	day1 := time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC)
	_, err = a.Archive(ctx, domain.Snapshot{ID: "z-first", TakenAt: day1})
	require.NoError(t, err)
	_, err = a.Archive(ctx, domain.Snapshot{ID: "a-second", TakenAt: day1.Add(time.Minute)})
	require.NoError(t, err)
	_, err = a.Archive(ctx, domain.Snapshot{ID: "old-day", TakenAt: day1.Add(-24 * time.Hour)})
	require.NoError(t, err)

	snap, err := a.LatestArchived(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a-second", snap.ID, "newest day partition, then newest write")

	_, err = a.Archive(ctx, domain.Snapshot{})
	assert.Error(t, err)
}

func TestSnapshotArchiveSkipsExisting(t *testing.T) {
	blobs := newMemBlobs()
	a := NewSnapshotArchive(blobs, blobs)
	ctx := context.Background()
	at := time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC)

	p1, err := a.Archive(ctx, domain.Snapshot{ID: "s1", TakenAt: at})
	require.NoError(t, err)
	written := blobs.mod[p1]

	p2, err := a.Archive(ctx, domain.Snapshot{ID: "s1", TakenAt: at})
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, written, blobs.mod[p1])
}

func TestObjectKeyPrefix(t *testing.T) {
	c := &Client{prefix: normalisePrefix("/bots/convex/")}
	assert.Equal(t, "bots/convex/snapshots/x.json", c.objectKey("/snapshots/x.json"))
	assert.Equal(t, "snapshots/x.json", c.logicalPath("bots/convex/snapshots/x.json"))
	assert.Equal(t, "", normalisePrefix(""))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://x", normaliseEndpoint("http://x", true))
}
