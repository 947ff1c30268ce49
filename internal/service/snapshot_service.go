package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/convexbot/internal/domain"
	"github.com/alanyoungcy/convexbot/internal/metrics"
)

// SnapshotServiceConfig controls snapshot retention and archiving.
type SnapshotServiceConfig struct {
	// Keep is how many snapshots to retain in the primary store. Zero keeps
	// all of them.
	Keep int
	// ArchiveEvery archives one in every ArchiveEvery saved snapshots. Zero
	// disables archiving.
	ArchiveEvery int
	Timeout      time.Duration
}

// SnapshotService persists control-loop snapshots off the tick. Only the
// newest pending snapshot is kept: a snapshot superseded before it was
// written carries no information the next one lacks.
type SnapshotService struct {
	cfg     SnapshotServiceConfig
	store   domain.SnapshotStore
	archive domain.SnapshotArchive
	pending chan domain.Snapshot
	saved   int
	logger  *slog.Logger
}

// NewSnapshotService creates a SnapshotService. Either store or archive may
// be nil.
func NewSnapshotService(cfg SnapshotServiceConfig, store domain.SnapshotStore, archive domain.SnapshotArchive, logger *slog.Logger) *SnapshotService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SnapshotService{
		cfg:     cfg,
		store:   store,
		archive: archive,
		pending: make(chan domain.Snapshot, 1),
		logger:  logger.With(slog.String("component", "snapshot_service")),
	}
}

// Submit queues snap, replacing any snapshot not yet written.
func (s *SnapshotService) Submit(snap domain.Snapshot) {
	for {
		select {
		case s.pending <- snap:
			return
		default:
		}
		select {
		case <-s.pending:
			metrics.RecordQueueDrop("snapshots", "superseded")
		default:
		}
	}
}

// Run writes submitted snapshots until ctx is cancelled. A snapshot still
// pending at shutdown is written with a fresh deadline.
func (s *SnapshotService) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			select {
			case snap := <-s.pending:
				final, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
				err := s.Persist(final, snap)
				cancel()
				if err != nil {
					s.logger.Error("final snapshot failed", slog.String("error", err.Error()))
				}
			default:
			}
			return nil
		case snap := <-s.pending:
			if err := s.Persist(ctx, snap); err != nil {
				s.logger.ErrorContext(ctx, "snapshot failed",
					slog.String("snapshot_id", snap.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Persist saves snap, prunes old snapshots and archives on schedule. A
// failed archive or prune does not fail the save.
func (s *SnapshotService) Persist(ctx context.Context, snap domain.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if s.store != nil {
		if err := s.store.Save(ctx, snap); err != nil {
			return fmt.Errorf("snapshot_service: save %s: %w", snap.ID, err)
		}
		if s.cfg.Keep > 0 {
			if n, err := s.store.Prune(ctx, s.cfg.Keep); err != nil {
				s.logger.WarnContext(ctx, "prune failed", slog.String("error", err.Error()))
			} else if n > 0 {
				s.logger.DebugContext(ctx, "pruned snapshots", slog.Int64("removed", n))
			}
		}
	}
	s.saved++

	if s.archive != nil && s.shouldArchive() {
		path, err := s.archive.Archive(ctx, snap)
		if err != nil {
			if s.store == nil {
				return fmt.Errorf("snapshot_service: archive %s: %w", snap.ID, err)
			}
			s.logger.WarnContext(ctx, "archive failed", slog.String("error", err.Error()))
		} else {
			s.logger.DebugContext(ctx, "snapshot archived", slog.String("path", path))
		}
	}
	return nil
}

// shouldArchive archives every snapshot when the archive is the only
// store, otherwise the first and then one in every ArchiveEvery.
func (s *SnapshotService) shouldArchive() bool {
	if s.store == nil {
		return true
	}
	return s.cfg.ArchiveEvery > 0 && (s.saved-1)%s.cfg.ArchiveEvery == 0
}

// Latest returns the newest snapshot, preferring the primary store and
// falling back to the archive. It returns domain.ErrNotFound when neither
// holds one.
func (s *SnapshotService) Latest(ctx context.Context) (domain.Snapshot, error) {
	var errs []error
	if s.store != nil {
		snap, err := s.store.Latest(ctx)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "primary snapshot read failed, trying archive", slog.String("error", err.Error()))
		}
		errs = append(errs, err)
	}
	if s.archive != nil {
		snap, err := s.archive.LatestArchived(ctx)
		if err == nil {
			return snap, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return domain.Snapshot{}, fmt.Errorf("snapshot_service: %w: no snapshot store", domain.ErrNotFound)
	}
	return domain.Snapshot{}, fmt.Errorf("snapshot_service: latest: %w", errors.Join(errs...))
}
