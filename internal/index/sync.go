package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mediadex/internal/model"
)

// remote-call retry policy for transient listing failures.
const (
	remoteRetries      = 3
	remoteRetryBackoff = time.Second
)

// Synchronizer keeps the metadata cache consistent with the remote source.
// It runs as a logically single-threaded batch job: pages are fetched,
// classified, and applied one at a time, each page committing atomically.
type Synchronizer struct {
	store    MetadataStore
	remote   RemoteSource
	vectors  VectorStore // may be nil; deletions are then not propagated
	detector *ChangeDetector
	logger   Logger
	clock    Clock
	idgen    IDGenerator
	job      *Job
}

// NewSynchronizer creates a Synchronizer with the provided dependencies.
// vectors may be nil when no vector database is attached (metadata-only sync).
func NewSynchronizer(store MetadataStore, remote RemoteSource, vectors VectorStore, logger Logger, clock Clock, idgen IDGenerator) *Synchronizer {
	return &Synchronizer{
		store:    store,
		remote:   remote,
		vectors:  vectors,
		detector: NewChangeDetector(store),
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
		job:      NewJob(JobSync),
	}
}

// Status returns a read-only snapshot of the sync job state.
func (s *Synchronizer) Status() JobStatus { return s.job.Status() }

// Stop requests a cooperative stop at the next page boundary.
func (s *Synchronizer) Stop() { s.job.RequestStop() }

// Pause requests a cooperative pause at the next page boundary, preserving
// the page token for Resume.
func (s *Synchronizer) Pause() { s.job.RequestPause() }

// Run performs a sync cycle. With full set, the entire remote tree is paged
// through; otherwise an incremental delta sync runs against the stored
// cursor, falling back to a full sync when no cursor exists or the remote
// reports it invalid. Returns ErrJobActive if a sync run is already active.
func (s *Synchronizer) Run(ctx context.Context, full bool) error {
	now := s.clock.Now()
	if err := s.job.Begin(s.idgen.New(), now); err != nil {
		return err
	}

	err := s.run(ctx, full, "")
	s.job.Finish(err, s.clock.Now())
	return err
}

// Resume continues a paused sync run from its saved page token. Only full
// listings carry a resumable offset; a paused incremental run simply
// restarts from the committed cursor.
func (s *Synchronizer) Resume(ctx context.Context) error {
	offset, err := s.job.Resume(s.clock.Now())
	if err != nil {
		return err
	}

	err = s.run(ctx, offset != "", offset)
	s.job.Finish(err, s.clock.Now())
	return err
}

func (s *Synchronizer) run(ctx context.Context, full bool, resumeToken string) error {
	if full || resumeToken != "" {
		return s.fullSync(ctx, resumeToken)
	}

	cursor, err := s.store.Cursor()
	if err != nil {
		return fmt.Errorf("loading sync cursor: %w", err)
	}
	if cursor.Token == "" {
		s.logger.Info("no sync cursor, running full sync")
		return s.fullSync(ctx, "")
	}

	err = s.incrementalSync(ctx, cursor.Token)
	if errors.Is(err, ErrCursorInvalid) {
		s.logger.Warn("sync cursor rejected by remote, falling back to full sync")
		return s.fullSync(ctx, "")
	}
	return err
}

// fullSync pages through the entire remote tree. Deletions are inferred from
// absence only when the pass started from the beginning and every page
// applied cleanly. A resumed pass has an incomplete seen-set, so it
// refreshes metadata and the cursor but never deletes.
func (s *Synchronizer) fullSync(ctx context.Context, resumeToken string) error {
	seen := make(map[string]struct{})
	completePass := resumeToken == ""

	pageToken := resumeToken
	finalCursor := ""

	for {
		var page *ListPage
		err := withRetry(ctx, s.logger, s.clock, func() error {
			var err error
			page, err = s.remote.ListAll(ctx, pageToken)
			return err
		})
		if err != nil {
			return fmt.Errorf("listing remote page: %w", err)
		}

		if err := s.applyPage(ctx, page.Entries, nil, ""); err != nil {
			return err
		}
		for _, entry := range page.Entries {
			seen[entry.ID] = struct{}{}
		}

		if page.PageToken == "" {
			finalCursor = page.Cursor
			break
		}
		pageToken = page.PageToken

		if s.job.Interrupted() {
			s.job.SaveOffset(pageToken)
			s.logger.Info("full sync interrupted", "resume_token", pageToken)
			return nil
		}
	}

	if completePass {
		if err := s.deleteAbsent(ctx, seen); err != nil {
			return err
		}
	} else {
		s.logger.Warn("resumed full sync completed, skipping deletion inference")
	}

	if err := s.store.SetCursor(finalCursor, true, s.clock.Now()); err != nil {
		return fmt.Errorf("replacing sync cursor: %w", err)
	}

	s.logger.Info("full sync complete", "files_seen", len(seen))
	return nil
}

// incrementalSync applies delta pages since the stored cursor. The cursor
// advances with each fully applied page (atomically, in the same
// transaction), so an interrupted run resumes from the last committed page
// and unapplied deltas are re-delivered.
func (s *Synchronizer) incrementalSync(ctx context.Context, token string) error {
	for {
		var page *DeltaPage
		err := withRetry(ctx, s.logger, s.clock, func() error {
			var err error
			page, err = s.remote.ListDelta(ctx, token)
			return err
		})
		if err != nil {
			if errors.Is(err, ErrCursorInvalid) {
				return err
			}
			return fmt.Errorf("listing remote delta: %w", err)
		}

		if err := s.applyPage(ctx, page.Entries, page.DeletedIDs, page.Cursor); err != nil {
			return err
		}

		token = page.Cursor
		if !page.HasMore {
			break
		}

		if s.job.Interrupted() {
			// Cursor is already committed up to this page; a later run
			// picks up from here.
			s.logger.Info("incremental sync interrupted", "cursor", token)
			return nil
		}
	}

	if err := s.store.SetCursor(token, false, s.clock.Now()); err != nil {
		return fmt.Errorf("stamping incremental sync: %w", err)
	}

	s.logger.Info("incremental sync complete")
	return nil
}

// applyPage classifies one page of entries and commits it atomically,
// together with any explicit deletions and optional cursor advance.
func (s *Synchronizer) applyPage(ctx context.Context, entries []model.RemoteEntry, deletedIDs []string, cursorToken string) error {
	cs, err := s.detector.Classify(entries)
	if err != nil {
		return fmt.Errorf("classifying page: %w", err)
	}

	records := cs.Records(s.clock.Now())
	displaced, err := s.store.ApplyListing(records, deletedIDs, cursorToken)
	if err != nil {
		return fmt.Errorf("applying page: %w", err)
	}

	s.propagateDeletes(ctx, deletedIDs)
	s.propagateDeletes(ctx, displaced)

	for range cs.New {
		s.job.FileDone(nil)
	}
	for range cs.Modified {
		s.job.FileDone(nil)
	}
	for range cs.Unchanged {
		s.job.FileSkipped()
	}

	s.logger.Debug("sync page applied",
		"new", len(cs.New), "modified", len(cs.Modified),
		"unchanged", cs.UnchangedCount(), "deleted", len(deletedIDs))
	return nil
}

// deleteAbsent removes every cached record whose ID was not seen in a
// complete full listing.
func (s *Synchronizer) deleteAbsent(ctx context.Context, seen map[string]struct{}) error {
	ids, err := s.store.AllIDs()
	if err != nil {
		return fmt.Errorf("listing cached ids: %w", err)
	}

	var deleted []string
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			deleted = append(deleted, id)
		}
	}
	if len(deleted) == 0 {
		return nil
	}

	if _, err := s.store.ApplyListing(nil, deleted, ""); err != nil {
		return fmt.Errorf("removing absent files: %w", err)
	}
	s.propagateDeletes(ctx, deleted)

	s.logger.Info("removed files absent from full listing", "count", len(deleted))
	return nil
}

// propagateDeletes removes documents for deleted files from the vector
// database. Failures are logged, not fatal: a dangling document only costs a
// stale search result and is overwritten on re-creation.
func (s *Synchronizer) propagateDeletes(ctx context.Context, ids []string) {
	if s.vectors == nil {
		return
	}
	for _, id := range ids {
		if err := s.vectors.Delete(ctx, id); err != nil {
			s.logger.Warn("removing document from vector database", "id", id, "error", err)
		}
	}
}

// withRetry runs fn up to remoteRetries times with linear backoff through the
// injected clock. Context cancellation and the non-transient sentinels
// (invalid cursor, frames unsupported) are not retried.
func withRetry(ctx context.Context, logger Logger, clock Clock, fn func() error) error {
	var err error
	for attempt := 1; attempt <= remoteRetries; attempt++ {
		err = fn()
		if err == nil || errors.Is(err, ErrCursorInvalid) || errors.Is(err, ErrFrameUnavailable) || ctx.Err() != nil {
			return err
		}
		if attempt < remoteRetries {
			logger.Warn("remote call failed, retrying", "attempt", attempt, "error", err)
			select {
			case <-clock.After(time.Duration(attempt) * remoteRetryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}
