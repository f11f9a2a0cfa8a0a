package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"mediadex/internal/config"
	"mediadex/internal/model"
)

// Pipeline turns stale cached files into searchable documents: fetch content,
// generate a caption, extract tags, embed, write to the vector database, and
// only then mark the file processed. Files are worked in batches with a
// bounded worker pool inside each batch; a failure affects that file only.
type Pipeline struct {
	store     MetadataStore
	remote    RemoteSource
	captioner Captioner
	embedder  Embedder
	vectors   VectorStore
	logger    Logger
	clock     Clock
	idgen     IDGenerator
	cfg       config.ProcessingConfig
	job       *Job
}

// NewPipeline creates a Pipeline with the provided dependencies.
func NewPipeline(store MetadataStore, remote RemoteSource, captioner Captioner, embedder Embedder, vectors VectorStore, logger Logger, clock Clock, idgen IDGenerator, cfg config.ProcessingConfig) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Pipeline{
		store:     store,
		remote:    remote,
		captioner: captioner,
		embedder:  embedder,
		vectors:   vectors,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		cfg:       cfg,
		job:       NewJob(JobProcess),
	}
}

// Status returns a read-only snapshot of the processing job state.
func (p *Pipeline) Status() JobStatus { return p.job.Status() }

// Stop requests a cooperative stop at the next batch boundary.
func (p *Pipeline) Stop() { p.job.RequestStop() }

// Pause requests a cooperative pause at the next per-file checkpoint,
// preserving the type filter for Resume.
func (p *Pipeline) Pause() { p.job.RequestPause() }

// Run processes every stale file of the given type ("" for all). Returns
// ErrJobActive if a processing run is already active.
func (p *Pipeline) Run(ctx context.Context, fileType model.FileType) error {
	now := p.clock.Now()
	if err := p.job.Begin(p.idgen.New(), now); err != nil {
		return err
	}

	err := p.run(ctx, fileType)
	p.job.Finish(err, p.clock.Now())
	return err
}

// Resume continues a paused processing run. The staleness query re-runs from
// the top: files indexed before the pause no longer show up as stale, so the
// only state a pause has to preserve is the type filter. Resuming from a
// positional offset into a fresh stale list would skip files.
func (p *Pipeline) Resume(ctx context.Context) error {
	offset, err := p.job.Resume(p.clock.Now())
	if err != nil {
		return err
	}

	err = p.run(ctx, model.FileType(offset))
	p.job.Finish(err, p.clock.Now())
	return err
}

func (p *Pipeline) run(ctx context.Context, fileType model.FileType) error {
	files, err := p.store.ListStale(fileType)
	if err != nil {
		return fmt.Errorf("listing stale files: %w", err)
	}
	p.job.SetTotal(len(files))

	for i := 0; i < len(files); i += p.cfg.BatchSize {
		end := i + p.cfg.BatchSize
		if end > len(files) {
			end = len(files)
		}

		if err := p.runBatch(ctx, files[i:end]); err != nil {
			return err
		}

		if p.job.Interrupted() {
			p.job.SaveOffset(string(fileType))
			p.logger.Info("processing interrupted", "remaining", len(files)-end)
			return nil
		}
	}

	p.logger.Info("processing complete", "files", len(files))
	return nil
}

// runBatch works one batch through a bounded worker pool. Per-file failures
// are recorded on the job, not returned; only context cancellation aborts
// the run.
func (p *Pipeline) runBatch(ctx context.Context, batch []*model.FileRecord) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for _, rec := range batch {
		rec := rec
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// A stop or pause takes effect before the next file starts, not
			// at the batch boundary. Files left behind stay stale and are
			// picked up by the next run.
			if p.job.Interrupted() {
				return nil
			}

			if rec.FileType == model.FileTypeOther {
				p.job.FileSkipped()
				return nil
			}

			p.job.StartFile(rec.Path)
			err := p.processOne(ctx, rec)
			if err != nil {
				p.logger.Error("processing file failed", "path", rec.Path, "error", err)
			}
			p.job.FileDone(err)
			return nil
		})
	}

	return g.Wait()
}

// processOne runs the full pipeline for a single file. MarkProcessed happens
// last, only after the vector-database write is confirmed, so any failure
// leaves the file stale and it is retried on the next run.
func (p *Pipeline) processOne(ctx context.Context, rec *model.FileRecord) error {
	src, err := p.captionSource(ctx, rec)
	if err != nil {
		return err
	}
	outcome := generateCaption(ctx, p.captioner, rec, src, p.logger)
	if outcome.Origin == model.CaptionFallback {
		p.logger.Warn("using fallback caption", "path", rec.Path, "caption", outcome.Text)
	}

	vec, err := p.embedder.Embed(ctx, outcome.Text)
	if err != nil {
		return fmt.Errorf("embedding caption: %w", err)
	}
	if err := ValidateVector(vec, p.embedder.Dimensions()); err != nil {
		return err
	}

	doc := &model.ProcessedDocument{
		ID:            rec.ID,
		Path:          rec.Path,
		Name:          rec.Name,
		FileType:      rec.FileType,
		Size:          rec.Size,
		ModifiedAt:    rec.ModifiedAt,
		ProcessedAt:   p.clock.Now(),
		Caption:       outcome.Text,
		CaptionOrigin: outcome.Origin,
		Tags:          ExtractTags(outcome.Text),
		ContentHash:   rec.ContentHash,
		Embedding:     vec,
	}
	if err := p.vectors.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("writing document: %w", err)
	}

	if err := p.store.MarkProcessed(rec.ID, rec.ContentHash); err != nil {
		return fmt.Errorf("marking processed: %w", err)
	}

	p.logger.Debug("file indexed",
		"path", rec.Path, "caption_origin", outcome.Origin, "frames", outcome.FramesUsed)
	return nil
}

// captionSource gathers the visual material for a file. Fetches are retried
// with backoff; an exhausted retry fails the file, which stays stale and is
// retried on the next run. The filename fallback is reserved for captioner
// failures, never for missing bytes. A remote that cannot sample frames at
// all yields an empty video source instead.
func (p *Pipeline) captionSource(ctx context.Context, rec *model.FileRecord) (CaptionSource, error) {
	switch rec.FileType {
	case model.FileTypeImage:
		data, err := p.fetchBytes(ctx, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("fetching image: %w", err)
		}
		return ImageSource{Data: data}, nil

	case model.FileTypeVideo:
		interval := time.Duration(p.cfg.FrameIntervalSeconds) * time.Second
		duration := time.Duration(rec.DurationSeconds * float64(time.Second))
		times := FrameTimes(duration, p.cfg.MaxFramesPerVideo, interval)

		var frames [][]byte
		for _, offset := range times {
			frame, err := p.fetchFrame(ctx, rec.ID, offset)
			if errors.Is(err, ErrFrameUnavailable) {
				p.logger.Warn("frame sampling unsupported by remote", "path", rec.Path)
				break
			}
			if err != nil {
				return nil, fmt.Errorf("sampling frame at %s: %w", offset, err)
			}
			frames = append(frames, frame)
		}
		return VideoSource{Frames: frames}, nil
	}

	return ImageSource{}, nil
}

func (p *Pipeline) fetchBytes(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := withRetry(ctx, p.logger, p.clock, func() error {
		rc, err := p.remote.GetBytes(ctx, id)
		if err != nil {
			return err
		}
		defer rc.Close()
		data, err = io.ReadAll(rc)
		return err
	})
	return data, err
}

func (p *Pipeline) fetchFrame(ctx context.Context, id string, offset time.Duration) ([]byte, error) {
	var frame []byte
	err := withRetry(ctx, p.logger, p.clock, func() error {
		var err error
		frame, err = p.remote.FrameBytes(ctx, id, offset)
		return err
	})
	return frame, err
}
