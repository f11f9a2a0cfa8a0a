package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"mediadex/internal/cache"
	"mediadex/internal/caption"
	"mediadex/internal/config"
	"mediadex/internal/embed"
	"mediadex/internal/index"
	"mediadex/internal/model"
	"mediadex/internal/remote"
	"mediadex/internal/vecstore"
)

// App is the application layer between the CLI/API and the index services.
// It constructs all dependencies from config, exposes high-level operations,
// and manages store lifecycles on Close.
type App struct {
	cfg     *config.Config
	store   *cache.Store
	vectors *vecstore.Store
	source  index.RemoteSource

	synchronizer *index.Synchronizer
	pipeline     *index.Pipeline
	engine       *index.Engine

	logger  index.Logger
	logFile *os.File
	runLock *flock.Flock
}

// New creates a fully wired App from the given config. The caller must call
// Close when done.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	runID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, runID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	store, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening metadata cache: %w", err)
	}

	vectors, err := vecstore.Open(cfg.Vector.Path)
	if err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("opening vector database: %w", err)
	}

	source, err := remote.NewFromConfig(ctx, cfg.Remote)
	if err != nil {
		vectors.Close()
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating remote source: %w", err)
	}

	captioner := caption.NewClient(cfg.Captioner)
	embedder := embed.NewClient(cfg.Embedder, cfg.Vector.Dimensions)

	clock := index.RealClock{}
	idgen := index.UUIDGenerator{}

	return &App{
		cfg:          cfg,
		store:        store,
		vectors:      vectors,
		source:       source,
		synchronizer: index.NewSynchronizer(store, source, vectors, logger, clock, idgen),
		pipeline:     index.NewPipeline(store, source, captioner, embedder, vectors, logger, clock, idgen, cfg.Processing),
		engine:       index.NewEngine(vectors, embedder, cfg.Search, logger),
		logger:       logger,
		logFile:      logFile,
	}, nil
}

// AcquireRunLock takes the exclusive run lock for cache-mutating jobs so two
// processes never sync or process against the same databases.
func (a *App) AcquireRunLock() error {
	if err := os.MkdirAll(a.cfg.BaseDir, 0755); err != nil {
		return fmt.Errorf("creating base directory: %w", err)
	}

	lockPath := filepath.Join(a.cfg.BaseDir, "mediadex.lock")
	a.runLock = flock.New(lockPath)

	locked, err := a.runLock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring run lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another mediadex process holds the run lock at %s", lockPath)
	}
	return nil
}

// Sync runs a sync cycle; full forces a complete listing.
func (a *App) Sync(ctx context.Context, full bool) error {
	return a.synchronizer.Run(ctx, full)
}

// Process runs the pipeline over stale files of the given type ("" for all).
func (a *App) Process(ctx context.Context, fileType model.FileType) error {
	return a.pipeline.Run(ctx, fileType)
}

// Search answers a natural-language query.
func (a *App) Search(ctx context.Context, query string, limit int, fileType model.FileType) (*index.SearchResponse, error) {
	return a.engine.Search(ctx, query, limit, fileType)
}

// Status combines cache and vector-database counters.
type Status struct {
	Cache *model.CacheStats `json:"cache"`
	Index *model.IndexStats `json:"index"`
}

// Stats returns the combined status of both stores.
func (a *App) Stats(ctx context.Context) (*Status, error) {
	cacheStats, err := a.store.Stats()
	if err != nil {
		return nil, fmt.Errorf("reading cache stats: %w", err)
	}
	indexStats, err := a.vectors.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading index stats: %w", err)
	}
	return &Status{Cache: cacheStats, Index: indexStats}, nil
}

// CheckVectors scans stored embeddings for well-formedness.
func (a *App) CheckVectors(ctx context.Context) (*model.VectorReport, error) {
	return a.vectors.CheckVectors(ctx)
}

// JobStatuses returns snapshots of both background jobs.
func (a *App) JobStatuses() []index.JobStatus {
	return []index.JobStatus{a.synchronizer.Status(), a.pipeline.Status()}
}

// StartSync launches a sync run in the background. Returns ErrJobActive when
// a sync run is already active.
func (a *App) StartSync(full bool) error {
	if active(a.synchronizer.Status()) {
		return index.ErrJobActive
	}
	go func() {
		if err := a.synchronizer.Run(context.Background(), full); err != nil {
			a.logger.Error("background sync failed", "error", err)
		}
	}()
	return nil
}

// StartProcess launches a processing run in the background. Returns
// ErrJobActive when a processing run is already active.
func (a *App) StartProcess(fileType model.FileType) error {
	if active(a.pipeline.Status()) {
		return index.ErrJobActive
	}
	go func() {
		if err := a.pipeline.Run(context.Background(), fileType); err != nil {
			a.logger.Error("background processing failed", "error", err)
		}
	}()
	return nil
}

// StopSync requests a cooperative stop of the sync job.
func (a *App) StopSync() { a.synchronizer.Stop() }

// PauseSync requests a cooperative pause of the sync job.
func (a *App) PauseSync() { a.synchronizer.Pause() }

// ResumeSync continues a paused sync run in the background.
func (a *App) ResumeSync() error {
	if a.synchronizer.Status().State != index.JobPaused {
		return fmt.Errorf("no paused sync run to resume")
	}
	go func() {
		if err := a.synchronizer.Resume(context.Background()); err != nil {
			a.logger.Error("resumed sync failed", "error", err)
		}
	}()
	return nil
}

// StopProcess requests a cooperative stop of the processing job.
func (a *App) StopProcess() { a.pipeline.Stop() }

// PauseProcess requests a cooperative pause of the processing job.
func (a *App) PauseProcess() { a.pipeline.Pause() }

// ResumeProcess continues a paused processing run in the background.
func (a *App) ResumeProcess() error {
	if a.pipeline.Status().State != index.JobPaused {
		return fmt.Errorf("no paused processing run to resume")
	}
	go func() {
		if err := a.pipeline.Resume(context.Background()); err != nil {
			a.logger.Error("resumed processing failed", "error", err)
		}
	}()
	return nil
}

// Logger exposes the app logger for the API server.
func (a *App) Logger() index.Logger { return a.logger }

// Config returns the loaded configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Close releases the run lock and closes both stores and the log file.
func (a *App) Close() error {
	var firstErr error

	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing metadata cache: %w", err)
	}
	if err := a.vectors.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing vector database: %w", err)
	}
	if a.runLock != nil {
		if err := a.runLock.Unlock(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("releasing run lock: %w", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}

func active(st index.JobStatus) bool {
	return st.State == index.JobRunning || st.State == index.JobPaused
}
