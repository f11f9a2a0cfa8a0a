package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mediadex/internal/api"
	"mediadex/internal/app"
	"mediadex/internal/config"
	"mediadex/internal/model"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
func newApp(ctx context.Context) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

var rootCmd = &cobra.Command{
	Use:   "mediadex",
	Short: "Semantic index for a remote media collection",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Remote:      %s\n", cfg.Remote.Type)
		fmt.Printf("Cache DB:    %s\n", cfg.Cache.Path)
		fmt.Printf("Vector DB:   %s (%d dimensions)\n", cfg.Vector.Path, cfg.Vector.Dimensions)
		fmt.Printf("Captioner:   %s\n", cfg.Captioner.BaseURL)
		fmt.Printf("Embedder:    %s\n", cfg.Embedder.BaseURL)
		fmt.Printf("Server Addr: %s\n", cfg.Server.Addr)
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the metadata cache with the remote source",
	RunE: func(cmd *cobra.Command, args []string) error {
		full, _ := cmd.Flags().GetBool("full")

		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.AcquireRunLock(); err != nil {
			return err
		}

		if err := a.Sync(ctx, full); err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		st := a.JobStatuses()[0]
		fmt.Printf("Sync %s: %d updated, %d unchanged, %d failed\n",
			st.State, st.Processed, st.Skipped, st.Failed)
		return nil
	},
}

// process command
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Caption, embed, and index stale files",
	RunE: func(cmd *cobra.Command, args []string) error {
		fileType, err := fileTypeFlag(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.AcquireRunLock(); err != nil {
			return err
		}

		if err := a.Process(ctx, fileType); err != nil {
			return fmt.Errorf("processing failed: %w", err)
		}

		st := a.JobStatuses()[1]
		fmt.Printf("Processing %s: %d indexed, %d skipped, %d failed\n",
			st.State, st.Processed, st.Skipped, st.Failed)
		for _, msg := range st.RecentErrors {
			fmt.Printf("  error: %s\n", msg)
		}
		return nil
	},
}

// search command
var searchCmd = &cobra.Command{
	Use:   "search QUERY...",
	Short: "Search the index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		fileType, err := fileTypeFlag(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		resp, err := a.Search(ctx, strings.Join(args, " "), limit, fileType)
		if err != nil {
			return err
		}

		if !resp.VectorSearched {
			fmt.Println("(semantic search unavailable, text matches only)")
		}
		if len(resp.Results) == 0 {
			fmt.Println("No results.")
			return nil
		}

		for _, res := range resp.Results {
			fmt.Printf("%.2f  [%s/%s]  %s\n      %s\n",
				res.Score, res.Document.FileType, res.Source,
				res.Document.Path, res.Document.Caption)
		}
		return nil
	},
}

// stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "View cache and index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.Stats(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Cached files:     %d (%d bytes of media)\n", st.Cache.TotalFiles, st.Cache.TotalSize)
		for ft, n := range st.Cache.ByType {
			fmt.Printf("  %-8s %d\n", ft, n)
		}
		fmt.Printf("Cache DB size:    %d bytes\n", st.Cache.DatabaseSizeBytes)
		fmt.Printf("Cursor:           %s\n", orNone(st.Cache.CursorToken))
		fmt.Printf("Last full sync:   %s\n", formatTime(st.Cache.LastFullSyncAt))
		fmt.Printf("Last incremental: %s\n", formatTime(st.Cache.LastIncrementalSyncAt))
		fmt.Printf("Indexed documents: %d\n", st.Index.TotalDocuments)
		for ft, n := range st.Index.ByType {
			fmt.Printf("  %-8s %d\n", ft, n)
		}
		return nil
	},
}

// vectors command
var vectorsCmd = &cobra.Command{
	Use:   "vectors",
	Short: "Check stored embedding vectors",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.CheckVectors(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Documents:   %d\n", report.Documents)
		fmt.Printf("Well-formed: %d\n", report.WellFormed)
		fmt.Printf("Malformed:   %d\n", report.Malformed)
		for dim, n := range report.SampleDims {
			fmt.Printf("  %d dimensions: %d\n", dim, n)
		}
		if report.MalformedID != "" {
			fmt.Printf("First malformed document: %s\n", report.MalformedID)
		}
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.AcquireRunLock(); err != nil {
			return err
		}

		server := api.NewServer(a)
		errCh := make(chan error, 1)
		go func() { errCh <- server.Start(a.Config().Server.Addr) }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Stop(shutdownCtx)
	},
}

// fileTypeFlag parses the --type flag shared by process and search.
func fileTypeFlag(cmd *cobra.Command) (model.FileType, error) {
	raw, _ := cmd.Flags().GetString("type")
	switch raw {
	case "":
		return "", nil
	case "image":
		return model.FileTypeImage, nil
	case "video":
		return model.FileTypeVideo, nil
	case "other":
		return model.FileTypeOther, nil
	default:
		return "", fmt.Errorf("unknown file type %q (want image, video, or other)", raw)
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	syncCmd.Flags().Bool("full", false, "Force a complete listing instead of an incremental delta")
	processCmd.Flags().String("type", "", "Only process files of this type (image, video)")
	searchCmd.Flags().Int("limit", 0, "Maximum number of results")
	searchCmd.Flags().String("type", "", "Only return files of this type (image, video)")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(vectorsCmd)
	rootCmd.AddCommand(serveCmd)
}
