// Package app provides application initialization and wiring.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jobrunner/verto/internal/adapters/archive"
	"github.com/jobrunner/verto/internal/adapters/crs"
	"github.com/jobrunner/verto/internal/adapters/engine"
	"github.com/jobrunner/verto/internal/adapters/httpapi"
	"github.com/jobrunner/verto/internal/adapters/metrics"
	"github.com/jobrunner/verto/internal/adapters/reproject"
	"github.com/jobrunner/verto/internal/adapters/storage"
	tlsAdapter "github.com/jobrunner/verto/internal/adapters/tls"
	"github.com/jobrunner/verto/internal/adapters/watcher"
	"github.com/jobrunner/verto/internal/application"
	"github.com/jobrunner/verto/internal/config"
	"github.com/jobrunner/verto/internal/domain"
	"github.com/jobrunner/verto/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Engine     *engine.GDALEngine
	Dispatcher *application.Dispatcher
	Grouper    *application.Grouper
	Runner     *application.Runner
	Preview    *application.PreviewService
	Resolver   *crs.Resolver
	Archiver   *archive.Zipper
	HTTPServer *httpapi.Server
	TLSServer  *tlsAdapter.Server
	Watcher    *watcher.Watcher
	Metrics    *metrics.Collector
	collector  output.MetricsCollector
}

// New creates and initializes a new application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize metrics
	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector("verto")
	}

	if app.Metrics != nil {
		app.collector = app.Metrics
	} else {
		app.collector = &output.NoOpMetrics{}
	}

	// Initialize the GDAL engine and probe it once so a missing toolchain
	// surfaces at startup, not on the first request.
	app.Engine = engine.NewGDALEngine(engine.Config{
		Ogr2ogrPath: cfg.Engine.Ogr2ogrPath,
		OgrinfoPath: cfg.Engine.OgrinfoPath,
		Timeout:     cfg.Engine.Timeout,
		WorkDir:     cfg.Engine.WorkDir,
	}, logger)

	engineVersion, err := app.Engine.Version(ctx)
	if err != nil {
		logger.Warn("engine version probe failed", "error", err)
		engineVersion = "unavailable"
	} else {
		logger.Info("conversion engine ready", "version", engineVersion)
	}

	// Core services
	app.Dispatcher = application.NewDispatcher(app.Engine, logger)
	app.Archiver = archive.NewZipper()
	app.Grouper = application.NewGrouper(logger)
	app.Runner = application.NewRunner(
		app.Dispatcher,
		app.Archiver,
		application.NewClassifier(),
		app.collector,
		logger,
	)

	// CRS resolution for conversion options
	app.Resolver = crs.NewResolver(crs.Config{
		Endpoints: cfg.CRS.Endpoints,
		Timeout:   cfg.CRS.Timeout,
		Notify: func(scope output.CrsScope, code, resolved string) {
			logger.Info("CRS code resolved",
				"scope", string(scope), "code", code, "definition", resolved)
		},
	}, app.collector, logger)

	// The preview reprojector keeps its own resolver so a busy options lookup
	// never blocks a bbox transform.
	reprojector := reproject.NewReprojector(
		crs.NewResolver(crs.Config{
			Endpoints: cfg.CRS.Endpoints,
			Timeout:   cfg.CRS.Timeout,
		}, app.collector, logger),
		logger,
	)

	app.Preview = application.NewPreviewService(
		app.Dispatcher,
		app.Archiver,
		app.Resolver,
		reprojector,
		application.NewPreviewCache(),
		app.collector,
		logger,
	)

	// Initialize HTTP server
	app.HTTPServer = httpapi.NewServer(
		cfg.Server,
		app.Grouper,
		app.Runner,
		app.Preview,
		app.Resolver,
		logger,
		engineVersion,
	)

	// Expose Prometheus metrics on the main router
	if app.Metrics != nil {
		router := app.HTTPServer.Router()
		router.Use(func(next http.Handler) http.Handler {
			return app.Metrics.Middleware(next)
		})
		router.Handle(cfg.Metrics.Path, metrics.Handler()).Methods(http.MethodGet)
	}

	// Initialize TLS server if enabled
	if cfg.TLS.Enabled {
		tlsServer, err := tlsAdapter.NewServer(
			tlsAdapter.Config{
				Enabled:      cfg.TLS.Enabled,
				Domains:      cfg.TLS.Domains,
				Email:        cfg.TLS.Email,
				CacheDir:     cfg.TLS.CacheDir,
				Staging:      cfg.TLS.Staging,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				DNS: tlsAdapter.DNSConfig{
					SubscriptionID:    cfg.TLS.DNS.SubscriptionID,
					ResourceGroupName: cfg.TLS.DNS.ResourceGroupName,
					ClientID:          cfg.TLS.DNS.ClientID,
				},
			},
			app.HTTPServer.Router(),
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("initializing TLS: %w", err)
		}
		app.TLSServer = tlsServer
	}

	// Initialize drop-directory watcher
	if cfg.Watch.Enabled {
		w, err := watcher.New(
			watcher.Config{
				Paths:    []string{cfg.Watch.Dir},
				Debounce: cfg.Watch.Debounce,
			},
			app.handleDropBatch,
			logger,
		)
		if err != nil {
			logger.Warn("failed to initialize drop watcher", "error", err)
		} else {
			app.Watcher = w
		}
	}

	return app, nil
}

// Start starts all application components.
func (a *App) Start(ctx context.Context) error {
	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			a.Logger.Warn("failed to start drop watcher", "error", err)
		}
	}

	if a.Config.TLS.Enabled && a.TLSServer != nil {
		return a.TLSServer.ListenAndServe(a.Config.Server.Address())
	}
	return a.HTTPServer.Start()
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	if a.Watcher != nil {
		_ = a.Watcher.Stop()
	}

	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Logger.Error("HTTP server shutdown error", "error", err)
	}

	// Stop the conversion worker last so in-flight requests can drain.
	a.Dispatcher.Close()

	return nil
}

// RunBatch pulls all vector files from the configured dataset source,
// converts them and writes artifacts plus the run report to the output
// directory. It backs the one-shot CLI mode.
func (a *App) RunBatch(ctx context.Context) (*domain.RunReport, error) {
	source, err := initSource(ctx, a.Config.Source)
	if err != nil {
		return nil, fmt.Errorf("initializing dataset source: %w", err)
	}

	start := time.Now()
	objects, err := source.List(ctx)
	a.collector.IncStorageOperations("list", err == nil)
	a.collector.ObserveStorageDuration("list", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("listing dataset source: %w", err)
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("dataset source is empty")
	}

	staging, err := os.MkdirTemp("", "verto-batch-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(staging) }()

	paths := make([]string, 0, len(objects))
	for _, obj := range objects {
		dest := filepath.Join(staging, filepath.Base(obj.Key))

		start := time.Now()
		err := source.Download(ctx, obj.Key, dest)
		a.collector.IncStorageOperations("download", err == nil)
		a.collector.ObserveStorageDuration("download", time.Since(start))
		if err != nil {
			return nil, fmt.Errorf("downloading %s: %w", obj.Key, err)
		}
		paths = append(paths, dest)
	}

	a.Logger.Info("staged dataset source", "files", len(paths), "dir", staging)
	return a.convertFiles(ctx, paths, a.Config.Convert.DefaultOutputFormat)
}

// handleDropBatch converts a stable batch of files from the drop directory.
func (a *App) handleDropBatch(ctx context.Context, paths []string) error {
	format := a.Config.Watch.OutputFormat
	if format == "" {
		format = a.Config.Convert.DefaultOutputFormat
	}

	_, err := a.convertFiles(ctx, paths, format)
	return err
}

// convertFiles groups local files into datasets and runs them through the
// conversion pipeline, writing artifacts and the report to the output dir.
func (a *App) convertFiles(ctx context.Context, paths []string, outputFormat string) (*domain.RunReport, error) {
	uploads, err := localUploads(paths)
	if err != nil {
		return nil, err
	}

	result, skipped := a.Grouper.Group(uploads)
	for _, f := range skipped {
		a.Logger.Warn("skipping unrecognized file", "file", f.Name)
	}

	opts := domain.DefaultOptions()
	opts.KeepZ = a.Config.Convert.KeepZ
	opts.SkipFailures = a.Config.Convert.SkipFailures

	sink, err := newDirSink(a.Config.Convert.OutputDir)
	if err != nil {
		return nil, err
	}

	report, err := a.Runner.Run(ctx, result.Datasets(), outputFormat, opts, sink)
	if err != nil {
		return nil, err
	}

	reportPath := filepath.Join(a.Config.Convert.OutputDir, "report-"+report.ID+".txt")
	if err := os.WriteFile(reportPath, []byte(report.Render()), 0o644); err != nil {
		a.Logger.Error("failed to write run report", "path", reportPath, "error", err)
	} else {
		a.Logger.Info("run report written", "path", reportPath)
	}

	return report, nil
}

// localUploads wraps files on disk as conversion inputs without reading them
// into memory up front.
func localUploads(paths []string) ([]domain.UploadedFile, error) {
	uploads := make([]domain.UploadedFile, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("inspecting %s: %w", path, err)
		}
		uploads = append(uploads, domain.UploadedFile{
			Name:    filepath.Base(path),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Handle:  domain.PathHandle(path),
		})
	}
	return uploads, nil
}

// dirSink writes artifacts into a directory on disk.
type dirSink struct {
	dir string
}

func newDirSink(dir string) (*dirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &dirSink{dir: dir}, nil
}

// Store implements output.ArtifactSink.
func (s *dirSink) Store(name string, data []byte) error {
	return os.WriteFile(filepath.Join(s.dir, filepath.Base(name)), data, 0o644)
}

// initSource initializes the appropriate dataset source adapter.
func initSource(ctx context.Context, cfg config.SourceConfig) (output.ObjectStorage, error) {
	switch cfg.Type {
	case "local":
		return storage.NewLocalStorage(cfg.LocalPath), nil

	case "s3":
		return storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})

	case "azure":
		return storage.NewAzureStorage(storage.AzureConfig{
			Container:        cfg.Azure.Container,
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
			Prefix:           cfg.Azure.Prefix,
		})

	case "http":
		return storage.NewHTTPStorage(storage.HTTPConfig{
			BaseURL:   cfg.HTTP.BaseURL,
			IndexFile: cfg.HTTP.IndexFile,
			Timeout:   cfg.HTTP.Timeout,
			Username:  cfg.HTTP.Username,
			Password:  cfg.HTTP.Password,
		}), nil

	default:
		return nil, fmt.Errorf("unknown source type: %s", cfg.Type)
	}
}
