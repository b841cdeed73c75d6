package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/sof-events/internal/async"
	"github.com/joseph-ayodele/sof-events/internal/common"
	"github.com/joseph-ayodele/sof-events/internal/docs"
	"github.com/joseph-ayodele/sof-events/internal/export"
	"github.com/joseph-ayodele/sof-events/internal/ingest"
	"github.com/joseph-ayodele/sof-events/internal/metrics"
	"github.com/joseph-ayodele/sof-events/internal/pipeline"
	"github.com/joseph-ayodele/sof-events/internal/repository"
	"github.com/joseph-ayodele/sof-events/internal/server"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := common.NewLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := repository.InitStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open job store", "error", err)
		os.Exit(1)
	}
	defer store.Close(logger)
	if store == nil {
		logger.Warn("DB_URL not set, running without job bookkeeping")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	extractor := docs.New(docs.Config{MaxFileSize: cfg.Docs.MaxFileBytes, MaxPages: cfg.Docs.MaxPages}, logger)
	processor := pipeline.NewProcessor(extractor, store.JobRepo(), logger,
		pipeline.WithMetrics(m),
		pipeline.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
	)

	// HTTP
	var pinger server.Pinger
	if store != nil {
		pinger = store.DB
	}
	httpHandler := server.NewHTTPHandler(server.HTTPConfig{
		CORSOrigins:    cfg.Server.CORSOrigins,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		ProcessTimeout: cfg.Server.ProcessTimeout,
	}, processor, store.JobRepo(), pinger, m, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           httpHandler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// gRPC
	grpcServer, healthServer := server.NewGRPCServer(server.NewExtractionService(processor, logger), logger)
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}

	// Hot folders
	var queue *async.ProcessorQueue
	if len(cfg.Watch.Dirs) > 0 {
		queue, err = startWatch(ctx, cfg, processor, m, logger)
		if err != nil {
			logger.Error("failed to start watcher", "dirs", cfg.Watch.Dirs, "error", err)
			os.Exit(1)
		}
	}

	go func() {
		logger.Info("sofd http listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve error", "error", err)
			stop()
		}
	}()
	go func() {
		logger.Info("sofd grpc listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if queue != nil {
		queue.Shutdown(shutdownCtx)
	}
	grpcServer.GracefulStop()
	logger.Info("stopped")
}

// startWatch feeds every document dropped into the watch directories through
// a worker queue and writes the events next to it, or into WATCH_OUTPUT_DIR.
func startWatch(ctx context.Context, cfg *common.Config, processor *pipeline.Processor, m *metrics.Metrics, logger *slog.Logger) (*async.ProcessorQueue, error) {
	format, err := export.ParseFormat(cfg.Watch.Format)
	if err != nil {
		return nil, err
	}
	paths, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       cfg.Watch.Dirs,
		InitialScan: true,
		SkipHidden:  true,
		Debounce:    cfg.Watch.Debounce,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	queue := async.NewProcessorQueue(processor, logger,
		async.WithWorkers(cfg.Watch.Workers),
		async.WithProcessTimeout(cfg.Server.ProcessTimeout),
		async.WithMetrics(m),
		async.WithResultHandler(func(job async.Job, res pipeline.Result, err error) {
			if err != nil {
				return
			}
			dst, err := ingest.WriteOutput(job.Path, cfg.Watch.OutputDir, format, res.Events)
			if err != nil {
				logger.Error("watch.output.failed", "path", job.Path, "error", err)
				return
			}
			logger.Info("watch.output.ok", "path", job.Path, "output", dst, "events", len(res.Events))
		}),
	)

	go async.Feed(ctx, queue, paths, errs, logger)
	return queue, nil
}
