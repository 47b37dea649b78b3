package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jo-hoe/videogreeter/internal/common"
	appcfg "github.com/jo-hoe/videogreeter/internal/config"
	"github.com/jo-hoe/videogreeter/internal/jobs"
	"github.com/jo-hoe/videogreeter/internal/lipsync"
	lipsyncmock "github.com/jo-hoe/videogreeter/internal/lipsync/mock"
	"github.com/jo-hoe/videogreeter/internal/lipsync/syncso"
	"github.com/jo-hoe/videogreeter/internal/messaging"
	msgmock "github.com/jo-hoe/videogreeter/internal/messaging/mock"
	"github.com/jo-hoe/videogreeter/internal/messaging/twilio"
	"github.com/jo-hoe/videogreeter/internal/pipeline"
	"github.com/jo-hoe/videogreeter/internal/poller"
	"github.com/jo-hoe/videogreeter/internal/server"
	"github.com/jo-hoe/videogreeter/internal/speech"
	"github.com/jo-hoe/videogreeter/internal/speech/elevenlabs"
	speechmock "github.com/jo-hoe/videogreeter/internal/speech/mock"
	"github.com/jo-hoe/videogreeter/internal/storage"
)

func main() {
	// Load config (path from first argument, VIDEOGREETER_CONFIG, or config.yaml)
	var cfgPath string
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := appcfg.Load(cfgPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	// Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Server.SlogLevel()}))
	slog.SetDefault(logger)

	// Job store
	target := cfg.Database.Path
	if cfg.Database.Driver == common.DriverPostgres {
		target = cfg.Database.DSN
	}
	store, err := jobs.Open(cfg.Database.Driver, target)
	if err != nil {
		logger.Error("open job store", "driver", cfg.Database.Driver, "err", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	// Artifact storage
	var artifacts storage.ArtifactStore
	var artifactHandler http.Handler
	switch cfg.Storage.Type {
	case common.StorageLocal:
		local := storage.NewLocalStore(cfg.Storage.Dir, cfg.Storage.PublicBaseURL)
		artifacts = local
		artifactHandler = local.Handler()
		logger.Info("serving speech artifacts from disk", "dir", local.Dir())
	case common.StorageS3:
		s3Store, err := storage.NewS3Store(cfg.Storage.S3)
		if err != nil {
			logger.Error("init s3 storage", "bucket", cfg.Storage.S3.Bucket, "err", err)
			os.Exit(1)
		}
		artifacts = s3Store
	default:
		logger.Error("unsupported storage type", "type", cfg.Storage.Type)
		os.Exit(1)
	}

	// Speech synthesis
	var synth speech.Synthesizer
	switch cfg.Speech.Provider {
	case common.ProviderMock:
		synth = speechmock.New(cfg.Speech.Mock)
	case common.ProviderElevenLabs:
		synth = elevenlabs.New(cfg.Speech.ElevenLabs)
	default:
		logger.Error("unsupported speech provider", "provider", cfg.Speech.Provider)
		os.Exit(1)
	}

	// Lip-sync
	var syncClient lipsync.Client
	switch cfg.LipSync.Provider {
	case common.ProviderMock:
		syncClient = lipsyncmock.New(cfg.LipSync.Mock)
	case common.ProviderSyncSo:
		syncClient = syncso.New(cfg.LipSync.SyncSo)
	default:
		logger.Error("unsupported lipsync provider", "provider", cfg.LipSync.Provider)
		os.Exit(1)
	}

	// Messaging
	var messenger messaging.Messenger
	switch cfg.Messaging.Provider {
	case common.ProviderMock:
		messenger = msgmock.New()
	case common.ProviderTwilio:
		tw, err := twilio.New(cfg.Messaging.Twilio)
		if err != nil {
			logger.Error("init twilio", "err", err)
			os.Exit(1)
		}
		messenger = tw
	default:
		logger.Error("unsupported messaging provider", "provider", cfg.Messaging.Provider)
		os.Exit(1)
	}

	// Pipeline and dispatcher
	orchestrator, err := pipeline.New(pipeline.Deps{
		Log:       logger,
		Store:     store,
		Speech:    synth,
		LipSync:   syncClient,
		Messenger: messenger,
		Artifacts: artifacts,
	}, pipeline.Settings{
		TemplateVideoURL: cfg.LipSync.TemplateVideoURL,
		VoiceID:          cfg.Speech.VoiceID,
		ScriptTemplate:   cfg.Pipeline.ScriptTemplate,
		MessageTemplate:  cfg.Pipeline.MessageTemplate,
		Poll: poller.Options{
			MaxAttempts: cfg.Pipeline.PollAttempts,
			Interval:    cfg.Pipeline.PollInterval,
		},
	})
	if err != nil {
		logger.Error("init pipeline", "err", err)
		os.Exit(1)
	}

	rootCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	dispatcher := jobs.NewDispatcher(logger, cfg.Server.PoolSize)
	if err := dispatcher.Start(rootCtx, orchestrator); err != nil {
		logger.Error("start dispatcher", "err", err)
		os.Exit(1)
	}

	// HTTP server
	svc := &server.Service{
		Log:        logger,
		Cfg:        cfg,
		Store:      store,
		Dispatcher: dispatcher,
		Artifacts:  artifactHandler,
	}
	httpSrv := server.NewHTTPServer(svc)

	// Run server in background
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting",
			"address", cfg.Server.Addr,
			"database", cfg.Database.Driver,
			"storage", cfg.Storage.Type,
			"speech", cfg.Speech.Provider,
			"lipsync", cfg.LipSync.Provider,
			"messaging", cfg.Messaging.Provider)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error
	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "err", err)
		}
	}

	// Graceful shutdown
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	// Let running jobs finish, then cancel what is left
	dispatcher.Shutdown(cfg.Server.ShutdownGrace)
	logger.Info("server stopped")
}
