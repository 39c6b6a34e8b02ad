// hotpathd watches a display, recognizes what is on it and fires rule-driven
// tap, swipe, wait and complete actions.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GriffinCanCode/hotpath/internal/actionlog"
	"github.com/GriffinCanCode/hotpath/internal/config"
	"github.com/GriffinCanCode/hotpath/internal/frames"
	"github.com/GriffinCanCode/hotpath/internal/grpcclient"
	"github.com/GriffinCanCode/hotpath/internal/hwbuffer"
	"github.com/GriffinCanCode/hotpath/internal/inject"
	"github.com/GriffinCanCode/hotpath/internal/ocr"
	"github.com/GriffinCanCode/hotpath/internal/orchestrator"
	"github.com/GriffinCanCode/hotpath/internal/orchestrator/perception"
	"github.com/GriffinCanCode/hotpath/internal/platform"
	"github.com/GriffinCanCode/hotpath/internal/router"
	"github.com/GriffinCanCode/hotpath/internal/screen"
	"github.com/GriffinCanCode/hotpath/internal/server"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inference, err := grpcclient.New(cfg.InferenceAddr, grpcclient.DefaultConfig())
	if err != nil {
		slog.Error("failed to connect to inference server", "addr", cfg.InferenceAddr, "error", err)
		os.Exit(1)
	}
	defer func() { _ = inference.Close() }()
	go inference.WatchHealth(ctx, func(healthy bool) {
		slog.Info("inference health changed", "healthy", healthy)
	})

	backend := grpcclient.NewBackend(inference)
	engine, err := ocr.Create(ctx, backend, ocr.Config{
		DetModel:      cfg.OCRDetModel,
		RecModel:      cfg.OCRRecModel,
		Keys:          cfg.OCRKeys,
		Accelerator:   cfg.Accelerator(),
		MinConfidence: float32(cfg.OCRMinConfidence),
	})
	if err != nil {
		slog.Error("failed to create ocr engine", "error", err)
		os.Exit(1)
	}
	defer func() { _ = engine.Close() }()

	actions, err := actionlog.Open(ctx, cfg.ActionDBPath)
	if err != nil {
		slog.Error("failed to open action log", "path", cfg.ActionDBPath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = actions.Close() }()

	// No vision backend is configured; Describe reports VisionUnavailable.
	percept := perception.NewProcessor(engine, backend, nil, perception.Config{
		SkipSimilar:     cfg.SkipSimilarFrames,
		MaxHashDistance: cfg.MaxHashDistance,
	})

	mgr := orchestrator.New(orchestrator.Config{
		Screen:       router.Screen{Width: int32(cfg.SourceWidth), Height: int32(cfg.SourceHeight)},
		FrameTimeout: cfg.FrameTimeout,
	}, orchestrator.Deps{
		Router:     router.New(),
		Perception: percept,
		Log:        actions,
		Benchmark:  engine.Benchmark,
		Open:       openSource(cfg),
	})

	if cfg.RulesPath != "" {
		data, err := os.ReadFile(cfg.RulesPath)
		if err != nil {
			slog.Error("failed to read rules", "path", cfg.RulesPath, "error", err)
			os.Exit(1)
		}
		if _, err := mgr.LoadRules(ctx, data); err != nil {
			slog.Error("failed to load rules", "path", cfg.RulesPath, "error", err)
			os.Exit(1)
		}
	}

	go func() {
		if err := mgr.Run(ctx); err != nil {
			slog.Error("perception loop error", "error", err)
		}
	}()
	if cfg.InjectInput {
		go inject.New(cfg.InputTool).Run(ctx, mgr)
	}

	srv := server.New(mgr, actions, cfg.CORSOrigins)
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("hotpathd starting", "http", cfg.HTTPAddr, "inference", cfg.InferenceAddr,
			"accelerator", engine.Accelerator())
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	mgr.Stop()
	slog.Info("shutdown complete")
}

// openSource prefers the compositor capture path and falls back to
// screenshots when the platform libraries are missing or CPU
// preprocessing is forced.
func openSource(cfg *config.Config) orchestrator.SourceFunc {
	fc := frames.DefaultConfig()
	fc.Mode = cfg.Resize()
	fc.OCRWidth = uint32(cfg.OCRWidth)
	fc.OCRHeight = uint32(cfg.OCRHeight)

	return func(ctx context.Context) (frames.Source, error) {
		if !cfg.UseCPUPreprocess {
			src, err := openGPU(ctx, cfg, fc)
			if err == nil {
				return src, nil
			}
			slog.Warn("gpu capture unavailable, using screenshots", "error", err)
		}
		return frames.NewHostSource(screen.New(), hwbuffer.NewHeapAllocator(0), fc)
	}
}

func openGPU(ctx context.Context, cfg *config.Config, fc frames.Config) (*frames.GPUSource, error) {
	level := cfg.APILevel
	if level == 0 {
		level = platform.DetectAPILevel()
	}
	src, err := frames.OpenGPU(frames.GPUOptions{
		Config:        fc,
		APILevel:      level,
		Width:         uint32(cfg.CaptureWidth),
		Height:        uint32(cfg.CaptureHeight),
		SharedContext: cfg.SharedGLContext,
	})
	if err != nil {
		return nil, err
	}
	if cfg.DisplayToken != 0 {
		token := platform.NewHandle(platform.KindDisplayToken, uintptr(cfg.DisplayToken))
		if err := src.Connect(ctx, token, uint32(cfg.SourceWidth), uint32(cfg.SourceHeight)); err != nil {
			src.Close(ctx)
			return nil, err
		}
	}
	return src, nil
}
