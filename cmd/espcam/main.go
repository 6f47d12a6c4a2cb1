package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/chilic/espcam-go/camera"
	"github.com/chilic/espcam-go/core"
	"github.com/chilic/espcam-go/indicator"
	"github.com/chilic/espcam-go/logger"
	"github.com/chilic/espcam-go/network"
	"github.com/chilic/espcam-go/pkg/interfaces"
	"github.com/chilic/espcam-go/protocols/websocket"
	"github.com/chilic/espcam-go/upload"
	"github.com/chilic/espcam-go/utils"
)

func main() {
	configPath := flag.String("c", "", "Path to config file (default searches ./config.yaml, ./config/config.yaml, /etc/espcam/config.yaml)")
	flag.Parse()

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	if err := initLogger(cfg); err != nil {
		logger.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	log := logger.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error("Fatal error", "error", err)
		os.Exit(1)
	}
	log.Info("Service shutdown completed")
}

func run(ctx context.Context, cfg core.Config) error {
	log := logger.Logger()
	clock := utils.SystemClock()

	src, err := network.NewInterfaceSource(cfg.Network.Interface)
	if err != nil {
		return err
	}
	gate := network.NewGate(src, network.GateConfig{
		PollInterval:   cfg.Network.PollInterval,
		MaxDiagnostics: cfg.Network.MaxDiagnostics,
	}, clock, log)

	driver, err := camera.NewDriver(cfg.Camera.Driver, log)
	if err != nil {
		return err
	}
	acq := camera.NewAcquirer(driver, log)
	if err := acq.Initialize(cfg.CameraConfig()); err != nil {
		return err
	}
	defer func() {
		if err := acq.Close(); err != nil {
			log.Error("Failed to close camera", "error", err)
		}
	}()

	roots, err := upload.LoadRootBundle(cfg.Upload.CABundle)
	if err != nil {
		return err
	}
	uploader := upload.New(upload.Config{
		RootCAs:    roots,
		WindowSize: cfg.Upload.WindowSize,
		Timeout:    cfg.Upload.Timeout,
	}, log)

	ind, err := indicator.New(cfg.IndicatorConfig(), log)
	if err != nil {
		return err
	}
	defer func() {
		if err := ind.Close(); err != nil {
			log.Error("Failed to close indicator", "error", err)
		}
	}()

	var reporter interfaces.Reporter = interfaces.NopReporter{}
	if cfg.Monitor.URL != "" {
		reporter = websocket.NewReporter(websocket.Config{
			URL:      cfg.Monitor.URL,
			Token:    cfg.Monitor.Token,
			DeviceID: cfg.Monitor.DeviceID,
		}, utils.NewExponentialBackoff(), clock, log)
	}
	defer reporter.Close()

	loop := core.NewLoop(core.NewLoopConfig(cfg), core.Components{
		Gate:      gate,
		Camera:    acq,
		Uploader:  uploader,
		Indicator: ind,
		Reporter:  reporter,
		Clock:     clock,
		Delay:     utils.NewFixedDelay(cfg.Loop.Interval),
	}, log)

	log.Info("Starting espcam service", "camera", driver.Name(), "interface", cfg.Network.Interface)
	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("Received signal, shutting down")
	return nil
}

func initLogger(cfg core.Config) error {
	logCfg := cfg.LoggerConfig()

	if cfg.Debug {
		logCfg.Level = "debug"
		logCfg.Outputs = []string{"stdout"}
		logger.Debug("Debug mode enabled")
	}

	return logger.Init(logCfg)
}
