package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/saker-ai/vrchat-bridge/internal/audit"
	"github.com/saker-ai/vrchat-bridge/internal/auth"
	"github.com/saker-ai/vrchat-bridge/internal/capture"
	"github.com/saker-ai/vrchat-bridge/internal/command"
	appconfig "github.com/saker-ai/vrchat-bridge/internal/config"
	"github.com/saker-ai/vrchat-bridge/internal/gateway"
	apphttp "github.com/saker-ai/vrchat-bridge/internal/http"
	"github.com/saker-ai/vrchat-bridge/internal/launcher"
	applogger "github.com/saker-ai/vrchat-bridge/internal/logger"
	"github.com/saker-ai/vrchat-bridge/internal/mic"
	"github.com/saker-ai/vrchat-bridge/internal/osc"
	"github.com/saker-ai/vrchat-bridge/internal/quota"
	"github.com/saker-ai/vrchat-bridge/internal/screen"
	"github.com/saker-ai/vrchat-bridge/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to conf.yaml (default: search from the working directory)")
	flag.Parse()

	cfg, err := appconfig.LoadFile(*configPath)
	if err != nil {
		fallback, _ := zap.NewProduction()
		defer fallback.Sync()
		fallback.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := applogger.New(cfg.Log)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	if cfg.AuthToken == "" {
		logger.Warn("auth_token is empty, every caller is accepted")
	}

	// The monitor reports the audit sink's drop counter, so it is built
	// first with a closure over the log assigned just below.
	var auditLog *audit.Log
	monitor := ws.NewMonitor(logger, func() int64 { return auditLog.Dropped() })
	auditLog, auditSink, err := audit.Open(cfg.Audit.Dir, cfg.Audit.Buffer, logger, monitor)
	if err != nil {
		logger.Fatal("failed to open audit sink", zap.Error(err))
	}

	sender := osc.NewSender(cfg.OSC.Host, cfg.OSC.Port, logger)
	defer sender.Close()

	whitelist := command.NewWhitelist(cfg.Whitelist)
	recorder := mic.NewRecorder(cfg.Capture.SampleRate, cfg.Capture.Channels, logger)
	coordinator := capture.NewCoordinator(recorder,
		time.Duration(cfg.Capture.GraceSeconds)*time.Second, logger)

	gw := gateway.New(gateway.Deps{
		Guard:       auth.NewGuard(cfg.AuthToken),
		Quota:       quota.NewTracker(quotaWindows(cfg.Quota), cfg.Quota.FailOpen),
		Validator:   command.NewValidator(limits(cfg), whitelist),
		Translator:  command.NewTranslator(whitelist),
		Sender:      sender,
		Coordinator: coordinator,
		Transcriber: capture.NewHTTPTranscriber(cfg.Capture.TranscriberURL),
		Launcher:    launcher.New(logger),
		Screen:      screen.NewGrabber(),
		Audit:       auditLog,
		Settings: gateway.CaptureSettings{
			TranscriberRate: cfg.Capture.TranscriberRate,
			OpusBitrate:     cfg.Capture.OpusBitrate,
		},
		Logger: logger,
	})

	router := apphttp.NewRouter(gw, monitor, auditLog.Dropped, logger)
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		if err := listen(server, cfg, logger); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
	monitor.Close()
	auditLog.Close()
	_ = auditSink.Close()
}

func quotaWindows(cfg appconfig.QuotaConfig) map[string][]quota.Window {
	windows := make(map[string][]quota.Window, len(cfg.Categories))
	for category, list := range cfg.Categories {
		for _, w := range list {
			windows[category] = append(windows[category], quota.Window{
				Limit: w.Limit,
				Span:  time.Duration(w.WindowSeconds) * time.Second,
			})
		}
	}
	return windows
}

func limits(cfg appconfig.Config) command.Limits {
	return command.Limits{
		MaxMoveSeconds:    cfg.MaxMoveSeconds,
		MaxCaptureSeconds: cfg.Capture.MaxDurationSeconds,
	}
}

func listen(server *http.Server, cfg appconfig.Config, logger *zap.Logger) error {
	if cfg.TLSDisable {
		logger.Info("starting http server", zap.String("addr", cfg.HTTPAddr))
		return server.ListenAndServe()
	}

	certPath := filepath.Clean(cfg.TLSCertPath)
	keyPath := filepath.Clean(cfg.TLSKeyPath)
	if fileExists(certPath) && fileExists(keyPath) {
		logger.Info("starting https server", zap.String("addr", cfg.HTTPAddr))
		return server.ListenAndServeTLS(certPath, keyPath)
	}

	logger.Warn("tls enabled but cert or key missing, serving plain http",
		zap.String("cert", certPath),
		zap.String("key", keyPath),
	)
	return server.ListenAndServe()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
