package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgnsrekt/bet_agent/internal/agent"
	"github.com/dgnsrekt/bet_agent/internal/api"
	"github.com/dgnsrekt/bet_agent/internal/browser"
	"github.com/dgnsrekt/bet_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/bet_agent/internal/command"
	"github.com/dgnsrekt/bet_agent/internal/config"
	"github.com/dgnsrekt/bet_agent/internal/coordinator"
	"github.com/dgnsrekt/bet_agent/internal/notify"
	"github.com/dgnsrekt/bet_agent/internal/refresher"
	"github.com/dgnsrekt/bet_agent/internal/settings"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("agent config loaded",
		"bind_addr", cfg.BindAddr,
		"cdp_url", cfg.CDPURL(),
		"tab_url_filter", cfg.TabURLFilter,
		"eval_timeout_ms", cfg.EvalTimeoutMS,
		"refresh_minutes", cfg.RefreshMinMinutes,
		"refresh_max_minutes", cfg.RefreshMaxMinutes,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var launcher *browser.Launcher
	if cfg.LaunchBrowser {
		launcher = browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			StartURL:   cfg.StartURL,
			ProfileDir: cfg.ProfileDir,
		})
		if err := launcher.Launch(ctx); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	if cfg.StartURL != "" {
		if err := browser.EnsureTab(ctx, cfg.CDPURL(), cfg.TabURLFilter, cfg.StartURL); err != nil {
			slog.Warn("could not open sportsbook tab", "error", err)
		}
	}

	cdpClient := cdpcontrol.NewClient(cfg.CDPURL(), cfg.TabURLFilter, time.Duration(cfg.EvalTimeoutMS)*time.Millisecond)
	if err := cdpClient.Connect(ctx); err != nil {
		slog.Error("failed to connect to browser", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	defer func() { _ = cdpClient.Close() }()

	store, err := settings.NewStore(cfg.SettingsFile, cfg.APIURLDefault)
	if err != nil {
		slog.Error("failed to open settings store", "path", cfg.SettingsFile, "error", err)
		os.Exit(1)
	}
	forwarder := notify.NewForwarder(&http.Client{Timeout: 15 * time.Second}, cfg.NotifyEndpoint)
	sched := refresher.New(cdpClient, cfg.RefreshMinMinutes, cfg.RefreshMaxMinutes, cfg.BlackoutStart, cfg.BlackoutEnd)

	var coord *coordinator.Coordinator
	betAgent := agent.New(cdpClient, command.NewStore(), func(result agent.BetResult) {
		coord.OnBetComplete(result)
	})
	coord = coordinator.New(cdpClient, betAgent, forwarder, store, sched)

	cdpClient.SetLoadHandler(func(tabID string) {
		go betAgent.HandlePageLoad(ctx, tabID)
	})

	coord.Start(ctx)

	srv := &http.Server{Addr: cfg.BindAddr, Handler: api.NewServer(coord)}

	go func() {
		slog.Info("agent listening", "addr", cfg.BindAddr, "docs", "http://"+cfg.BindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("agent server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("agent shutdown failed", "error", err)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
