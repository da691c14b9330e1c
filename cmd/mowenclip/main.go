// Entry point for the mowenclip service: local HTTP API for the
// browser extension, SQLite session store, Mowen API client behind the
// shared pacer, optional headless browser for delegated image fetches.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"github.com/yult97/mowen-plugin-sub000/clipper"
	"github.com/yult97/mowen-plugin-sub000/imagepipe"
	"github.com/yult97/mowen-plugin-sub000/session"
)

func main() {
	logLevel := env("LOG_LEVEL", "info")
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := clipper.LoadConfig(env("CONFIG", ""))
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	if addr := env("LISTEN_ADDR", ""); addr != "" {
		cfg.ListenAddr = addr
	}
	if cfg.APIKey == "" {
		slog.Error("MOWEN_API_KEY or api_key in the config file is required")
		os.Exit(1)
	}

	store, err := session.Open(cfg.DBPath)
	if err != nil {
		slog.Error("session store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Optional headless browser for delegated image fetches. Without it
	// the pipeline still runs on direct fetches alone.
	var delegate imagepipe.Delegate
	if env("BROWSER", "off") == "on" {
		browser, page, err := launchBrowser()
		if err != nil {
			slog.Error("browser launch failed, continuing without delegate", "error", err)
		} else {
			defer browser.Close()
			delegate = &imagepipe.RodDelegate{Page: page}
			slog.Info("delegated fetch enabled")
		}
	}

	svc := clipper.NewWithAPI(*cfg, store, delegate, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func launchBrowser() (*rod.Browser, *rod.Page, error) {
	l := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled")
	u, err := l.Launch()
	if err != nil {
		return nil, nil, err
	}
	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, nil, err
	}
	page, err := stealth.Page(browser)
	if err != nil {
		browser.Close()
		return nil, nil, err
	}
	return browser, page, nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
