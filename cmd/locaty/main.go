package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"locaty/internal/config"
	"locaty/internal/web"
)

func main() {
	var configPath string
	var summaryPath string
	flag.StringVar(&configPath, "config", "./locaty.yaml", "Path to YAML config")
	flag.StringVar(&summaryPath, "log-summary", "", "Print a summary of a recorded sensor log and exit")
	flag.Parse()

	if summaryPath != "" {
		if err := printLogSummary(os.Stdout, summaryPath); err != nil {
			log.Fatalf("log summary failed: %v", err)
		}
		return
	}

	logs := web.NewLogBuffer(2000)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	resolvedConfigPath, err := filepath.Abs(configPath)
	if err != nil {
		resolvedConfigPath = configPath
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	about := web.BuildInfo()
	log.Printf("locaty starting version=%s commit=%s go=%s", about.Version, about.Commit, about.GoVersion)

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		log.Fatalf("runtime init failed: %v", err)
	}
	defer rt.Close()

	if cfg.Session.Autostart {
		if err := rt.startSession(ctx); err != nil {
			log.Printf("session autostart failed: %v", err)
		}
	}

	settings := web.SettingsStore{ConfigPath: resolvedConfigPath}
	go func() {
		log.Printf("web listening on %s", cfg.Web.Listen)
		err := web.Serve(ctx, cfg.Web.Listen, rt.ctl, rt.presence, rt.status, settings, logs)
		if err != nil && ctx.Err() == nil {
			log.Printf("web server stopped: %v", err)
			cancel()
		}
	}()

	go rt.watchStops(ctx)

	<-ctx.Done()
	log.Printf("locaty stopping")
}
