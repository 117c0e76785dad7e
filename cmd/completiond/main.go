package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"text-completion-go/completion"
	"text-completion-go/config"
	"text-completion-go/model"
	"text-completion-go/web"
)

func main() {
	configPath := flag.String("config", "completiond.toml", "Path to the TOML config file")
	listen := flag.String("listen", "", "Listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	setupLogging(cfg.LogLevel)

	sessions := web.NewSessionStore(time.Duration(cfg.SessionTTLMinutes) * time.Minute)
	defer sessions.Stop()

	server, err := web.NewServer(sessions)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Load in the background so the loading page renders immediately.
	go func() {
		opts := []model.LoadOption{model.WithStatus(server.ReportProgress)}
		if cfg.CacheDir != "" {
			opts = append(opts, model.WithCacheDir(cfg.CacheDir))
		}

		gen, err := model.Load(opts...)
		if err != nil {
			server.SetFailed(err)
			return
		}

		server.SetReady(completion.NewService(gen), web.ModelInfo{
			ModelID:       gen.ModelID(),
			Device:        "CPU",
			ContextWindow: gen.ContextWindow(),
		})
		slog.Info("ready for text generation", "listen", cfg.Listen)
	}()

	slog.Info("serving", "listen", cfg.Listen, "model", model.ModelID)
	if err := http.ListenAndServe(cfg.Listen, server.Handler()); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}
