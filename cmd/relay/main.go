package main

import (
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/padstream/relay/internal/config"
	"github.com/padstream/relay/internal/engine"
	"github.com/padstream/relay/internal/relay"
	"github.com/padstream/relay/internal/session"
	"github.com/padstream/relay/internal/stats"
	"github.com/padstream/relay/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	if *verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	handle, stopped := relay.Spawn(engine.New(), relay.Config{
		CommandQueueSize: cfg.Relay.CommandQueueSize,
		BusCapacity:      cfg.Relay.BusCapacity,
		Metrics:          relay.NewMetrics(prometheus.DefaultRegisterer),
	})

	collector, err := stats.NewCollector(handle.Subscribers)
	if err != nil {
		log.Fatalf("Failed to start stats collector: %v", err)
	}

	server := ws.NewServer(
		handle,
		session.Config{MailboxCapacity: cfg.Relay.MailboxCapacity},
		collector,
		cfg.Server.AllowedOrigins,
		cfg.Server.AuthToken,
	)

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		if err := handle.Stop(); err != nil {
			slog.Warn("stop not delivered", "err", err)
		}
		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			slog.Warn("core did not stop in time")
		}
		os.Exit(0)
	}()

	if err := ws.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
