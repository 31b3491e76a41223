package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/pulseweave/companion/pkg/assembler"
	"github.com/pulseweave/companion/pkg/config"
	"github.com/pulseweave/companion/pkg/db"
	"github.com/pulseweave/companion/pkg/highlights"
	"github.com/pulseweave/companion/pkg/llm"
	"github.com/pulseweave/companion/pkg/orchestrator"
)

func main() {
	logger := log.NewWithOptions(os.Stdout, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Level:           log.DebugLevel,
		TimeFormat:      time.Kitchen,
	})

	envs, _ := config.LoadConfig(true)
	logger.Info("Using database path", "path", envs.DBPath)

	store, err := db.NewStore(context.Background(), envs.DBPath, logger)
	if err != nil {
		logger.Error("Unable to create or initialize database", "error", err)
		panic(errors.Wrap(err, "Unable to create or initialize database"))
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Error closing store", "error", err)
		}
	}()

	client, err := llm.NewClient(logger, envs)
	if err != nil {
		if llm.IsConfiguration(err) {
			logger.Fatal("LLM client misconfigured", "error", err)
		}
		panic(errors.Wrap(err, "Unable to create LLM client"))
	}
	logger.Info("LLM client ready", "provider", client.Provider())

	var nc *nats.Conn
	if envs.NatsURL != "" {
		nc, err = nats.Connect(envs.NatsURL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1))
		if err != nil {
			logger.Error("Unable to connect to NATS; turn events disabled", "error", err)
			nc = nil
		} else {
			defer nc.Close()
			logger.Info("NATS client connected", "url", envs.NatsURL)
		}
	}

	extractor := highlights.NewExtractor(store, client, logger.With("component", "highlights"))
	asm := assembler.New(store, extractor, logger.With("component", "assembler"))

	opts := orchestrator.DefaultOptions()
	opts.Nats = nc
	orch := orchestrator.New(store, asm, extractor, client, logger.With("component", "orchestrator"), opts)

	router := bootstrapRouter(logger, orch)

	server := &http.Server{
		Addr:              ":" + envs.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", "address", "http://localhost:"+envs.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			panic(errors.Wrap(err, "Unable to start server"))
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	<-signalChan

	logger.Info("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", "error", err)
	}
}
