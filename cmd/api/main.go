package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/agenthall/agenthall/backend/internal/config"
	"github.com/agenthall/agenthall/backend/internal/handler"
	"github.com/agenthall/agenthall/backend/internal/runtime"
	"github.com/agenthall/agenthall/backend/internal/service/bus"
	"github.com/agenthall/agenthall/backend/internal/service/reconciler"
	"github.com/agenthall/agenthall/backend/internal/service/registry"
	"github.com/agenthall/agenthall/backend/internal/store/messagelog"
)

const version = "1.0.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	store, err := messagelog.Open(cfg.Store.Path)
	if err != nil {
		log.Fatalf("failed to open message log at %s: %v", cfg.Store.Path, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("warning: closing message log: %v", err)
		}
	}()

	reg := registry.New()
	docker := runtime.NewDockerClient(cfg.Runtime.DockerBin)
	rec := reconciler.New(reg, docker, cfg.Runtime.PollInterval)
	rec.Start(ctx)
	log.Printf("reconciler polling container runtime every %s", cfg.Runtime.PollInterval)

	messageBus := bus.NewService(store, cfg.Bus.HistoryLimit)
	defer messageBus.Close()

	router := handler.NewRouter(handler.Deps{
		Registry: reg,
		Bus:      messageBus,
		CastURL:  cfg.CastURL,
		Version:  version,
	})

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Agent Hall backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
