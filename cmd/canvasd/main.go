package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MJE43/rps-canvas/internal/api"
	"github.com/MJE43/rps-canvas/internal/benchling"
	"github.com/MJE43/rps-canvas/internal/config"
	"github.com/MJE43/rps-canvas/internal/dispatch"
	"github.com/MJE43/rps-canvas/internal/engine"
	"github.com/MJE43/rps-canvas/internal/journal"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := log.New(os.Stdout, "[MAIN] ", log.LstdFlags|log.LUTC)
	if err := run(logger); err != nil {
		logger.Printf("fatal error=%q", err)
		os.Exit(1)
	}
}

func run(logger *log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Printf("starting version=%s commit=%s %s", api.Version, api.GitCommit, cfg)

	client, err := benchling.NewClient(cfg.Client())
	if err != nil {
		return err
	}

	var dopts []dispatch.Option
	if cfg.Seeded() {
		src := engine.NewSeededSource(cfg.ServerSeed, cfg.ClientSeed, 0)
		logger.Printf("seeded_source server_seed_hash=%s", src.ServerSeedHash())
		dopts = append(dopts, dispatch.WithSource(src))
	}
	d := dispatch.New(client, dopts...)

	sopts := []api.Option{api.WithRemoteBase(client.BaseURL())}
	if cfg.JournalEnabled() {
		store, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return err
		}
		defer store.Close()
		logger.Printf("journal_opened path=%s", cfg.JournalPath)
		sopts = append(sopts, api.WithJournal(store))
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewServer(d, sopts...).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RemoteTimeout + 30*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("listening addr=%s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Printf("shutting_down timeout=%s", shutdownTimeout)
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Printf("stopped")
	return nil
}
