package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ipregistry/ociregistry/asyncpin"
	"github.com/ipregistry/ociregistry/backendstub"
	"github.com/ipregistry/ociregistry/internal/config"
	"github.com/ipregistry/ociregistry/localstore"
	"github.com/ipregistry/ociregistry/mappingindex"
	"github.com/ipregistry/ociregistry/ociserver"
	"github.com/ipregistry/ociregistry/remotesvc"
	"github.com/ipregistry/ociregistry/resolve"
	"github.com/ipregistry/ociregistry/uploadsession"
)

// shutdownGrace bounds how long serve waits, on SIGINT/SIGTERM, for
// in-flight requests to drain before forcing the listener closed.
// In-flight background pins are not waited on -- spec.md §5 accepts
// their loss on shutdown.
const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the OCI registry HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := log.New(os.Stderr)
	cfg := config.Load()

	store, err := localstore.Open(cfg.StorageDir)
	if err != nil {
		return fmt.Errorf("cannot create storage directory: %w", err)
	}

	index, err := mappingindex.Load(cfg.MappingFile, !cfg.StrictMapping)
	if err != nil {
		return fmt.Errorf("cannot load mapping file: %w", err)
	}

	sessions := uploadsession.NewTable(uploadsession.DefaultIdleTimeout)
	defer sessions.Close()

	backend := backendstub.New()
	services := remotesvc.NewManager(backend, cfg.RPCURL, cfg.WarmStorageAddress, cfg.RegistryName)
	resolver := resolve.New(store, backend)
	pinner := asyncpin.New(services, logger)

	registry := ociserver.New(store, sessions, index, resolver, pinner, cfg.RegistryName, logger)

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("cannot listen on %s: %w", cfg.Addr(), err)
	}

	srv := &http.Server{Handler: registry}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("registry listening", "addr", listener.Addr(), "storage", cfg.StorageDir, "mapping", cfg.MappingFile)
		serveErr <- srv.Serve(listener)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("error during graceful shutdown", "err", err)
	}
	if err := services.Shutdown(ctx); err != nil {
		logger.Error("error tearing down remote services", "err", err)
	}
	return nil
}
