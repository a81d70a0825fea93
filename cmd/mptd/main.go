// Package main provides the long-lived delivery service. mpt hands deliveries
// to it over a local TCP socket; the site registry is loaded once at startup
// and shared read-only by all connection handlers.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/LixenWraith/logger"

	"mailpostbridge/internal/config"
	"mailpostbridge/internal/logging"
	"mailpostbridge/internal/poster"
	"mailpostbridge/internal/registry"
	"mailpostbridge/internal/relay"
	"mailpostbridge/internal/transport"
)

const appName = "mptd"

func main() {
	configPath := flag.String("c", "", "config file (default "+config.DefaultPath(appName)+")")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		cfg          *config.Config
		configExists bool
		err          error
	)
	if *configPath != "" {
		cfg, configExists, err = config.LoadFile(*configPath, appName)
	} else {
		cfg, configExists, err = config.Load(appName)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if !configExists && *configPath == "" {
		if err := config.Save(cfg, appName); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save configuration: %v\n", err)
		}
	}

	if err := logger.Init(ctx, &cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Shutdown(ctx)
	log := logging.Std{}

	reg, err := registry.Load(cfg.Transport.RegistryFile)
	if err != nil {
		logger.Error(ctx, "Failed to load site registry", "path", cfg.Transport.RegistryFile, "error", err.Error())
		fmt.Fprintf(os.Stderr, "Failed to load site registry: %v\n", err)
		logger.Shutdown(ctx)
		os.Exit(1)
	}

	logger.Info(ctx, "Starting mail post delivery service",
		"listen_addr", cfg.Server.InternalAddr,
		"sites", strings.Join(reg.Domains(), ","),
		"exit_policy", cfg.Transport.ExitPolicy,
		"encoding", cfg.Transport.Encoding)

	listener, err := net.Listen("tcp", cfg.Server.InternalAddr)
	if err != nil {
		logger.Error(ctx, "Failed to start TCP listener", "error", err.Error())
		fmt.Fprintf(os.Stderr, "Failed to start TCP listener: %v\n", err)
		logger.Shutdown(ctx)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	go handleSignals(ctx, cancel, sigChan)

	inv := transport.NewInvoker(reg, poster.New(cfg.PosterConfig()), log)
	srv := &relay.Server{
		Handler: relay.TransportHandler(inv, transport.ExitPolicy(cfg.Transport.ExitPolicy)),
		Timeout: cfg.Server.Timeout,
		Log:     log,
	}

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, listener) }()

	select {
	case err := <-served:
		if err != nil {
			logger.Error(ctx, "Connection acceptor stopped", "error", err.Error())
		}
		return
	case <-ctx.Done():
	}

	// Separate context: ctx is already cancelled
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	logger.Info(shutdownCtx, "Initiating shutdown sequence")
	select {
	case <-served:
	case <-shutdownCtx.Done():
		logger.Warn(shutdownCtx, "In-flight deliveries did not finish before shutdown timeout")
	}

	if err := logger.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
	}
}

// handleSignals cancels ctx on SIGINT/SIGTERM. SIGHUP is logged and ignored:
// the registry is fixed for the lifetime of the process.
func handleSignals(ctx context.Context, cancel context.CancelFunc, sigChan chan os.Signal) {
	logger.Debug(ctx, "Starting signal handler")
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGHUP:
				logger.Info(ctx, "Ignoring SIGHUP, restart the service to load a new registry")
			case syscall.SIGINT, syscall.SIGTERM:
				logger.Info(ctx, "Received shutdown signal", "signal", sig.String())
				cancel()
				return
			}
		}
	}
}
