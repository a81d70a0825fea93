// Package main implements a reference receiving site. It accepts the posts
// mpt and mptd make, checks each token against the site registry and logs
// what it received. It is meant for staging and for smoke-testing a registry.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/LixenWraith/logger"

	"mailpostbridge/internal/config"
	"mailpostbridge/internal/logging"
	"mailpostbridge/internal/registry"
)

const appName = "mptsink"

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

	reg, err := registry.Load(cfg.Transport.RegistryFile)
	if err != nil {
		logger.Error(ctx, "Failed to load site registry", "path", cfg.Transport.RegistryFile, "error", err.Error())
		fmt.Fprintf(os.Stderr, "Failed to load site registry: %v\n", err)
		logger.Shutdown(ctx)
		os.Exit(1)
	}

	logger.Info(ctx, "Starting mptsink service", "addr", cfg.Server.SinkAddr, "sites", strings.Join(reg.Domains(), ","))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	server := &http.Server{
		Addr:         cfg.Server.SinkAddr,
		Handler:      newRouter(reg, int64(cfg.Server.MaxMessageBytes), logging.Std{}),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sig := <-sigChan
		logger.Info(ctx, "Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error(shutdownCtx, "Server shutdown error", "error", err.Error())
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(ctx, "Server error", "error", err.Error())
		logger.Shutdown(ctx)
		os.Exit(1)
	}
	<-done
}
