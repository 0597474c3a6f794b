package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/vibeterm/internal/infrastructure/config"
	"github.com/GriffinCanCode/vibeterm/internal/infrastructure/logging"
	"github.com/GriffinCanCode/vibeterm/internal/infrastructure/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "export":
			if err := runExport(os.Args[2:], os.Stdout); err != nil {
				fmt.Fprintln(os.Stderr, "vibeterm export:", err)
				os.Exit(1)
			}
			return
		case "history":
			if err := runHistory(os.Args[2:], os.Stdout); err != nil {
				fmt.Fprintln(os.Stderr, "vibeterm history:", err)
				os.Exit(1)
			}
			return
		}
	}

	if err := serve(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "vibeterm:", err)
		os.Exit(1)
	}
}

// loadConfig applies command-line overrides on top of config.Load.
func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	configPath := fs.String("config", os.Getenv(config.FileEnv), "YAML or TOML config file")
	port := fs.String("port", "", "Server port (overrides config)")
	host := fs.String("host", "", "Server host (overrides config)")
	shell := fs.String("shell", "", "Default shell (overrides config)")
	dbPath := fs.String("db", "", "Session database path (overrides config)")
	noStore := fs.Bool("no-store", false, "Disable session persistence")
	dev := fs.Bool("dev", false, "Development mode (human-readable debug logs)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		return nil, err
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *shell != "" {
		cfg.Terminal.Shell = *shell
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	if *noStore {
		cfg.Store.Enabled = false
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func serve(args []string) error {
	cfg, err := loadConfig(flag.NewFlagSet("vibeterm", flag.ExitOnError), args)
	if err != nil {
		return err
	}

	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger, err = logging.New(logging.Config{Level: cfg.Logging.Level})
		if err != nil {
			return err
		}
	}

	srv, err := server.NewServer(cfg, server.WithLogger(logger))
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Shutting down gracefully", zap.String("signal", sig.String()))
	case err := <-errChan:
		if err != nil {
			logger.Error("Server error", zap.Error(err))
		}
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
