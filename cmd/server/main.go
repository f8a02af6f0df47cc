package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/classpad/classpad/internal/app"
	"github.com/classpad/classpad/pkg/logger"
)

const (
	shutdownTimeout       = 15 * time.Second
	readHeaderTimeout     = 10 * time.Second
	minSigningSecretBytes = 32
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	err := run(ctx, os.Args[1:])
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("classpad-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	configPath := fs.String("config", "", "path to the configuration directory or file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(*configPath)
	if err != nil {
		return err
	}

	generated, err := app.ApplyRuntimeDefaults(cfg)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")
	for key := range generated {
		// Key names only; the values must never appear in output.
		log.Info("generated runtime secret", zap.String("key", key))
	}

	if err := ensureSecretsPresent(cfg); err != nil {
		return err
	}

	stack, err := bootstrapRuntime(cfg, log)
	if err != nil {
		return err
	}
	defer stack.Shutdown(context.Background(), log)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           stack.Router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return serveUntilSignalled(ctx, server, log)
}

// serveUntilSignalled runs the HTTP server until ctx is cancelled or the
// listener fails, then drains in-flight requests within shutdownTimeout.
func serveUntilSignalled(ctx context.Context, server *http.Server, log *zap.Logger) error {
	failed := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
		close(failed)
	}()

	select {
	case err, ok := <-failed:
		if ok && err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	if err, ok := <-failed; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped")
	return nil
}

// loadApplicationConfig resolves the -config flag. A file path loads its
// containing directory so sibling override files keep working.
func loadApplicationConfig(path string) (*app.Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return app.LoadConfig()
	}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config path %q does not exist", path)
	}
	if err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}
	if info.IsDir() {
		return app.LoadConfig(path)
	}
	return app.LoadConfig(filepath.Dir(path))
}

// ensureSecretsPresent validates the signing secrets without ever logging
// their values. Errors name the offending key and its decoded length only.
func ensureSecretsPresent(cfg *app.Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	secrets := []struct {
		key   string
		value string
	}{
		{"auth.jwt.tenant_access_secret", cfg.Auth.JWT.TenantAccessSecret},
		{"auth.jwt.tenant_refresh_secret", cfg.Auth.JWT.TenantRefreshSecret},
		{"auth.jwt.platform_access_secret", cfg.Auth.JWT.PlatformAccessSecret},
		{"auth.jwt.platform_refresh_secret", cfg.Auth.JWT.PlatformRefreshSecret},
	}

	for _, s := range secrets {
		length, err := app.KeyByteLength(s.value)
		if err != nil {
			return fmt.Errorf("%s: %w", s.key, err)
		}
		if length == 0 {
			return fmt.Errorf("%s must be configured", s.key)
		}
		if length < minSigningSecretBytes {
			return fmt.Errorf("%s must decode to at least %d bytes (current: %d)", s.key, minSigningSecretBytes, length)
		}
	}

	return nil
}
