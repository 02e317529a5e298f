// elFinder connector server
//
// Features:
// - elFinder protocol "open" and "tmb" commands over a local root
// - Public file serving for url/tmb links
// - Prometheus metrics & structured logging (zap)
// - Optional JWT bearer auth
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/elfinder/internal/api"
	"github.com/fruitsalade/elfinder/internal/auth"
	"github.com/fruitsalade/elfinder/internal/config"
	"github.com/fruitsalade/elfinder/internal/connector"
	"github.com/fruitsalade/elfinder/internal/logging"
	"github.com/fruitsalade/elfinder/internal/metrics"
)

func main() {
	issueFor := flag.String("issue-token", "", "Print a token for this username and exit (needs JWT_SECRET)")
	tokenTTL := flag.Duration("token-ttl", 30*24*time.Hour, "Lifetime of tokens printed by -issue-token")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if *issueFor != "" {
		if cfg.JWTSecret == "" {
			fmt.Fprintln(os.Stderr, "JWT_SECRET is required to issue tokens")
			os.Exit(1)
		}
		tok, err := auth.New(cfg.JWTSecret).IssueToken(*issueFor, *tokenTTL)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(tok)
		return
	}

	// Initialize structured logging
	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("elFinder connector starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("root", cfg.Connector.Root),
		zap.String("files", cfg.FilesPrefix))

	conn, err := connector.New(cfg.Connector)
	if err != nil {
		logging.Fatal("connector init failed", zap.Error(err))
	}
	logging.Info("connector ready",
		zap.Strings("commands", conn.Commands()),
		zap.String("thumbnails", conn.ThumbnailDir()))

	var authHandler *auth.Auth
	if cfg.JWTSecret != "" {
		authHandler = auth.New(cfg.JWTSecret)
		logging.Info("JWT auth enabled")
	} else {
		logging.Warn("JWT_SECRET not set, connector is public")
	}

	srv := api.NewServer(conn, authHandler, cfg.FilesPrefix)

	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", metrics.Handler())
	adminMux.Handle("/log/level", logging.LevelHandler())
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: adminMux,
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	useTLS := cfg.TLSCertFile != "" && cfg.TLSKeyFile != ""
	if useTLS {
		httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logging.Warn("graceful shutdown failed", zap.Error(err))
			httpServer.Close()
		}
		metricsServer.Close()
	}()

	if useTLS {
		logging.Info("server listening (TLS 1.3)",
			zap.String("addr", cfg.ListenAddr),
			zap.String("cert", cfg.TLSCertFile))
		if err := httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile); err != http.ErrServerClosed {
			logging.Fatal("server error", zap.Error(err))
		}
	} else {
		logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Fatal("server error", zap.Error(err))
		}
	}
	<-stopped
	logging.Info("server stopped")
}
