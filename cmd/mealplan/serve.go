package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/mealplan/internal/middleware"
	"github.com/dukerupert/mealplan/internal/server"
	ws "github.com/dukerupert/mealplan/internal/websocket"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the meal API and live updates over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (overrides MEALPLAN_PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	port := cfg.Port
	if servePort != "" {
		port = servePort
	}

	hub := ws.NewHub(logger.With("component", "websocket"))
	a, err := openApp(server.BackupStatusBroadcaster(hub))
	if err != nil {
		return err
	}
	defer a.Close()

	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("MEALPLAN_TRUSTED_PROXIES: %w", err)
	}
	srv := server.New(a.meals, hub, a.backup, server.Options{
		Location:       time.Local,
		AllowedOrigins: cfg.AllowedOrigins,
		TrustedProxies: proxies,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go srv.RateLimiter().RunCleanup(ctx, 5*time.Minute)
	a.backup.Start(ctx)
	defer a.backup.Stop()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mealplan running", "addr", "http://localhost:"+port, "meals", a.meals.Len())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	fmt.Fprintln(os.Stderr, "\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
