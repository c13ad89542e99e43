package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raysh454/zapdash/internal/app"
	"github.com/raysh454/zapdash/internal/logging"
	"github.com/raysh454/zapdash/internal/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		Long: `Serve starts the HTTP and websocket API. Scan status is reconciled while at
least one dashboard is connected to /ws/dashboard.

Every config key can be set through the environment with the ZAPDASH_ prefix,
e.g. ZAPDASH_ZAP_BASE_URL or ZAPDASH_RECONCILER_INTERVAL=5s.`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}
	cmd.Flags().StringP("addr", "a", "", "Listen address (overrides http.addr)")
	cmd.Flags().Bool("poll", false, "Reconcile continuously, not only while a dashboard is open")
	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := app.LoadConfig(path)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTP.Addr = addr
	}

	logger, closer, err := logging.NewLogger(cfg.Logging, "zapdash")
	if err != nil {
		return err
	}
	defer closer.Close()

	rt, err := app.NewRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv, err := server.NewServer(server.Config{
		ListenAddr:     cfg.HTTP.Addr,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Logger:         logger.With(logging.Field{Key: "component", Value: "server"}),
		Registry:       rt.Registry,
	}, rt.Service)
	if err != nil {
		return fmt.Errorf("new server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if poll, _ := cmd.Flags().GetBool("poll"); poll {
		release, err := rt.Service.OpenSession()
		if err != nil {
			return err
		}
		defer release()
	}

	httpSrv := srv.HTTPServer(ctx)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", logging.Field{Key: "addr", Value: cfg.HTTP.Addr})
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	timeout := cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = app.DefaultConfig().HTTP.ShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
