package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/creek/internal/api"
	"github.com/caffeineduck/creek/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the method channel over HTTP",
	Long: `Start an HTTP server exposing the method channel.

Endpoints:
  POST   /methods/{method}                      Invoke a method, body is the args object
  POST   /channels/{channel}/methods/{method}   Same, addressed by channel name
  GET    /methods                               List methods and their arguments
  PUT    /intent                                Replace the launch component {"component":"..."}
  GET    /health                                Liveness
  GET    /health/ready                          503 until the interpreter is ready
  GET    /metrics                               Prometheus metrics (when enabled)`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "Listen address (overrides server.listen)")
	serveCmd.Flags().StringSlice("allow-host", nil, "Allow HTTP from scripts to host (repeatable)")
	serveCmd.Flags().StringSlice("mount", nil, "Mount filesystem virtual:host:mode (repeatable)")
	rootCmd.AddCommand(serveCmd)
}

// applyHostFlags overlays --allow-host and --mount onto the loaded config.
func applyHostFlags(cmd *cobra.Command) error {
	if hosts, _ := cmd.Flags().GetStringSlice("allow-host"); len(hosts) > 0 {
		cfg.Host.AllowedHosts = append(cfg.Host.AllowedHosts, hosts...)
	}
	mounts, _ := cmd.Flags().GetStringSlice("mount")
	for _, spec := range mounts {
		m, err := parseMount(spec)
		if err != nil {
			return err
		}
		cfg.Host.Mounts = append(cfg.Host.Mounts, m)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := applyHostFlags(cmd); err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	routerCfg := api.Config{
		Dispatcher: a.dispatcher,
		Runtime:    a.runtime,
		Channel:    cfg.Server.Channel,
	}
	if a.registry != nil {
		routerCfg.Gatherer = a.registry
	}

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:     api.NewRouter(routerCfg),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	a.start(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("method channel listening",
			logger.KeyAddr, ln.Addr().String(), logger.KeyChannel, cfg.Server.Channel, logger.KeyBackend, a.runtime.Backend())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
