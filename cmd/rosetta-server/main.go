// Package main provides the CLI entry point for the Rosetta relay server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tectonicboy/rosetta/internal/config"
	"github.com/tectonicboy/rosetta/internal/group"
	"github.com/tectonicboy/rosetta/internal/logging"
	"github.com/tectonicboy/rosetta/internal/rosettaserver"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "rosetta-server",
		Short:   "Rosetta end-to-end-encrypted group chat relay server",
		Version: Version,
	}

	rootCmd.AddGroup(&cobra.Group{ID: "start", Title: "Getting Started:"})

	serve := serveCmd()
	serve.GroupID = "start"
	rootCmd.AddCommand(serve)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		Long: `Run the relay server: accept TCP connections on the configured
listen address, dispatch login/room/message packets, and optionally serve
Prometheus metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = loaded
			}

			log := logging.New(cfg.Log.Level, cfg.Log.Format)

			params, err := group.LoadParams(cfg.Server.DataDir)
			if err != nil {
				return fmt.Errorf("load group parameters: %w", err)
			}

			priv, err := rosettaserver.LoadServerPrivkey(filepath.Join(cfg.Server.DataDir, "server_privkey.dat"))
			if err != nil {
				return fmt.Errorf("load server identity: %w", err)
			}

			reg := prometheus.NewRegistry()
			metrics := rosettaserver.NewMetrics(reg)

			srv := rosettaserver.New(params, priv, log, metrics)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if cfg.Server.MetricsAddress != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
				metricsSrv := &http.Server{Addr: cfg.Server.MetricsAddress, Handler: mux}
				go func() {
					if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						log.Error("metrics server failed", logging.KeyError, err.Error())
					}
				}()
				go func() {
					<-ctx.Done()
					metricsSrv.Close()
				}()
				log.Info("metrics listening", logging.KeyLocalAddr, cfg.Server.MetricsAddress)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				log.Info("shutting down")
				cancel()
			}()

			return srv.Serve(ctx, cfg.Server.ListenAddress)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	return cmd
}
