package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/cyclopsgroup/gitcon/internal/config"
	"github.com/cyclopsgroup/gitcon/internal/logging"
	"github.com/cyclopsgroup/gitcon/internal/service"
)

type syncFlags struct {
	configFiles []string
	once        bool
	metricsAddr string
	progress    bool
}

func newSyncCommand(g *globalFlags) *cobra.Command {
	var f syncFlags

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize the configured repositories until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runSync(ctx, cmd, g.logger(cmd), g, f)
		},
	}

	cmd.Flags().StringSliceVarP(&f.configFiles, "config", "c", nil, "configuration file, may be repeated to merge several files")
	cmd.Flags().BoolVar(&f.once, "once", false, "exit after the repositories are initialized")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on, overrides service.metrics_addr")
	cmd.Flags().BoolVar(&f.progress, "progress", false, "show initialization progress")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runSync(ctx context.Context, cmd *cobra.Command, log *logging.Logger, g *globalFlags, f syncFlags) error {
	bs, err := config.Merge(f.configFiles, true)
	if err != nil {
		return err
	}

	root, err := config.Parse(bs)
	if err != nil {
		return err
	}

	if addr := cmp.Or(f.metricsAddr, metricsAddr(root)); addr != "" {
		shutdown, err := serveMetrics(addr, log)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithRouterOptions(g.routerOptions(log)...),
	}

	if f.progress {
		bar := progressbar.NewOptions(len(root.Repositories),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("initializing"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		opts = append(opts, service.WithProgress(func(name string, _ error) {
			bar.Describe(name)
			_ = bar.Add(1)
		}))
	}

	svc, err := service.New(ctx, root, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Warnf("failed to close repositories: %v", err)
		}
	}()

	if err := svc.Init(ctx); err != nil {
		return err
	}

	for _, name := range svc.Names() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ready\n", name)
	}

	if f.once {
		return nil
	}

	log.Infof("synchronizing %d repositories", len(svc.Names()))
	<-ctx.Done()
	log.Infof("shutting down")
	return nil
}

func metricsAddr(root *config.Root) string {
	if root.Service == nil {
		return ""
	}
	return root.Service.MetricsAddr
}

func serveMetrics(addr string, log *logging.Logger) (func(), error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server: %v", err)
		}
	}()

	log.Infof("serving metrics on %s", l.Addr())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
