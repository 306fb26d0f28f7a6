package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"yeectl/metrics"
	"yeectl/middleware"
	"yeectl/server"
)

func (a *app) emulateCommand() *cobra.Command {
	var (
		listen      string
		metricsAddr string
		register    string
		quota       float64
	)
	cmd := &cobra.Command{
		Use:   "emulate",
		Short: "Run an emulated bulb for development without hardware",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if metricsAddr == "" {
				metricsAddr = a.cfg.Metrics.Listen
			}
			return a.emulate(cmd.Context(), listen, metricsAddr, register, quota)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:55443", "address to accept connections on")
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&register, "register", "", "register the emulator in the registry under this name")
	cmd.Flags().Float64Var(&quota, "quota", 60, "commands per minute per connection, 0 for unlimited")
	return cmd
}

func (a *app) emulate(ctx context.Context, listen, metricsAddr, register string, quota float64) error {
	opts := []server.Option{server.WithLogger(a.logger), server.WithQuota(quota)}
	if register != "" {
		reg, release, err := a.openRegistry()
		if err != nil {
			return err
		}
		defer release()
		opts = append(opts, server.WithRegistration(reg, register, 10*time.Second))
	}

	svr := server.NewServer(opts...)
	svr.Use(middleware.Logging(a.logger.Named("server")))

	reg := prometheus.NewRegistry()
	if metricsAddr != "" {
		svr.Use(middleware.Metrics(metrics.New(reg)))
	}

	if err := svr.Start("tcp", listen); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "emulated bulb listening on", svr.Addr())

	g, ctx := errgroup.WithContext(ctx)
	if metricsAddr != "" {
		serveMetrics(ctx, g, metricsAddr, reg, a.logger)
	}
	g.Go(func() error {
		<-ctx.Done()
		return svr.Shutdown(5 * time.Second)
	})
	return g.Wait()
}
