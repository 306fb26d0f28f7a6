package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"yeectl/bridge"
	"yeectl/client"
	"yeectl/message"
	"yeectl/metrics"
	"yeectl/transport"
)

func (a *app) listenCommand() *cobra.Command {
	var (
		toMQTT      bool
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print notifications from the bulb",
		Long: "Print notifications from the bulb as \"property value\" lines until\n" +
			"interrupted. With --mqtt they are also published to the broker from the\n" +
			"configuration file.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if metricsAddr == "" {
				metricsAddr = a.cfg.Metrics.Listen
			}
			return a.listen(cmd.Context(), toMQTT, metricsAddr)
		},
	}
	cmd.Flags().BoolVar(&toMQTT, "mqtt", false, "publish notifications to MQTT")
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "serve Prometheus metrics on this address")
	return cmd
}

func (a *app) listen(ctx context.Context, toMQTT bool, metricsAddr string) error {
	reg := prometheus.NewRegistry()
	var opts []client.Option
	if metricsAddr != "" {
		opts = append(opts, client.WithMetrics(metrics.New(reg)))
	}
	b, release, err := a.connect(ctx, opts...)
	if err != nil {
		return err
	}
	defer release()

	sub, err := b.Subscribe()
	if err != nil {
		return err
	}
	defer sub.Close()

	g, ctx := errgroup.WithContext(ctx)

	var forward chan message.Notification
	if toMQTT {
		name, _ := a.target()
		br, err := bridge.Dial(a.cfg.MQTT, name, bridge.WithLogger(a.logger))
		if err != nil {
			return err
		}
		defer br.Close()
		forward = make(chan message.Notification, transport.DefaultNotificationBuffer)
		g.Go(func() error { return br.Run(ctx, forward) })
	}

	if metricsAddr != "" {
		serveMetrics(ctx, g, metricsAddr, reg, a.logger)
	}

	g.Go(func() error {
		if forward != nil {
			defer close(forward)
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case n, ok := <-sub.Events():
				if !ok {
					return connectionLost(b)
				}
				a.printNotification(n)
				if forward != nil {
					select {
					case forward <- n:
					default:
						a.logger.Warn("mqtt bridge is behind, dropping notification")
					}
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if dropped := sub.Dropped(); dropped > 0 {
		a.logger.Warn("notifications dropped", zap.Uint64("count", dropped))
	}
	return nil
}

func (a *app) printNotification(n message.Notification) {
	keys := make([]string, 0, len(n.Params))
	for k := range n.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintln(a.stdout, k, n.Params[k])
	}
}

func connectionLost(b *client.Bulb) error {
	err := b.Transport().Err()
	if err == nil {
		return transport.ErrDisconnected
	}
	return fmt.Errorf("%w: %v", transport.ErrDisconnected, err)
}

// serveMetrics runs a /metrics endpoint in g until ctx ends.
func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, reg *prometheus.Registry, logger *zap.Logger) {
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
