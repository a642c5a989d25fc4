package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rahul/whatsmap/internal/gateway"
	"github.com/rahul/whatsmap/internal/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Answer commands from the enabled chat gateways",
	RunE: func(cmd *cobra.Command, args []string) error {
		if observability.IsTerminal() {
			observability.PrintBanner(os.Stdout)
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		var gateways []gateway.Messenger
		if tgCfg, ok := cfg.GetGatewayConfig("telegram"); ok {
			tg, err := gateway.NewTelegramGateway(tgCfg.Token, a.orchestrator, logger)
			if err != nil {
				return fmt.Errorf("telegram: %w", err)
			}
			gateways = append(gateways, tg)
		}
		if dcCfg, ok := cfg.GetGatewayConfig("discord"); ok {
			dc, err := gateway.NewDiscordGateway(dcCfg.Token, a.orchestrator, logger)
			if err != nil {
				return fmt.Errorf("discord: %w", err)
			}
			gateways = append(gateways, dc)
		}
		if len(gateways) == 0 && cfg.Metrics.Addr == "" {
			return errors.New("no gateway is enabled and no metrics address is set")
		}

		g, ctx := errgroup.WithContext(ctx)

		for _, gw := range gateways {
			g.Go(func() error {
				defer gw.Stop()
				return gw.Start(ctx)
			})
		}

		if cfg.Metrics.Addr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(a.promRegistry, promhttp.HandlerOpts{}))
			srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

			g.Go(func() error {
				logger.Info("metrics listening", zap.String("addr", cfg.Metrics.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
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

		logger.Info("serving", zap.Int("gateways", len(gateways)), zap.Int("tools", len(a.registry.Names())))
		err = g.Wait()
		logger.Info("shut down")
		return err
	},
}
