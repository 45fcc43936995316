package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the alert engine",
	Long: `Run the periodic scheduler and the evaluation stream consumer until
SIGINT or SIGTERM. Prometheus metrics are served on METRICS_ADDR.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		svc, err := newAlertService(ctx)
		if err != nil {
			return err
		}
		defer svc.Stop()

		metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
		go func() {
			log.Info("Metrics listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server error", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				log.Warn("Metrics server shutdown error", zap.Error(err))
			}
		}()

		serviceErrChan := make(chan error, 1)
		go func() {
			serviceErrChan <- svc.Start(ctx)
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
			cancel()
			<-serviceErrChan
		case err := <-serviceErrChan:
			if err != nil {
				log.Error("Service error", zap.Error(err))
				return err
			}
		}

		log.Info("Alert service stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
