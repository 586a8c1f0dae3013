package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hazard-loss/internal/events"
	"github.com/sells-group/hazard-loss/internal/monitoring"
)

var consumeMetricsPort int

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Apply asset change events from Kafka incrementally",
	Long:  "Consume asset upsert/delete events and apply each through the incremental recompute or retract path. Offsets are committed only after an event is applied.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("consume"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		metrics := monitoring.NewMetrics()
		eng, err := initEngine(st, cfg, metrics)
		if err != nil {
			return err
		}

		checker := monitoring.NewChecker(st, eng, metrics,
			time.Duration(cfg.Monitoring.CheckIntervalSecs)*time.Second, cfg.Monitoring.RefreshEvery)
		go checker.Run(ctx)

		if consumeMetricsPort > 0 {
			mux := http.NewServeMux()
			mux.Handle("GET /metrics", promhttp.Handler())
			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", consumeMetricsPort),
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					zap.L().Error("metrics server failed", zap.Error(err))
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		reader := events.NewReader(events.ReaderConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		})
		defer reader.Close() //nolint:errcheck
		consumer := events.NewConsumer(reader, eng, metrics, retryConfig(cfg))

		zap.L().Info("consuming asset changes",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
			zap.String("group_id", cfg.Kafka.GroupID),
		)
		if err := consumer.Run(ctx); err != nil {
			return eris.Wrap(err, "consume")
		}
		return nil
	},
}

func init() {
	consumeCmd.Flags().IntVar(&consumeMetricsPort, "metrics-port", 0, "serve /metrics on this port (0 disables)")
	rootCmd.AddCommand(consumeCmd)
}
