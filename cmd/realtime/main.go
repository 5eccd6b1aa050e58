package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/MathewBravo/realtime-db/internal/admin"
	"github.com/MathewBravo/realtime-db/internal/configs"
	"github.com/MathewBravo/realtime-db/internal/connector"
	"github.com/MathewBravo/realtime-db/internal/events"
	"github.com/MathewBravo/realtime-db/internal/logging"
	"github.com/MathewBravo/realtime-db/internal/pipeline"
	"github.com/MathewBravo/realtime-db/internal/sink"
	"github.com/MathewBravo/realtime-db/internal/source"
	"github.com/MathewBravo/realtime-db/internal/telemetry"
	"github.com/MathewBravo/realtime-db/pkg/poller"
)

const (
	appName    = "realtime"
	appVersion = "0.1.0"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   appName,
		Short: "Poll database tables and publish their changes",
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Start polling the configured tables",
		RunE:  run,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, appVersion)
		},
	}
)

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "./data/config.yaml", "Path to the YAML config")
	rootCmd.AddCommand(runCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := configs.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logging.Setup(cfg.Log)
	log.Info().Str("path", configPath).Msg("Config loaded")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	src, err := source.Open(ctx, cfg.Source)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	var registry *prometheus.Registry
	if cfg.Admin.Addr != "" {
		registry = telemetry.NewRegistry()
	}
	metrics := telemetry.New(registry)

	policy := poller.StopIgnoreUnknown
	if cfg.Listen.StrictStop {
		policy = poller.StopStrict
	}
	engine := poller.New(src,
		poller.WithLogger(log.Logger),
		poller.WithMetrics(metrics),
		poller.WithStopPolicy(policy),
		poller.WithFetchTimeout(cfg.Source.FetchTimeout),
	)
	defer engine.Close()

	conn := connector.NewPollingConnector(engine, cfg.Listen)
	eventCh, err := conn.Start()
	if err != nil {
		return fmt.Errorf("failed to start connector: %w", err)
	}
	log.Info().Msg("Connector started")

	p := pipeline.NewPipeline(&cfg.Pipeline)
	outputCh := p.Start(eventCh)

	var s *sink.KafkaSink
	if len(cfg.Sink.Brokers) > 0 {
		s, err = sink.NewKafkaSink(&cfg.Sink)
		if err != nil {
			_ = conn.Stop()
			return fmt.Errorf("failed to create kafka sink: %w", err)
		}
		if err := s.Start(outputCh); err != nil {
			_ = conn.Stop()
			return fmt.Errorf("failed to start kafka sink: %w", err)
		}
		log.Info().Strs("brokers", cfg.Sink.Brokers).Msg("Kafka sink started")
	} else {
		go logEvents(outputCh)
		log.Warn().Msg("No brokers configured, changes are only logged")
	}

	var adminSrv *admin.Server
	if cfg.Admin.Addr != "" {
		adminSrv = admin.NewServer(cfg.Admin.Addr, admin.NewHandlers(conn, cfg.Listen.DefaultInterval, metrics.Handler()))
		adminSrv.Start()
	}

	log.Info().Msg("Realtime DB running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("Shutting down...")

	if adminSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := adminSrv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Admin server shutdown failed")
		}
		cancel()
	}

	// stopping the connector closes the channel the pipeline and sink drain
	if err := conn.Stop(); err != nil {
		log.Error().Err(err).Msg("Error stopping connector")
	}
	if s != nil {
		s.Stop()
	}

	log.Info().Msg("Shutdown complete")
	return nil
}

func logEvents(ch <-chan events.ChangeEvent) {
	for event := range ch {
		log.Info().
			Str("table", event.Table).
			Str("kind", event.Kind.String()).
			Str("route", event.Route).
			Int("rows", len(event.Rows)).
			Msg("Change")
		log.Debug().Msg(event.Pretty())
	}
}
