package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"traffic-guard/internal/alert"
	"traffic-guard/internal/client"
	"traffic-guard/internal/detector"
	"traffic-guard/internal/metrics"
	"traffic-guard/internal/pipeline"
	"traffic-guard/internal/query"
	"traffic-guard/internal/store"
	"traffic-guard/internal/utils"

	"github.com/sirupsen/logrus"
)

func getVersion() string {
	content, err := os.ReadFile("VERSION")
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(content))
}

func main() {
	var (
		configFile = flag.String("config", "configs/traffic_guard.yaml", "Configuration file path (YAML)")
	)
	flag.Parse()

	config, err := utils.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("Failed to load YAML config %s: %v\n", *configFile, err)
		fmt.Println("Using default configuration...")
		config = utils.GetDefaultConfig()
	} else {
		fmt.Printf("Loaded configuration from %s\n", *configFile)
	}

	logger := utils.NewLogger(config.Logging.Level, config.Logging.Format)

	var categoryNames []string
	for _, profile := range config.EnabledCategories() {
		categoryNames = append(categoryNames, profile.Name)
	}

	fmt.Printf("Traffic Guard v%s\n", getVersion())
	fmt.Printf("Record source: %s\n", config.Application.Source)
	fmt.Printf("Monitoring categories: %s\n", strings.Join(categoryNames, ", "))
	fmt.Println("")

	exporter, err := metrics.NewExporter(config.Application.MetricsPort, logger)
	if err != nil {
		fmt.Printf("Failed to create Prometheus exporter: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := exporter.Start(ctx); err != nil {
			logger.Errorf("Prometheus exporter error: %v", err)
		}
	}()

	st, err := store.NewStore(config.Store.Path, config.StoreTables(), logger)
	if err != nil {
		fmt.Printf("Failed to open store %s: %v\n", config.Store.Path, err)
		os.Exit(1)
	}
	defer st.Close()

	adapter, err := buildAdapter(config, st, logger)
	if err != nil {
		fmt.Printf("Failed to create record source: %v\n", err)
		os.Exit(1)
	}

	scorer := client.NewHTTPScorer(
		config.ScorerEndpoints(),
		time.Duration(config.Scoring.TimeoutSeconds)*time.Second,
		logger,
	)

	dispatcher := alert.NewDispatcher(config.Alerting.Severity, logger)
	registerAlertNotifiers(dispatcher, config, logger)

	det := detector.NewDetector(scorer, exporter.GetMetrics(), logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nStopping traffic pipelines...")
		cancel()
	}()

	var wg sync.WaitGroup
	for _, profile := range config.EnabledCategories() {
		p := pipeline.NewPipeline(pipeline.Options{
			Category:      profile.Category(),
			Window:        config.Detection.Window,
			FetchLimit:    config.Detection.FetchLimit,
			Interval:      time.Duration(config.Detection.CheckIntervalSeconds) * time.Second,
			HistoryCap:    config.Detection.HistoryCap,
			Threshold:     *config.Detection.Threshold,
			AlertsEnabled: config.Alerting.Enabled,
		}, adapter, det, dispatcher, st, nil, exporter.GetMetrics(), logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(ctx)
		}()
	}

	fmt.Println("Traffic pipelines started!")
	wg.Wait()
	fmt.Println("Traffic pipelines stopped")
}

func buildAdapter(config *utils.Config, st *store.Store, logger *logrus.Logger) (query.Adapter, error) {
	switch config.Application.Source {
	case "prometheus":
		promClient, err := client.NewPrometheusClient(config.Prometheus.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Prometheus client: %v", err)
		}
		return query.NewPrometheusAdapter(
			promClient,
			query.DefaultFieldQueries(),
			time.Duration(config.Prometheus.StepSeconds)*time.Second,
			time.Duration(config.Prometheus.TimeoutSeconds)*time.Second,
			logger,
		), nil
	default:
		return query.NewSQLiteAdapter(st), nil
	}
}

func registerAlertNotifiers(dispatcher *alert.Dispatcher, config *utils.Config, logger *logrus.Logger) {
	if config.Alerting.Channels.Log {
		dispatcher.RegisterNotifier(alert.NewLogAlertNotifier(logger))
	}

	if config.Alerting.Channels.Webhook {
		webhook := alert.NewDiscordNotifier(
			config.Alerting.Webhook.URL,
			config.Alerting.Enabled,
			time.Duration(config.Alerting.Webhook.TimeoutSeconds)*time.Second,
			logger,
		)
		dispatcher.RegisterNotifier(webhook)
	}
}
