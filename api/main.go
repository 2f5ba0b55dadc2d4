package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"traffic-guard/api/internal/handlers"
	"traffic-guard/api/internal/storage"
	"traffic-guard/internal/alert"
	"traffic-guard/internal/client"
	"traffic-guard/internal/detector"
	"traffic-guard/internal/model"
	"traffic-guard/internal/pipeline"
	"traffic-guard/internal/query"
	"traffic-guard/internal/store"
	"traffic-guard/internal/utils"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		configFile = flag.String("config", "configs/traffic_guard.yaml", "Configuration file path (YAML)")
		port       = flag.String("port", "", "API server port (overrides config)")
	)
	flag.Parse()

	config, err := utils.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.NewLogger(config.Logging.Level, config.Logging.Format)

	// In-memory read side fed by the pipelines
	readStore := storage.NewStorage(logger)

	db, err := store.NewStore(config.Store.Path, config.StoreTables(), logger)
	if err != nil {
		log.Fatalf("Failed to open store %s: %v", config.Store.Path, err)
	}
	defer db.Close()

	adapter, err := buildAdapter(config, db, logger)
	if err != nil {
		log.Fatalf("Failed to create record source: %v", err)
	}

	scorer := client.NewHTTPScorer(
		config.ScorerEndpoints(),
		time.Duration(config.Scoring.TimeoutSeconds)*time.Second,
		logger,
	)

	dispatcher := alert.NewDispatcher(config.Alerting.Severity, logger)
	if config.Alerting.Channels.Log {
		dispatcher.RegisterNotifier(alert.NewLogAlertNotifier(logger))
	}
	if config.Alerting.Channels.Webhook {
		dispatcher.RegisterNotifier(alert.NewDiscordNotifier(
			config.Alerting.Webhook.URL,
			config.Alerting.Enabled,
			time.Duration(config.Alerting.Webhook.TimeoutSeconds)*time.Second,
			logger,
		))
	}

	det := detector.NewDetector(scorer, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipelines := make(map[model.Category]*pipeline.Pipeline)
	for _, profile := range config.EnabledCategories() {
		p := pipeline.NewPipeline(pipeline.Options{
			Category:      profile.Category(),
			Window:        config.Detection.Window,
			FetchLimit:    config.Detection.FetchLimit,
			Interval:      time.Duration(config.Detection.CheckIntervalSeconds) * time.Second,
			HistoryCap:    config.Detection.HistoryCap,
			Threshold:     *config.Detection.Threshold,
			AlertsEnabled: config.Alerting.Enabled,
		}, adapter, det, dispatcher, db, readStore, nil, logger)
		pipelines[profile.Category()] = p

		go p.Run(ctx)
	}

	h := handlers.NewHandlers(readStore, db, pipelines, logger)

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	api := router.PathPrefix("/api/v1").Subrouter()

	// Records endpoints
	api.HandleFunc("/records/summary", h.GetScoreSummary).Methods("GET")
	api.HandleFunc("/stream/records", h.StreamRecords).Methods("GET")
	api.HandleFunc("/records", h.GetRecords).Methods("GET")
	api.HandleFunc("/records/{id}", h.GetRecord).Methods("GET")

	// Alerts endpoints
	api.HandleFunc("/alerts/timeline", h.GetAlertsTimeline).Methods("GET")
	api.HandleFunc("/stream/alerts", h.StreamAlerts).Methods("GET")
	api.HandleFunc("/alerts", h.GetAlerts).Methods("GET")
	api.HandleFunc("/alerts/{id}", h.GetAlert).Methods("GET")

	// Detection endpoints
	api.HandleFunc("/stats", h.GetStats).Methods("GET")
	api.HandleFunc("/predict/{category}", h.Predict).Methods("POST")
	api.HandleFunc("/history/{category}", h.GetHistory).Methods("GET")

	// Config endpoints
	api.HandleFunc("/config", h.GetConfig).Methods("GET")
	api.HandleFunc("/config/{category}", h.UpdateConfig).Methods("PUT")

	// Health check
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")

	apiPort := config.Application.APIPort
	if *port != "" {
		apiPort = *port
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", apiPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
	}

	logger.Infof("API server starting on port %s", apiPort)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutting down API server...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server shutdown error: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}

func buildAdapter(config *utils.Config, db *store.Store, logger *logrus.Logger) (query.Adapter, error) {
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
		return query.NewSQLiteAdapter(db), nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowedOrigins := []string{
			"http://localhost:5000",
			"http://localhost:3000",
			"http://127.0.0.1:5000",
			"http://127.0.0.1:3000",
		}

		allowOrigin := "*"
		if origin != "" {
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					allowOrigin = origin
					break
				}
			}
		}

		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if allowOrigin != "*" {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
