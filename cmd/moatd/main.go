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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keysplatform/moat/internal/api"
	"github.com/keysplatform/moat/internal/auth"
	"github.com/keysplatform/moat/internal/cache"
	"github.com/keysplatform/moat/internal/database"
	"github.com/keysplatform/moat/internal/events"
	"github.com/keysplatform/moat/internal/logging"
	"github.com/keysplatform/moat/internal/metrics"
	"github.com/keysplatform/moat/internal/moat"
	"github.com/keysplatform/moat/internal/patterns"
	"github.com/keysplatform/moat/internal/safety"
	"github.com/keysplatform/moat/internal/telemetry"
	"github.com/keysplatform/moat/pkg/config"
)

const version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	showHelp := flag.Bool("help", false, "Show help message")
	flag.Parse()

	if *showHelp {
		printHelp()
		return
	}

	if *showVersion {
		fmt.Printf("moatd v%s\n", version)
		return
	}

	cfg, err := config.LoadConfigFromFile(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatalf("failed to load config from %s: %v", *configPath, err)
		}
		log.Printf("No config file at %s, using defaults", *configPath)
		cfg = config.DefaultConfig()
	}

	// Override with environment variables if set
	if dsn := os.Getenv("MOAT_DB_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if secret := os.Getenv("MOAT_JWT_SECRET"); secret != "" {
		cfg.Security.JWTSecret = secret
	}

	db, err := database.NewPostgres(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	db.DB().SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.DB().SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.DB().SetConnMaxLifetime(cfg.Database.ConnLifetime)

	logs := logging.NewManager(db.DB())

	// Export the connection pool size for dashboards.
	m := metrics.NewMetrics()
	go func() {
		for {
			m.DatabaseConnections.Set(float64(db.DB().Stats().OpenConnections))
			time.Sleep(15 * time.Second)
		}
	}()

	// Initialize OpenTelemetry
	if cfg.Telemetry.Enabled {
		otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		if otelEndpoint == "" {
			otelEndpoint = cfg.Telemetry.Endpoint
		}
		shutdownTelemetry, err := telemetry.InitTelemetry(context.Background(), cfg.Telemetry.ServiceName, otelEndpoint)
		if err != nil {
			log.Printf("Warning: Failed to initialize telemetry: %v", err)
		} else {
			defer func() {
				if err := shutdownTelemetry(context.Background()); err != nil {
					log.Printf("Error shutting down telemetry: %v", err)
				}
			}()
		}
	}

	// Score cache is optional; the moat service is nil-safe without it.
	var scoreCache *cache.Cache
	if cfg.Cache.Enabled {
		scoreCache, err = cache.New(context.Background(), cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			log.Printf("Warning: Redis unavailable, running without cache: %v", err)
			scoreCache = nil
		} else {
			defer scoreCache.Close()
		}
	}

	// Event publisher is optional too.
	var publisher patterns.Publisher
	if cfg.Events.Enabled {
		pub, err := events.NewPublisher(events.Config{
			URL:        cfg.Events.URL,
			StreamName: cfg.Events.StreamName,
			Timeout:    cfg.Events.Timeout,
		}, logs)
		if err != nil {
			log.Printf("Warning: NATS unavailable, running without events: %v", err)
		} else {
			publisher = pub
			defer pub.Close()
		}
	}

	scanner := safety.NewScanner()
	if cfg.Safety.RuleOverridePath != "" {
		reloader, err := safety.NewRuleReloader(cfg.Safety.RuleOverridePath, scanner, logs)
		if err != nil {
			log.Printf("Warning: rule override reloader failed: %v", err)
		} else {
			defer reloader.Close()
		}
	}

	patternService := patterns.NewService(db, logs, publisher)
	safetyService := safety.NewService(scanner, db, logs)
	moatService := moat.NewService(db, scoreCache)

	authManager := auth.NewManager(cfg.Security.JWTSecret)

	apiServer := api.NewServer(patternService, safetyService, moatService, authManager, logs, cfg)
	handler := apiServer.SetupRoutes()

	// Wrap handler with OpenTelemetry instrumentation
	handler = otelhttp.NewHandler(handler, "moat-http-server")

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("Moat API listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(shutdownCtx)
}

func printHelp() {
	fmt.Println("Usage: moatd [flags]")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  -config   Path to configuration file (default: config.yaml)")
	fmt.Println("  -version  Show version information")
	fmt.Println("  -help     Show help message")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  MOAT_DB_DSN                  PostgreSQL connection string")
	fmt.Println("  MOAT_JWT_SECRET              Secret for signing API tokens")
	fmt.Println("  OTEL_EXPORTER_OTLP_ENDPOINT  OpenTelemetry collector endpoint")
}
