package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zombar/imagefinder"
	"github.com/zombar/imagefinder/api"
	"github.com/zombar/imagefinder/metrics"
	"github.com/zombar/imagefinder/storage"
	"github.com/zombar/imagefinder/tracing"
	"github.com/zombar/imagefinder/urlnorm"
)

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid integer env value, using default", "key", key, "provided", raw, "default", defaultValue)
		return defaultValue
	}
	return n
}

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("imagefinder service initializing", "version", "1.0.0")

	tp, err := tracing.InitTracer("imagefinder")
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
		logger.Info("tracing initialized")
	}

	// Defaults from the environment; flags override.
	defaultPort := getEnv("PORT", "8080")
	defaultArchivePath := getEnv("ARCHIVE_BASE_PATH", "")
	defaultOllamaURL := getEnv("OLLAMA_URL", "http://localhost:11434")
	defaultOllamaModel := getEnv("OLLAMA_VISION_MODEL", "llava:7b")
	defaultURLRules := getEnv("URL_RULES_PATH", "")

	port := flag.String("port", defaultPort, "Server port")
	ollamaURL := flag.String("ollama-url", defaultOllamaURL, "Ollama base URL for the vision check")
	ollamaModel := flag.String("ollama-vision-model", defaultOllamaModel, "Ollama vision model")
	urlRulesPath := flag.String("url-rules", defaultURLRules, "YAML file of per-domain URL normalization rules")
	disableCORS := flag.Bool("disable-cors", false, "Disable CORS")
	enableBrowser := flag.Bool("enable-browser", false, "Enable the headless-render fallback strategy")
	enableVision := flag.Bool("enable-vision", false, "Enable the AI image plausibility check")
	overallTimeout := flag.Duration("overall-timeout", 30*time.Second, "Per-article acquisition deadline")
	flag.Parse()

	// PostgreSQL dedup store configuration (required in production).
	dbHost := getEnv("DB_HOST", "")
	if dbHost == "" {
		logger.Error("DB_HOST environment variable is required")
		os.Exit(1)
	}
	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "imagefinder")
	dbPassword := getEnv("DB_PASSWORD", "imagefinder_dev_pass")
	dbName := getEnv("DB_NAME", "imagefinder")
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		dbHost, dbPort, dbUser, dbPassword, dbName)
	logger.Info("using PostgreSQL dedup store", "host", dbHost, "port", dbPort, "database", dbName)

	finderConfig := imagefinder.DefaultConfig()
	finderConfig.OverallTimeout = *overallTimeout
	finderConfig.EnableBrowser = *enableBrowser
	finderConfig.EnableVision = *enableVision
	finderConfig.Vision.BaseURL = *ollamaURL
	finderConfig.Vision.Model = *ollamaModel
	finderConfig.HammingThreshold = getEnvInt("HAMMING_THRESHOLD", finderConfig.HammingThreshold)
	finderConfig.RecentScanLimit = getEnvInt("RECENT_SCAN_LIMIT", finderConfig.RecentScanLimit)
	finderConfig.Metrics = metrics.New("imagefinder", prometheus.DefaultRegisterer)

	if *urlRulesPath != "" {
		rules, err := urlnorm.LoadRules(*urlRulesPath)
		if err != nil {
			logger.Error("failed to load URL normalization rules", "path", *urlRulesPath, "error", err)
			os.Exit(1)
		}
		finderConfig.URLRules = rules
		logger.Info("loaded URL normalization rules", "path", *urlRulesPath, "count", len(rules))
	}

	config := api.Config{
		Addr:            ":" + *port,
		DedupDSN:        dsn,
		ArchiveBasePath: defaultArchivePath,
		S3: storage.S3Config{
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", ""),
			Bucket:          getEnv("S3_BUCKET", ""),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnv("S3_USE_PATH_STYLE", "") == "true",
		},
		Finder:      finderConfig,
		CORSEnabled: !*disableCORS,
	}

	ctx := context.Background()
	server, err := api.NewServer(ctx, config)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Drop expired result-cache entries periodically.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if n := server.Finder().PurgeCache(); n > 0 {
				logger.Debug("purged expired cache entries", "count", n)
			}
		}
	}()

	go func() {
		logger.Info("imagefinder service starting",
			"port", *port,
			"database_host", dbHost,
			"database_name", dbName,
			"archive_path", defaultArchivePath,
			"s3_bucket", config.S3.Bucket,
			"browser_enabled", *enableBrowser,
			"vision_enabled", *enableVision,
		)
		if err := server.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
