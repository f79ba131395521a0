package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Settings holds all configuration for the leaderboard indexer
type Settings struct {
	// Ethereum RPC Configuration
	RPCURL       string
	GameContract string // Prediction game contract address
	ChainID      int64
	WriterKey    string // Hex private key for the result-recording write path (optional)

	// Log Scanning
	ScanStartBlock   uint64 // Contract deployment block; 0 means "fallback window"
	ScanFallbackSpan uint64 // Blocks to look back when the origin block is unknown
	ScanChunkSize    uint64 // Hard per-query span limit enforced by the log source
	ScanParallelism  int    // Concurrent chunk queries per wave
	ScanMaxRetries   int
	ScanRetryBase    time.Duration
	ScanRetryCeiling time.Duration

	// Aggregate Stats Reads
	StatsParallelism int
	StatsReadTimeout time.Duration

	// Leaderboard Cache
	StalenessThreshold time.Duration
	RegenTimeout       time.Duration
	DefaultPageSize    int
	MaxPageSize        int

	// Result Recording
	FinalityBuffer    time.Duration // Wait after scheduled start before a result is queryable
	RecordingInterval time.Duration // How often the recording cycle runs; 0 disables it
	LedgerCacheSize   int           // Local LRU in front of the redis ledger

	// Sports Data Provider
	SportsAPIBaseURL     string
	SportsAPIKey         string
	SportsRequestSpacing time.Duration // Minimum gap between requests (provider quota)
	SportsMaxRetries     int

	// Redis Configuration
	RedisHost     string
	RedisPort     string
	RedisDB       int
	RedisPassword string

	// API Configuration
	APIHost string
	APIPort int

	// Monitoring & Debugging
	MetricsEnabled bool
	LogLevel       string
	DebugMode      bool
}

var (
	// SettingsObj is the global settings instance
	SettingsObj *Settings
)

// LoadConfig loads configuration from environment variables
func LoadConfig() error {
	SettingsObj = &Settings{
		// Ethereum RPC Configuration
		RPCURL:       getEnv("RPC_URL", ""),
		GameContract: getEnv("GAME_CONTRACT", ""),
		ChainID:      int64(getEnvAsInt("CHAIN_ID", 8453)),
		WriterKey:    getEnv("WRITER_PRIVATE_KEY", ""),

		// Log Scanning
		ScanStartBlock:   uint64(getEnvAsInt("SCAN_START_BLOCK", 0)),
		ScanFallbackSpan: uint64(getEnvAsInt("SCAN_FALLBACK_SPAN", 500000)),
		ScanChunkSize:    uint64(getEnvAsInt("SCAN_CHUNK_SIZE", 10000)),
		ScanParallelism:  getEnvAsInt("SCAN_PARALLELISM", 5),
		ScanMaxRetries:   getEnvAsInt("SCAN_MAX_RETRIES", 3),
		ScanRetryBase:    time.Duration(getEnvAsInt("SCAN_RETRY_BASE_MS", 500)) * time.Millisecond,
		ScanRetryCeiling: time.Duration(getEnvAsInt("SCAN_RETRY_CEILING_MS", 8000)) * time.Millisecond,

		// Aggregate Stats Reads
		StatsParallelism: getEnvAsInt("STATS_PARALLELISM", 8),
		StatsReadTimeout: time.Duration(getEnvAsInt("STATS_READ_TIMEOUT", 15)) * time.Second,

		// Leaderboard Cache
		StalenessThreshold: time.Duration(getEnvAsInt("LEADERBOARD_STALENESS_SECONDS", 3600)) * time.Second,
		RegenTimeout:       time.Duration(getEnvAsInt("REGEN_TIMEOUT_SECONDS", 120)) * time.Second,
		DefaultPageSize:    getEnvAsInt("LEADERBOARD_PAGE_SIZE", 25),
		MaxPageSize:        getEnvAsInt("LEADERBOARD_MAX_PAGE_SIZE", 100),

		// Result Recording
		FinalityBuffer:    time.Duration(getEnvAsInt("FINALITY_BUFFER_MINUTES", 150)) * time.Minute,
		RecordingInterval: time.Duration(getEnvAsInt("RECORDING_INTERVAL_MINUTES", 30)) * time.Minute,
		LedgerCacheSize:   getEnvAsInt("LEDGER_CACHE_SIZE", 10000),

		// Sports Data Provider
		SportsAPIBaseURL:     getEnv("SPORTS_API_BASE_URL", ""),
		SportsAPIKey:         getEnv("SPORTS_API_KEY", ""),
		SportsRequestSpacing: time.Duration(getEnvAsInt("SPORTS_REQUEST_SPACING_MS", 6500)) * time.Millisecond,
		SportsMaxRetries:     getEnvAsInt("SPORTS_MAX_RETRIES", 3),

		// Redis Configuration - Read directly from env
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		// API Configuration
		APIHost: getEnv("API_HOST", "0.0.0.0"),
		APIPort: getEnvAsInt("API_PORT", 8080),

		// Monitoring & Debugging
		MetricsEnabled: getBoolEnv("METRICS_ENABLED", true),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DebugMode:      getBoolEnv("DEBUG_MODE", false),
	}

	// Configure logging
	configureLogging()

	// Validate configuration
	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// Log configuration summary
	logConfigSummary()

	return nil
}

// configureLogging sets up the logger based on configuration
func configureLogging() {
	switch strings.ToLower(SettingsObj.LogLevel) {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn", "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}

	// Override with debug mode
	if SettingsObj.DebugMode {
		log.SetLevel(log.DebugLevel)
	}

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
		ForceColors:   true,
	})
}

// validateConfig validates the loaded configuration
func validateConfig() error {
	if SettingsObj.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if SettingsObj.GameContract == "" {
		return fmt.Errorf("GAME_CONTRACT is required")
	}
	if SettingsObj.ScanChunkSize == 0 {
		return fmt.Errorf("SCAN_CHUNK_SIZE must be positive")
	}
	if SettingsObj.ScanParallelism <= 0 {
		return fmt.Errorf("SCAN_PARALLELISM must be positive")
	}

	if SettingsObj.ScanStartBlock == 0 {
		log.Warnf("SCAN_START_BLOCK not set - scans will cover only the last %d blocks and may miss early activity",
			SettingsObj.ScanFallbackSpan)
	}

	if SettingsObj.RecordingInterval > 0 {
		if SettingsObj.SportsAPIBaseURL == "" {
			return fmt.Errorf("SPORTS_API_BASE_URL required when the recording cycle is enabled")
		}
		if SettingsObj.WriterKey == "" {
			log.Warn("WRITER_PRIVATE_KEY not set - recording batches will be computed but not submitted")
		}
	}

	return nil
}

// logConfigSummary logs a summary of the configuration
func logConfigSummary() {
	log.Info("=== Configuration Loaded ===")
	log.Infof("Game Contract: %s (chain %d)", SettingsObj.GameContract, SettingsObj.ChainID)
	log.Infof("Log Scan: chunk=%d parallelism=%d start_block=%d",
		SettingsObj.ScanChunkSize, SettingsObj.ScanParallelism, SettingsObj.ScanStartBlock)
	log.Infof("Stats Reads: parallelism=%d timeout=%v",
		SettingsObj.StatsParallelism, SettingsObj.StatsReadTimeout)
	log.Infof("Leaderboard: staleness=%v page_size=%d",
		SettingsObj.StalenessThreshold, SettingsObj.DefaultPageSize)
	log.Infof("Redis: %s:%s (DB %d)", SettingsObj.RedisHost, SettingsObj.RedisPort, SettingsObj.RedisDB)

	if SettingsObj.RecordingInterval > 0 {
		log.Infof("Recording: interval=%v finality_buffer=%v sports_spacing=%v",
			SettingsObj.RecordingInterval, SettingsObj.FinalityBuffer, SettingsObj.SportsRequestSpacing)
	} else {
		log.Info("Recording: disabled")
	}

	log.Info("============================")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		value = strings.ToLower(value)
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}
