package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/goalpost/prediction-indexer/config"
	"github.com/goalpost/prediction-indexer/pkgs/cache"
	"github.com/goalpost/prediction-indexer/pkgs/contract"
	"github.com/goalpost/prediction-indexer/pkgs/engine"
	"github.com/goalpost/prediction-indexer/pkgs/events"
	"github.com/goalpost/prediction-indexer/pkgs/guard"
	"github.com/goalpost/prediction-indexer/pkgs/logscan"
	"github.com/goalpost/prediction-indexer/pkgs/rediskeys"
	"github.com/goalpost/prediction-indexer/pkgs/sportsdata"
	"github.com/goalpost/prediction-indexer/pkgs/stats"
)

// Indexer owns every long-lived component of the service
type Indexer struct {
	ctx    context.Context
	cancel context.CancelFunc

	redisClient *redis.Client
	ethClient   *ethclient.Client
	keyBuilder  *rediskeys.KeyBuilder
	store       *cache.Store
	engine      *engine.Engine
	config      *config.Settings
}

func NewIndexer(cfg *config.Settings) (*Indexer, error) {
	ctx, cancel := context.WithCancel(context.Background())

	redisOpts := &redis.Options{
		Addr: fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		DB:   cfg.RedisDB,
	}
	password := strings.TrimSpace(cfg.RedisPassword)
	if password != "" {
		redisOpts.Password = password
	}
	redisClient := redis.NewClient(redisOpts)

	if err := redisClient.Ping(ctx).Err(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info("✅ Connected to Redis")

	ethClient, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to RPC at %s: %w", cfg.RPCURL, err)
	}
	log.Infof("✅ Connected to RPC: %s", cfg.RPCURL)

	gameABI, err := contract.ParseGameABI()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to parse game ABI: %w", err)
	}

	decoder, err := events.NewDecoder(gameABI)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to build event decoder: %w", err)
	}

	reader, err := contract.NewReader(ethClient, cfg.GameContract, gameABI)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to build contract reader: %w", err)
	}

	fetcher := logscan.NewFetcher(ethClient, logscan.Config{
		SourceAddress: cfg.GameContract,
		MaxChunkSize:  cfg.ScanChunkSize,
		Parallelism:   cfg.ScanParallelism,
		MaxRetries:    cfg.ScanMaxRetries,
		RetryBase:     cfg.ScanRetryBase,
		RetryCeiling:  cfg.ScanRetryCeiling,
		StartBlock:    cfg.ScanStartBlock,
		FallbackSpan:  cfg.ScanFallbackSpan,
	})

	statsReader := stats.NewReader(reader, stats.Config{
		Parallelism: cfg.StatsParallelism,
		ReadTimeout: cfg.StatsReadTimeout,
	})

	keyBuilder := rediskeys.NewKeyBuilder(cfg.GameContract)
	kv := &cache.RedisKV{Client: redisClient}
	store := cache.NewStore(kv, keyBuilder)

	ledger, err := guard.NewRedisLedger(redisClient, keyBuilder, cfg.LedgerCacheSize)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to build idempotency ledger: %w", err)
	}

	scores := sportsdata.NewClient(sportsdata.Config{
		BaseURL:        cfg.SportsAPIBaseURL,
		APIKey:         cfg.SportsAPIKey,
		RequestSpacing: cfg.SportsRequestSpacing,
		MaxRetries:     cfg.SportsMaxRetries,
	})

	g := guard.NewGuard(reader, scores, ledger, guard.Config{
		FinalityBuffer: cfg.FinalityBuffer,
	})

	// The write path is optional: without a writer key the service still
	// indexes, serves, and reconciles, it just never submits batches.
	var recorder engine.ResultRecorder
	if cfg.WriterKey != "" {
		r, err := contract.NewRecorder(ethClient, cfg.GameContract, cfg.WriterKey, cfg.ChainID)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to build result recorder: %w", err)
		}
		recorder = r
		log.Info("📤 Result recording enabled")
	} else {
		log.Warn("Result recording disabled: no writer key configured")
	}

	eng := engine.New(fetcher, decoder, statsReader, store, g, ledger, recorder, kv, keyBuilder, engine.Config{
		StalenessThreshold: cfg.StalenessThreshold,
		RegenTimeout:       cfg.RegenTimeout,
		RecordingInterval:  cfg.RecordingInterval,
		ReportTTL:          24 * time.Hour,
	})

	return &Indexer{
		ctx:         ctx,
		cancel:      cancel,
		redisClient: redisClient,
		ethClient:   ethClient,
		keyBuilder:  keyBuilder,
		store:       store,
		engine:      eng,
		config:      cfg,
	}, nil
}

func (ix *Indexer) Start() error {
	// Restore the persisted snapshot so restarts serve immediately
	if err := ix.store.Load(ix.ctx); err != nil {
		log.Warnf("No persisted leaderboard snapshot restored: %v", err)
	}

	// Warm up in the background; the API serves the restored (or empty)
	// snapshot in the meantime
	ix.engine.TriggerRegenerate()

	go ix.engine.RunScheduler(ix.ctx)

	api := NewAPIServer(ix)
	addr := fmt.Sprintf("%s:%d", ix.config.APIHost, ix.config.APIPort)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.Router(),
	}

	go func() {
		log.Infof("🚀 API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("API server error: %v", err)
			ix.cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infof("🛑 Received signal %s, shutting down", sig)
	case <-ix.ctx.Done():
	}

	ix.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("API shutdown error: %v", err)
	}

	ix.ethClient.Close()
	if err := ix.redisClient.Close(); err != nil {
		log.Errorf("Redis close error: %v", err)
	}

	log.Info("✅ Shutdown complete")
	return nil
}

func main() {
	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	indexer, err := NewIndexer(config.SettingsObj)
	if err != nil {
		log.Fatalf("Failed to initialize indexer: %v", err)
	}

	if err := indexer.Start(); err != nil {
		log.Fatalf("Indexer exited with error: %v", err)
	}
}
