package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/goalpost/prediction-indexer/pkgs/leaderboard"
)

// APIServer exposes the leaderboard and diagnostics over HTTP
type APIServer struct {
	indexer *Indexer
}

// LeaderboardResponse is one page of ranked entries
type LeaderboardResponse struct {
	Entries      []leaderboard.Entry `json:"entries"`
	Page         int                 `json:"page"`
	PageSize     int                 `json:"page_size"`
	TotalEntries int                 `json:"total_entries"`
	LastUpdated  time.Time           `json:"last_updated"`
	Refreshing   bool                `json:"refreshing"`
}

func NewAPIServer(ix *Indexer) *APIServer {
	return &APIServer{indexer: ix}
}

// Router builds the gin router with all endpoints
func (s *APIServer) Router() *gin.Engine {
	if !s.indexer.config.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api/v1")
	{
		api.GET("/leaderboard", s.handleLeaderboard)
		api.GET("/reconciliation", s.handleReconciliation)
		api.GET("/health", s.handleHealth)
		api.POST("/internal/regenerate", s.handleRegenerate)
	}

	if s.indexer.config.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	return r
}

func (s *APIServer) handleLeaderboard(c *gin.Context) {
	cfg := s.indexer.config

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page must be a positive integer"})
		return
	}

	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(cfg.DefaultPageSize)))
	if err != nil || pageSize < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page_size must be a positive integer"})
		return
	}
	if pageSize > cfg.MaxPageSize {
		pageSize = cfg.MaxPageSize
	}

	entries, updated, total := s.indexer.engine.GetLeaderboard(page, pageSize)
	if entries == nil {
		entries = []leaderboard.Entry{}
	}

	c.JSON(http.StatusOK, LeaderboardResponse{
		Entries:      entries,
		Page:         page,
		PageSize:     pageSize,
		TotalEntries: total,
		LastUpdated:  updated,
		Refreshing:   s.indexer.engine.RegenerationInFlight(),
	})
}

func (s *APIServer) handleReconciliation(c *gin.Context) {
	report, err := s.indexer.engine.Reconcile(c.Request.Context())
	if err != nil {
		log.Errorf("Reconciliation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconciliation failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *APIServer) handleHealth(c *gin.Context) {
	if err := s.indexer.redisClient.Ping(c.Request.Context()).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"redis":  err.Error(),
		})
		return
	}

	_, updated, total := s.indexer.engine.GetLeaderboard(1, 1)
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"entries":         total,
		"last_updated":    updated,
		"regen_in_flight": s.indexer.engine.RegenerationInFlight(),
	})
}

func (s *APIServer) handleRegenerate(c *gin.Context) {
	s.indexer.engine.TriggerRegenerate()
	c.JSON(http.StatusAccepted, gin.H{"status": "regeneration triggered"})
}
