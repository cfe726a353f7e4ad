package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pearmediallc/creative-library-analytics/internal/adsource"
	"github.com/pearmediallc/creative-library-analytics/internal/config"
	"github.com/pearmediallc/creative-library-analytics/internal/correlate"
	"github.com/pearmediallc/creative-library-analytics/internal/database"
	"github.com/pearmediallc/creative-library-analytics/internal/metrics"
	"github.com/pearmediallc/creative-library-analytics/internal/models"
	"github.com/pearmediallc/creative-library-analytics/internal/storage"
	"github.com/pearmediallc/creative-library-analytics/internal/tracker"
)

// Dependencies holds all external dependencies for the server. DB and
// Redis may be nil; the server falls back to in-memory equivalents.
type Dependencies struct {
	DB      *database.PostgresDB
	Redis   *database.RedisDB
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// SeedOwners populates the in-memory registry when DB is nil.
	SeedOwners []models.Owner
}

// SpendLister pulls spend records from the advertising platform when
// the caller does not post them directly. adsource.Client implements it.
type SpendLister interface {
	ListSpendRecords(ctx context.Context, adAccountID string) ([]models.SpendRecord, error)
}

// Server wraps HTTP handlers around the correlation engine.
type Server struct {
	engine   *correlate.Engine
	adSource SpendLister
	tracker  *tracker.Client
	logger   *zap.Logger
	config   *config.Config
	db       *database.PostgresDB
	redis    *database.RedisDB
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	// Owner registry source
	var registry storage.RegistrySource
	if deps.DB != nil {
		registry = storage.NewPostgresRegistrySource(deps.DB.Pool, deps.Logger)
	} else {
		registry = storage.NewInMemoryRegistrySource(deps.SeedOwners)
	}

	// Revenue lookup cache (optional)
	var cache *tracker.RevenueCache
	if deps.Redis != nil {
		cache = tracker.NewRevenueCache(deps.Redis.Client, deps.Config.Tracker.CacheTTL, deps.Logger)
	}

	// Rate-limited tracker fetcher
	client := tracker.NewClient(deps.Config.Tracker, deps.Logger)
	limiter := tracker.NewWindowLimiter(deps.Config.Tracker.RequestsPerMinute, deps.Config.Tracker.RequestDelay)
	fetcher := tracker.NewFetcher(client, limiter, cache, deps.Config.Tracker, deps.Logger, deps.Metrics)

	engine := correlate.NewEngine(fetcher, registry, deps.Config.Run.Timeout, deps.Logger, deps.Metrics)

	var adSource SpendLister
	if deps.Config.AdSource.BaseURL != "" {
		adSource = adsource.NewClient(deps.Config.AdSource, deps.Logger)
	}

	s := &Server{
		engine:   engine,
		adSource: adSource,
		tracker:  client,
		logger:   deps.Logger,
		config:   deps.Config,
		db:       deps.DB,
		redis:    deps.Redis,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	// Analytics
	mux.HandleFunc("/api/analytics/correlate", s.handleCorrelate)

	return mux
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}
	if s.db != nil {
		if err := s.db.Health(ctx); err != nil {
			status["postgres"] = "down"
		} else {
			status["postgres"] = "up"
		}
	}
	if s.redis != nil {
		if err := s.redis.Health(ctx); err != nil {
			status["redis"] = "down"
		} else {
			status["redis"] = "up"
		}
	}
	if s.config.Tracker.BaseURL != "" {
		if err := s.tracker.Health(ctx); err != nil {
			status["tracker"] = "down"
		} else {
			status["tracker"] = "up"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

// ---- Correlation ----

// correlateRequest is the body of POST /api/analytics/correlate. When
// Records is empty, spend records are pulled from the advertising
// platform for AdAccountID instead.
type correlateRequest struct {
	Records     []models.SpendRecord `json:"records"`
	AdAccountID string               `json:"ad_account_id"`
}

func (s *Server) handleCorrelate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req correlateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	spend := req.Records
	if len(spend) == 0 {
		if req.AdAccountID == "" {
			s.errorResponse(w, "records or ad_account_id required", http.StatusBadRequest)
			return
		}
		if s.adSource == nil {
			s.errorResponse(w, "ad source not configured", http.StatusServiceUnavailable)
			return
		}
		var err error
		spend, err = s.adSource.ListSpendRecords(r.Context(), req.AdAccountID)
		if err != nil {
			s.logger.Error("spend fetch failed", zap.Error(err))
			s.errorResponse(w, "failed to fetch spend records", http.StatusBadGateway)
			return
		}
	}

	result, err := s.engine.Run(r.Context(), spend)
	if err != nil {
		s.logger.Error("correlation run failed", zap.Error(err))
		s.errorResponse(w, "correlation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (s *Server) errorResponse(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
