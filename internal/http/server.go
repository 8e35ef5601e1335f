package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/cors"

	"flynance/internal/amqp"
	"flynance/internal/cache"
	"flynance/internal/core"
	"flynance/internal/log"
	"flynance/internal/middleware/ratelimit"
	"flynance/internal/middleware/security"
	"flynance/internal/middleware/trace"
	"flynance/internal/period"
	"flynance/internal/query"
	"flynance/internal/services"
)

// TransactionReader is the fetch layer the handlers read through.
type TransactionReader interface {
	List(ctx context.Context, store services.AppliedFilters, caller query.Params) (services.Listing, error)
	Summary(ctx context.Context, store services.AppliedFilters) (services.Report, error)
	Categories(ctx context.Context) ([]core.Category, error)
	Ready(ctx context.Context) error
}

// Config holds the server settings.
type Config struct {
	Addr            string
	AllowedOrigins  []string
	TrustedProxies  []string
	RateLimitRPM    int
	Sessions        SessionConfig
	CleanupInterval time.Duration
}

// Dependencies are the collaborators the handlers call. Publisher may be nil,
// in which case applies are not announced.
type Dependencies struct {
	Transactions TransactionReader
	Resolver     *period.Resolver
	Publisher    amqp.Publisher
	Logger       *log.Logger
}

type Server struct {
	http.Server

	transactions TransactionReader
	resolver     *period.Resolver
	publisher    amqp.Publisher
	logger       *log.Logger
	sl           *log.StructuredLogger

	sessions    *Sessions
	caches      *cache.Manager
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware

	shutdownOnce sync.Once
}

func NewServer(cfg Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	logger := deps.Logger.WithComponent(log.ComponentHTTP)
	detector := security.NewDetector()
	for _, cidr := range cfg.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring invalid trusted proxy", "cidr", cidr, log.FieldError, err)
		}
	}

	s := &Server{
		Server: http.Server{
			Addr:              cfg.Addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 16, // 64KB
		},
		transactions: deps.Transactions,
		resolver:     deps.Resolver,
		publisher:    deps.Publisher,
		logger:       logger,
		sl:           log.NewStructuredLogger(deps.Logger),
		sessions:     NewSessions(cfg.Sessions, deps.Resolver),
		caches:       cache.NewManager(logger.Logger),
		rateLimiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitRPM}),
		detector:     detector,
		tracer:       trace.NewMiddleware(deps.Logger, detector.ExtractClientIP),
	}

	s.sessions.Register(s.caches)
	if r, ok := deps.Transactions.(interface{ RegisterCaches(*cache.Manager) }); ok {
		r.RegisterCaches(s.caches)
	}
	s.caches.StartCleanup(cfg.CleanupInterval)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/filters", s.handleGetFilters)
	mux.HandleFunc("PATCH /api/filters/draft", s.handlePatchDraft)
	mux.HandleFunc("PATCH /api/filters/applied", s.handlePatchApplied)
	mux.HandleFunc("POST /api/filters/apply", s.handleApply)
	mux.HandleFunc("POST /api/filters/clear", s.handleClear)

	mux.HandleFunc("GET /api/period", s.handlePeriod)
	mux.HandleFunc("GET /api/transactions", s.handleTransactions)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/categories", s.handleCategories)

	s.Handler = s.middleware(mux, cfg.AllowedOrigins)
	return s
}

// middleware wraps h, outermost first: tracing, suspicious request
// detection, security headers, CORS, then rate limiting of mutating calls.
func (s *Server) middleware(h http.Handler, origins []string) http.Handler {
	limited := s.rateLimiter.Middleware(s.detector.ExtractClientIP, ratelimit.SafeMethods,
		func(w http.ResponseWriter, r *http.Request) {
			s.logger.WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
				log.FieldClientIP, s.detector.ExtractClientIP(r),
				log.FieldPath, r.URL.Path)
			TooManyRequestsError().RequestID(trace.GetRequestID(r.Context())).Write(w)
		})(h)

	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", trace.HeaderRequestID},
		ExposedHeaders:   []string{trace.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           600,
	})

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	return s.tracer.Middleware(s.detector.Middleware(headers.Middleware(c.Handler(limited))))
}

// Sessions exposes the session table.
func (s *Server) Sessions() *Sessions {
	return s.sessions
}

// Shutdown stops background cleanup and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.transactions.Ready(r.Context()); err != nil {
		s.sl.LogError(r.Context(), "Readiness check failed", err, log.ComponentHTTP, log.OpRead, nil)
		ServiceUnavailableError("transaction source unavailable").
			RequestID(trace.GetRequestID(r.Context())).
			Write(w)
		return
	}
	body := map[string]any{"status": "ready", "sessions": s.sessions.Len()}
	if c, ok := s.transactions.(interface{ CacheStats() cache.Stats }); ok {
		st := c.CacheStats()
		body["cache"] = map[string]any{
			"hits":      st.Hits,
			"misses":    st.Misses,
			"evictions": st.Evictions,
			"size":      st.Size,
		}
	}
	NewJSONResponse().Body(body).Write(w)
}
