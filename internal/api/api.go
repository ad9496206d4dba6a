// Package api wires the HTTP server: sessions, middleware and routes.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	gocache "github.com/eko/gocache/lib/v4/cache"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	gormsessions "github.com/gin-contrib/sessions/gorm"
	"github.com/gin-gonic/gin"
	"github.com/receiptdesk/receiptdesk/internal/api/auth"
	"github.com/receiptdesk/receiptdesk/internal/api/handler"
	"github.com/receiptdesk/receiptdesk/internal/config"
	"github.com/receiptdesk/receiptdesk/internal/database"
	"github.com/receiptdesk/receiptdesk/internal/metrics"
	"github.com/receiptdesk/receiptdesk/internal/ratelimit"
	"github.com/receiptdesk/receiptdesk/internal/receipts"
	"gorm.io/gorm"
)

// SessionCookieName is the name of the session cookie.
const SessionCookieName = "receiptdesk_session"

const downloadPath = "/api/user/download"

// Deps are the collaborators of the server.
type Deps struct {
	DB database.DB
	// SessionDB stores sessions when the database session store is configured.
	SessionDB *gorm.DB
	Receipts  *receipts.Gateway
	// Cache holds the rate limit counters.
	Cache *gocache.Cache[[]byte]
	// Metrics is optional.
	Metrics *metrics.Metrics
	// Jobs exposes background jobs to admins. Optional.
	Jobs handler.Jobs
}

// Server is the HTTP API server.
type Server struct {
	cfg       *config.Config
	deps      Deps
	ginEngine *gin.Engine
	store     sessions.Store
	srv       *http.Server
}

// New creates the server and registers all routes.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil || cfg.RateLimit == nil {
		return nil, fmt.Errorf("config with rate limits is required")
	}
	if deps.DB == nil || deps.Receipts == nil || deps.Cache == nil {
		return nil, fmt.Errorf("database, receipts and cache are required")
	}

	s := &Server{
		cfg:       cfg,
		deps:      deps,
		ginEngine: gin.New(),
	}
	if err := s.ginEngine.SetTrustedProxies(nil); err != nil {
		return nil, fmt.Errorf("failed to configure trusted proxies: %w", err)
	}

	store, err := s.sessionStore()
	if err != nil {
		return nil, err
	}
	s.store = store
	s.setupMiddleware(store)
	s.setupRoutes()
	return s, nil
}

func (s *Server) sessionStore() (sessions.Store, error) {
	key := []byte(s.cfg.SessionKey)

	var store sessions.Store
	switch s.cfg.SessionStore {
	case config.SessionStoreCookie:
		store = cookie.NewStore(key)
	case config.SessionStoreDatabase:
		if s.deps.SessionDB == nil {
			return nil, fmt.Errorf("session database is required for the database session store")
		}
		store = gormsessions.NewStore(s.deps.SessionDB, true, key)
	default:
		return nil, fmt.Errorf("unsupported session store: %s", s.cfg.SessionStore)
	}

	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   s.cfg.SessionMaxAge,
		HttpOnly: true,
		Secure:   s.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
	return store, nil
}

func (s *Server) setupMiddleware(store sessions.Store) {
	r := s.ginEngine
	r.Use(gin.Recovery(), requestLogger(), securityHeaders(s.cfg.IsProduction()))
	if s.deps.Metrics != nil {
		r.Use(s.deps.Metrics.Middleware())
	}
	if len(s.cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.cfg.CORSAllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	global := ratelimit.New("global", s.deps.Cache, s.cfg.RateLimit.Requests, s.cfg.RateLimit.Window)
	r.Use(ratelimit.Middleware(global, ratelimit.MsgTooManyRequests, s.deps.Metrics))

	// downloads set their own Content-Length
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{downloadPath, "/metrics"})))
	r.Use(sessions.Sessions(SessionCookieName, store))
	r.Use(auth.LoadIdentity())
}

func (s *Server) setupRoutes() {
	r := s.ginEngine
	authHandler := auth.NewHandler(s.deps.DB, s.store, SessionCookieName, s.deps.Metrics)
	h := handler.New(s.deps.DB, s.deps.Receipts)

	login := ratelimit.New("login", s.deps.Cache, s.cfg.RateLimit.LoginAttempts, s.cfg.RateLimit.LoginWindow)
	r.POST("/login", ratelimit.FailureMiddleware(login, ratelimit.MsgTooManyLogins, s.deps.Metrics), authHandler.Login)
	r.POST("/logout", authHandler.Logout)
	r.GET("/api/auth/check", authHandler.Check)
	r.GET("/healthz", s.health)
	if s.cfg.Metrics != nil && s.cfg.Metrics.Enabled && s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	admin := r.Group("/api/admin", auth.RequireAdmin())
	{
		admin.GET("/users", h.ListUsers)
		admin.POST("/users", h.CreateUser)
		admin.DELETE("/users/:id", h.DeleteUser)

		admin.GET("/data", h.ListRecords)
		admin.POST("/data", h.CreateRecord)
		admin.PUT("/data/:id", h.UpdateRecord)
		admin.DELETE("/data/:id", h.DeleteRecord)
		admin.POST("/data/:id/upload", h.UploadReceipt)

		if s.deps.Jobs != nil {
			jobs := handler.NewJobsHandler(s.deps.Jobs)
			admin.GET("/jobs/:id", jobs.GetJob)
			admin.POST("/jobs/:id/run", jobs.RunJob)
		}
	}

	user := r.Group("/api/user", auth.RequireAuth())
	{
		user.GET("/data", h.ListUserRecords)
		user.GET("/download/:filename", h.DownloadReceipt)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Page not found"})
	})
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.deps.DB.Ping(ctx); err != nil {
		log.Error("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.ginEngine
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.ginEngine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting API server", "listen", s.cfg.Listen)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down API server: %w", err)
	}
	return nil
}
