// Package httpserver exposes the contract service as a JSON API over gin.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/and161185/econtract/internal/auth"
	"github.com/and161185/econtract/internal/service"
)

// RouterConfig collects what the router needs.
type RouterConfig struct {
	Contracts    service.ContractService
	Verifier     *auth.Verifier
	Log          *zap.Logger
	AllowOrigins []string
	// TrustedProxies lists the proxy addresses or CIDRs whose forwarding
	// headers set the client IP. Empty trusts none.
	TrustedProxies []string
	MaxUpload      int64
	// ServiceName enables otelgin spans when non-empty.
	ServiceName string
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Warn("bad trusted proxies, trusting none", zap.Strings("proxies", cfg.TrustedProxies), zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(RequestID())
	r.Use(Recovery(log))
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(RequestLogger(log))
	r.Use(CORS(cfg.AllowOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		ok(c, http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
	})

	h := NewHandler(cfg.Contracts, log, cfg.MaxUpload)
	api := r.Group("/api/v1")
	api.Use(Auth(cfg.Verifier))
	{
		api.GET("/contracts", h.List)
		api.POST("/contracts", h.Create)
		api.GET("/contracts/:id", h.Get)
		api.POST("/contracts/:id/sign", h.Sign)
		api.POST("/contracts/:id/status", h.UpdateStatus)
		api.POST("/contracts/:id/parties", h.AddParty)
		api.POST("/contracts/:id/files", h.AddFile)
		api.GET("/contracts/:id/files/:fileId/link", h.FileLink)
	}
	return r
}

// Server is an http.Server around the router.
type Server struct {
	srv *http.Server
}

// NewServer binds the router to addr with conservative timeouts.
func NewServer(addr string, cfg RouterConfig) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           NewRouter(cfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe blocks until the server stops. A graceful shutdown returns nil.
func (s *Server) ListenAndServe() error {
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
