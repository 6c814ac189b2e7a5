// SPDX-License-Identifier: AGPL-3.0-only

// Package devserver is an in-memory implementation of the Foodies HTTP API.
// It backs the CLI's serve command and the end-to-end tests of the client.
package devserver

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	// Secret signs access tokens. A random one is generated when empty.
	Secret    []byte
	AccessTTL time.Duration
	PerPage   int
	// MaxUpload caps the multipart body size in bytes.
	MaxUpload int64
}

type Server struct {
	cfg      Config
	store    *memStore
	now      func() time.Time
	registry *prometheus.Registry
	requests *prometheus.CounterVec
}

func New(cfg Config) *Server {
	if len(cfg.Secret) == 0 {
		cfg.Secret = []byte(uuid.NewString() + uuid.NewString())
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 10
	}
	if cfg.MaxUpload <= 0 {
		cfg.MaxUpload = 32 << 20
	}

	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "foodies_devserver_requests_total",
		Help: "Requests served by the dev API, by route and status code.",
	}, []string{"route", "code"})
	registry.MustRegister(requests)

	return &Server{
		cfg:      cfg,
		store:    newMemStore(),
		now:      time.Now,
		registry: registry,
		requests: requests,
	}
}

// Router builds the gin engine. The API lives under /api/v1.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	r.MaxMultipartMemory = s.cfg.MaxUpload
	r.Use(securityHeaders(), s.countRequests())

	r.GET("/health", s.healthHandler)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	r.GET("/images/:name", s.imageHandler)

	api := r.Group("/api/v1")
	api.GET("/posts", s.listPostsHandler)

	api.POST("/user/register", s.registerHandler)
	api.POST("/user/login", s.loginHandler)
	api.POST("/user/token-refresh", s.refreshHandler)

	authed := api.Group("", s.requireAuth())
	authed.POST("/user/logout", s.logoutHandler)
	authed.GET("/user/my-posts", s.myPostsHandler)
	authed.POST("/posts", s.createPostHandler)
	authed.POST("/posts/:id", s.updatePostHandler)
	authed.DELETE("/posts/:id", s.deletePostHandler)
	authed.GET("/search", s.searchHandler)

	return r
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Dev server: listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Println("Dev server: shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
