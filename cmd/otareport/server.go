package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tmiw/radae-ota/pkg/config"
	"github.com/tmiw/radae-ota/pkg/logging"
	"github.com/tmiw/radae-ota/pkg/storage"
)

// ReportServer exposes stored session results over a JSON API plus a
// websocket feed that announces new sessions as they land.
type ReportServer struct {
	config *config.Config
	store  *storage.SessionStore

	webServer *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewReportServer creates a report server over an open session store.
func NewReportServer(cfg *config.Config, store *storage.SessionStore) *ReportServer {
	ctx, cancel := context.WithCancel(context.Background())
	return &ReportServer{
		config: cfg,
		store:  store,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins serving in the background.
func (s *ReportServer) Start() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api/v1")
	{
		api.GET("/sessions", s.handleListSessions)
		api.GET("/sessions/latest", s.handleLatestSession)
		api.GET("/sessions/:id", s.handleGetSession)
		api.GET("/sessions/:id/metrics", s.handleGetMetrics)
	}
	router.GET("/ws/sessions", s.handleSessionsWebSocket)

	addr := fmt.Sprintf("%s:%d", s.config.Report.BindAddress, s.config.Report.Port)
	s.webServer = &http.Server{
		Addr:    addr,
		Handler: router,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.webServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Errorf("report", "Web server error: %v", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *ReportServer) Stop() error {
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.webServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("web server shutdown: %w", err)
	}

	s.wg.Wait()
	return nil
}
