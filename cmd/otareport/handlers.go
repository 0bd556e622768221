package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tmiw/radae-ota/pkg/logging"
)

// handleListSessions returns recent sessions, newest first.
func (s *ReportServer) handleListSessions(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	sessions, err := s.store.ListSessions(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to list sessions: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *ReportServer) handleLatestSession(c *gin.Context) {
	id, err := s.store.LatestSessionID()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no sessions recorded"})
		return
	}
	rec, err := s.store.GetSession(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to load session: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *ReportServer) handleGetSession(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	rec, err := s.store.GetSession(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// handleGetMetrics returns the per-frame sync/SNR series for one session.
func (s *ReportServer) handleGetMetrics(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	metrics, err := s.store.GetFrameMetrics(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to load metrics: " + err.Error(),
		})
		return
	}

	frames := make([]gin.H, len(metrics))
	for i, m := range metrics {
		frames[i] = gin.H{
			"frame":  m.Frame,
			"sync":   m.Sync,
			"snr_db": m.SNRdB,
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": id,
		"frames":     frames,
		"count":      len(frames),
	})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// handleSessionsWebSocket pushes each newly stored session record to the
// client. Clients watch a live test run land without polling the API.
func (s *ReportServer) handleSessionsWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warnf("report", "WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	logging.Debug("report", "Session feed client connected")

	lastID, _ := s.store.LatestSessionID()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	// Drain client messages so pings and closes are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ticker.C:
			id, err := s.store.LatestSessionID()
			if err != nil || id == lastID {
				continue
			}
			rec, err := s.store.GetSession(id)
			if err != nil {
				logging.Warnf("report", "Failed to load session %d for feed: %v", id, err)
				continue
			}
			if err := conn.WriteJSON(gin.H{"type": "session", "session": rec}); err != nil {
				logging.Debugf("report", "Session feed client gone: %v", err)
				return
			}
			lastID = id

		case <-s.ctx.Done():
			return
		}
	}
}
