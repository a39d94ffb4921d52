package devserver

import (
	"encoding/base64"
	"io"
	"net/http"
	"time"

	"github.com/danmuck/techread/internal/auth"
	"github.com/danmuck/techread/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"service": s.cfg.Name,
			"version": s.cfg.Version,
		})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/"+s.cfg.Version, s.requireToken())
	api.GET("", s.handleControl)
	api.POST("/upload/:request_id", s.handleUpload)
	api.GET("/payload/:request_id/:name", s.handlePayload)
	api.GET("/architecture_status/:architecture", s.handleArchitectureStatus)
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			s.stats.unauthorized.Add(1)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		if err := s.cfg.Validator.Validate(token); err != nil {
			s.stats.unauthorized.Add(1)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

func (s *Server) handleUpload(c *gin.Context) {
	if status := s.cfg.Behavior.UploadStatus; status != 0 {
		c.JSON(status, gin.H{"error": "upload refused"})
		return
	}
	id := c.Param("request_id")
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
		return
	}
	files, err := protocol.DecodeUpload(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	j, ok := s.jobs[id]
	if ok {
		for kind, content := range files {
			j.files[kind] = content
		}
	}
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown request"})
		return
	}
	s.stats.uploads.Add(1)
	s.log.Debug().Str("request_id", id).Int("files", len(files)).Msg("devserver.upload stored")
	c.Status(http.StatusOK)
}

func (s *Server) handlePayload(c *gin.Context) {
	key := payloadKey(c.Param("request_id"), c.Param("name"))
	s.mu.Lock()
	data, ok := s.payloads[key]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "payload not found"})
		return
	}
	s.stats.payloadFetches.Add(1)
	c.String(http.StatusOK, base64.StdEncoding.EncodeToString(data))
}

func (s *Server) handleArchitectureStatus(c *gin.Context) {
	arch := protocol.Architecture(c.Param("architecture"))
	status, ok := s.cfg.Architectures[arch]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown architecture"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}
