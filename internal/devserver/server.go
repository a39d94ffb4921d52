// Package devserver is an in-process techread server for development and
// tests. It speaks the same control and data channel protocol as the real
// service and can be told to misbehave in the ways clients must survive.
package devserver

import (
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/techread/internal/auth"
	"github.com/danmuck/techread/internal/observability"
	"github.com/danmuck/techread/internal/protocol"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	DefaultVersion         = "v1"
	DefaultMaxBodyBytes    = 32 << 20
	DefaultMaxMessageBytes = 1 << 20
)

// Behavior toggles the failure modes the server exhibits.
type Behavior struct {
	// MaxDocumentBytes rejects drawings above this size with
	// REJECTION/PAPER_SIZE_LIMIT_EXCEEDED after STARTED. Zero disables.
	MaxDocumentBytes int
	// PayloadHost replaces the host in payload URLs.
	PayloadHost string
	// RefuseInitialize answers INITIALIZE with REJECTION/COMPLEXITY_EXCEEDED.
	RefuseInitialize bool
	// DropAfterStarted closes the connection without a close frame after STARTED.
	DropAfterStarted bool
	// CloseTooBig closes with code 1009 after STARTED.
	CloseTooBig bool
	// StallAfterStarted goes quiet after STARTED while still answering pings.
	StallAfterStarted bool
	// FailInternal ends every read with ERROR/INTERNAL after STARTED.
	FailInternal bool
	// UploadStatus, when non-zero, is returned by the upload endpoint.
	UploadStatus int
}

type Config struct {
	Name            string
	Version         string
	Validator       auth.Validator
	Behavior        Behavior
	Architectures   map[protocol.Architecture]protocol.ArchitectureStatus
	CORSOrigins     []string
	MaxBodyBytes    int64
	MaxMessageBytes int64
	Logger          zerolog.Logger
}

// Stats counts what clients did against the server.
type Stats struct {
	Connections     int64
	Unauthorized    int64
	Initializations int64
	Reads           int64
	Uploads         int64
	PayloadFetches  int64
}

type counters struct {
	connections     atomic.Int64
	unauthorized    atomic.Int64
	initializations atomic.Int64
	reads           atomic.Int64
	uploads         atomic.Int64
	payloadFetches  atomic.Int64
}

type Server struct {
	cfg      Config
	router   *gin.Engine
	upgrader websocket.Upgrader
	log      zerolog.Logger
	started  time.Time
	stats    counters

	mu       sync.Mutex
	jobs     map[string]*job
	payloads map[string][]byte
}

func New(cfg Config) *Server {
	cfg.Version = strings.Trim(strings.TrimSpace(cfg.Version), "/")
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "techread-dev"
	}
	if cfg.Validator == nil {
		cfg.Validator = auth.FuncValidator(func(string) error { return nil })
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if cfg.Architectures == nil {
		cfg.Architectures = map[protocol.Architecture]protocol.ArchitectureStatus{
			protocol.ArchitectureGPUV1: protocol.ArchitectureDeployed,
			protocol.ArchitectureCPUV1: protocol.ArchitectureUndeployed,
		}
	}

	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(cfg.Logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:    cfg,
		router: r,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:      cfg.Logger,
		started:  time.Now(),
		jobs:     make(map[string]*job),
		payloads: make(map[string][]byte),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Stats() Stats {
	return Stats{
		Connections:     s.stats.connections.Load(),
		Unauthorized:    s.stats.unauthorized.Load(),
		Initializations: s.stats.initializations.Load(),
		Reads:           s.stats.reads.Load(),
		Uploads:         s.stats.uploads.Load(),
		PayloadFetches:  s.stats.payloadFetches.Load(),
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
