package server

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/rootio/internal/auth"
	"github.com/danmuck/rootio/internal/observability"
	"github.com/danmuck/rootio/internal/protocol"
	"github.com/danmuck/rootio/internal/rntuple"
	"github.com/danmuck/rootio/internal/rootfile"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

// Server exposes read-only inspection of one opened ROOT file over HTTP.
// When Auth is set the data routes require a bearer token it accepts.
type Server struct {
	Name     string
	Addr     string
	Appeared time.Time
	File     *rootfile.File
	Options  rntuple.Options
	Auth     auth.Validator

	router   *gin.Engine
	mu       sync.Mutex
	ntuples  map[string]*rntuple.RNTuple
	basePath string
}

// NewRouter builds the gin engine with the shared middleware stack.
func NewRouter(name string, corsOrigins []string) *gin.Engine {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	return r
}

func New(name, addr string, corsOrigins []string, file *rootfile.File, opts rntuple.Options) *Server {
	s := Attach(name, NewRouter(name, corsOrigins), "", file, opts)
	s.Addr = addr
	return s
}

// Attach serves file on an existing router under basePath. An empty
// basePath mounts the routes at the root.
func Attach(name string, router *gin.Engine, basePath string, file *rootfile.File, opts rntuple.Options) *Server {
	return &Server{
		Name:     name,
		Appeared: time.Now(),
		File:     file,
		Options:  opts,
		router:   router,
		ntuples:  make(map[string]*rntuple.RNTuple),
		basePath: strings.TrimSuffix(basePath, "/"),
	}
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) Serve() error {
	s.RegisterRoutes()
	log.Info().
		Str("service", s.Name).
		Str("addr", s.Addr).
		Msg("inspection server listening")
	return s.router.Run(s.Addr)
}

func (s *Server) routes() gin.IRoutes {
	if s.basePath == "" {
		return s.router
	}
	return s.router.Group(s.basePath)
}

// guarded prepends the auth check to h when the server has a validator.
func (s *Server) guarded(h gin.HandlerFunc) []gin.HandlerFunc {
	if s.Auth == nil {
		return []gin.HandlerFunc{h}
	}
	return []gin.HandlerFunc{auth.Bearer(s.Auth), h}
}

// statusFor maps a decode error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rootfile.ErrKeyNotFound):
		return http.StatusNotFound
	case errors.Is(err, protocol.ErrUnsupportedFeature):
		return http.StatusNotImplemented
	case protocol.KindOf(err) != "other":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(statusFor(err), gin.H{
		"error": err.Error(),
		"kind":  protocol.KindOf(err),
	})
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
