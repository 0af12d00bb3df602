package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danmuck/rootio/internal/rntuple"
	"github.com/danmuck/rootio/internal/rootfile"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) RegisterRoutes() {
	routes := s.routes()
	routes.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.Name,
			"file":    s.File.Top.Name,
			"version": version,
		})
	})

	routes.GET("/metrics", gin.WrapH(promhttp.Handler()))

	routes.GET("/file", s.guarded(func(c *gin.Context) {
		c.JSON(http.StatusOK, describeFile(s.File))
	})...)

	routes.GET("/keys", s.guarded(func(c *gin.Context) {
		dir := c.Query("dir")
		keys, err := s.keys(c.Request.Context(), dir)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"dir":  dir,
			"keys": describeKeys(keys),
		})
	})...)

	routes.GET("/rntuples/:name", s.guarded(func(c *gin.Context) {
		path := c.Param("name")
		if dir := c.Query("dir"); dir != "" {
			path = dir + "/" + path
		}
		nt, err := s.rntuple(c.Request.Context(), path)
		if err != nil {
			s.fail(c, err)
			return
		}
		view, err := describeRNTuple(nt)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	})...)
}

func (s *Server) keys(ctx context.Context, dir string) (*rootfile.KeyList, error) {
	if dir == "" {
		return s.File.Keys(ctx)
	}
	d, err := s.File.Dir(ctx, dir)
	if err != nil {
		return nil, err
	}
	return d.Keys(ctx, s.File.Reader())
}

// rntuple opens path once and keeps the result; the file is immutable.
func (s *Server) rntuple(ctx context.Context, path string) (*rntuple.RNTuple, error) {
	s.mu.Lock()
	nt, ok := s.ntuples[path]
	s.mu.Unlock()
	if ok {
		return nt, nil
	}
	nt, err := rntuple.FromFile(ctx, s.File, path, s.Options)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.ntuples[path] = nt
	s.mu.Unlock()
	return nt, nil
}
