// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

// Package web serves the layout mirror over HTTP: entity ID lists, a
// full JSON snapshot, a websocket stream that pushes fresh snapshots on
// a fixed cadence, and Prometheus metrics.
package web

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spoorlab/lnmon/pkg/layout"
	"github.com/spoorlab/lnmon/pkg/link"
)

const defaultPushInterval = 5 * time.Second

// Config wires a Server. Keeper and Link are required.
type Config struct {
	// Listen is the address for ListenAndServe, e.g. ":8081".
	Listen string
	// Keeper is the layout mirror the endpoints read.
	Keeper *layout.Scrollkeeper
	// Link provides the counters behind /metrics.
	Link *link.Link
	// Logger receives server diagnostics. Nil disables logging.
	Logger *zap.Logger
	// PushInterval is the websocket snapshot cadence (default 5s).
	PushInterval time.Duration
}

// Server is the HTTP front of the monitor.
type Server struct {
	cfg      Config
	log      *zap.Logger
	engine   *gin.Engine
	srv      *http.Server
	upgrader websocket.Upgrader

	quit     chan struct{}
	quitOnce sync.Once
}

// New builds the server and its routes.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.PushInterval <= 0 {
		cfg.PushInterval = defaultPushInterval
	}

	s := &Server{
		cfg:  cfg,
		log:  cfg.Logger,
		quit: make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/sensors", s.handleSensors)
	r.GET("/switches", s.handleSwitches)
	r.GET("/slots", s.handleSlots)
	r.GET("/status", s.handleStatus)
	r.GET("/ws", s.handleWS)

	reg := newRegistry(cfg.Link, cfg.Keeper)
	r.GET("/metrics", gin.WrapH(metricsHandler(reg)))

	s.engine = r
	s.srv = &http.Server{Addr: cfg.Listen, Handler: r}
	return s
}

// Handler exposes the route tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start runs the listener and blocks until Shutdown or a listener
// failure. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.log.Info("web server listening", zap.String("addr", s.cfg.Listen))
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the listener and disconnects websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.quitOnce.Do(func() { close(s.quit) })
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleSensors(c *gin.Context) {
	ids := []int{}
	for _, sn := range s.cfg.Keeper.Sensors() {
		ids = append(ids, int(sn.Address))
	}
	c.JSON(http.StatusOK, ids)
}

func (s *Server) handleSwitches(c *gin.Context) {
	ids := []int{}
	for _, sw := range s.cfg.Keeper.Switches() {
		ids = append(ids, int(sw.Address))
	}
	c.JSON(http.StatusOK, ids)
}

func (s *Server) handleSlots(c *gin.Context) {
	ids := []int{}
	for _, sl := range s.cfg.Keeper.Slots() {
		ids = append(ids, int(sl.Number))
	}
	c.JSON(http.StatusOK, ids)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Keeper.Snapshot())
}

// handleWS upgrades the request and pushes a snapshot immediately, then
// on every tick, until the client disconnects or the server shuts down.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	s.log.Debug("websocket client connected",
		zap.String("remote", conn.RemoteAddr().String()))

	// The read loop exists to process control frames and to notice the
	// client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.PushInterval)
	defer ticker.Stop()
	for {
		if err := conn.WriteJSON(s.cfg.Keeper.Snapshot()); err != nil {
			return
		}
		select {
		case <-gone:
			return
		case <-s.quit:
			return
		case <-ticker.C:
		}
	}
}
