// Package server exposes the live vehicle state over TCP for remote
// displays and debugging.
package server

import (
	"bytes"
	"context"
	"fmt"

	"github.com/panjf2000/gnet/v2"
	"go.uber.org/zap"

	"vehicle-hud/internal/config"
)

// maxLine bounds a request line; a client sending more without a newline is
// disconnected.
const maxLine = 256

// connContext holds the per-connection state.
type connContext struct {
	buffer   []byte
	addr     string
	requests uint64
}

// RequestHandler turns one request line into a response.
type RequestHandler interface {
	Handle(line string) []byte
}

type StateServer struct {
	gnet.BuiltinEventEngine

	addr      string
	multicore bool
	logger    *zap.Logger
	handler   RequestHandler
}

func NewStateServer(cfg config.StateServerConfig, logger *zap.Logger, h RequestHandler) *StateServer {
	return &StateServer{
		addr:      fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port),
		multicore: false,
		logger:    logger,
		handler:   h,
	}
}

func (s *StateServer) Addr() string {
	return s.addr
}

func (s *StateServer) OnBoot(eng gnet.Engine) (action gnet.Action) {
	s.logger.Info("State server is booting", zap.String("address", s.addr))
	return
}

func (s *StateServer) OnOpen(c gnet.Conn) (out []byte, action gnet.Action) {
	s.logger.Debug("State client connected", zap.String("remote_addr", c.RemoteAddr().String()))
	c.SetContext(&connContext{
		buffer: make([]byte, 0, maxLine),
		addr:   c.RemoteAddr().String(),
	})
	return
}

func (s *StateServer) OnTraffic(c gnet.Conn) (action gnet.Action) {
	ctx := c.Context().(*connContext)

	buf, _ := c.Next(-1)
	if len(buf) == 0 {
		return
	}
	ctx.buffer = append(ctx.buffer, buf...)

	var out []byte
	for {
		i := bytes.IndexByte(ctx.buffer, '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(ctx.buffer[:i], "\r"))
		ctx.buffer = ctx.buffer[i+1:]
		ctx.requests++
		out = append(out, s.handler.Handle(line)...)
	}

	if len(out) > 0 {
		if _, err := c.Write(out); err != nil {
			s.logger.Warn("Failed to write state response", zap.Error(err), zap.String("addr", ctx.addr))
			return gnet.Close
		}
	}

	if len(ctx.buffer) > maxLine {
		s.logger.Warn("Request line too long, closing", zap.String("addr", ctx.addr))
		return gnet.Close
	}
	// Compact so the buffer does not creep forward through its backing array.
	ctx.buffer = append(ctx.buffer[:0], ctx.buffer...)
	return
}

func (s *StateServer) OnClose(c gnet.Conn, err error) (action gnet.Action) {
	if ctx, ok := c.Context().(*connContext); ok {
		s.logger.Debug("State client disconnected",
			zap.String("remote", ctx.addr),
			zap.Uint64("requests", ctx.requests),
			zap.Error(err))
	}
	return
}

func (s *StateServer) OnShutdown(eng gnet.Engine) {
	s.logger.Info("State server is shutting down")
}

// Start blocks serving until Stop is called.
func (s *StateServer) Start(ctx context.Context) error {
	s.logger.Info("Starting state server", zap.String("addr", s.addr))
	return gnet.Run(s, s.addr,
		gnet.WithMulticore(s.multicore),
		gnet.WithLogger(s.logger.Sugar()),
		gnet.WithReusePort(true),
	)
}

func (s *StateServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping state server")
	return gnet.Stop(ctx, s.addr)
}
