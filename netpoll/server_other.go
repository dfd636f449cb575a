//go:build !linux
// +build !linux

package netpoll

import (
	"errors"
	"log/slog"

	"github.com/ganjayant/lsmkv/engine"
)

// ErrUnsupportedPlatform is returned by New on platforms without an
// epoll-based Server implementation.
var ErrUnsupportedPlatform = errors.New("netpoll: no event loop implementation for this platform")

// Server is a stub on platforms other than Linux; this project ships
// only the epoll front end described by its design, mirroring how the
// teacher's sys package stubs out preallocation on platforms lacking a
// native implementation instead of silently degrading it.
type Server struct{}

func New(addr string, eng *engine.Engine, logger *slog.Logger) (*Server, error) {
	return nil, ErrUnsupportedPlatform
}

func (s *Server) Run() error {
	return ErrUnsupportedPlatform
}

func (s *Server) Close() error {
	return nil
}

func (s *Server) Addr() string {
	return ""
}
