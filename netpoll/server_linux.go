//go:build linux

// Package netpoll implements the single-threaded, readiness-driven RESP
// front end: one epoll loop drives every client socket, dispatching
// GET/SET/DEL commands into the engine between reads. Grounded on this
// project's original epoll/kqueue server (accept-until-EAGAIN,
// read-until-EAGAIN into a growing per-connection buffer, a doubling
// event list), adapted from golang.org/x/sys/unix's epoll bindings the
// same way the teacher reaches directly for unix.* syscalls in
// sys/prealloc_linux.go rather than wrapping them.
//
// Two defects in the original are fixed here rather than carried over:
// it decodes exactly one command per readiness event even when a read
// delivers several pipelined commands or only part of one, and it
// writes replies with a single blocking send() that can stall the
// entire event loop under backpressure. This loop decodes every
// complete frame a read delivers and queues an unwritten remainder for
// the next writable event instead of blocking on it.
package netpoll

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/ganjayant/lsmkv/engine"
	"github.com/ganjayant/lsmkv/resp"
)

// Server is a single-threaded epoll event loop serving RESP requests
// against an Engine. It is not safe to call Run from more than one
// goroutine; Close may be called from any goroutine to make a running
// Run return.
type Server struct {
	engine   *engine.Engine
	logger   *slog.Logger
	listenFD int
	epollFD  int
	wakeFD   int
	conns    map[int]*connection
	events   []unix.EpollEvent
	closed   atomic.Bool
	addr     string
}

// Addr returns the address the listening socket is actually bound to,
// which differs from the address passed to New when that address asked
// for an OS-assigned port (":0").
func (s *Server) Addr() string {
	return s.addr
}

// New creates a listening socket bound to addr and an epoll instance
// watching it, ready for Run.
func New(addr string, eng *engine.Engine, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve listen address: %w", err)
	}

	listenFD, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("create socket: %w", err)
	}
	if err := unix.SetsockoptInt(listenFD, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(listenFD)
		return nil, fmt.Errorf("set SO_REUSEADDR: %w", err)
	}
	if err := unix.SetNonblock(listenFD, true); err != nil {
		unix.Close(listenFD)
		return nil, fmt.Errorf("set listen socket nonblocking: %w", err)
	}

	var ip4 [4]byte
	if ip := tcpAddr.IP.To4(); ip != nil {
		copy(ip4[:], ip)
	}
	if err := unix.Bind(listenFD, &unix.SockaddrInet4{Port: tcpAddr.Port, Addr: ip4}); err != nil {
		unix.Close(listenFD)
		return nil, fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(listenFD, unix.SOMAXCONN); err != nil {
		unix.Close(listenFD)
		return nil, fmt.Errorf("listen: %w", err)
	}

	epollFD, err := unix.EpollCreate1(0)
	if err != nil {
		unix.Close(listenFD)
		return nil, fmt.Errorf("create epoll instance: %w", err)
	}

	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epollFD)
		unix.Close(listenFD)
		return nil, fmt.Errorf("create wake eventfd: %w", err)
	}

	boundAddr := addr
	if sa, err := unix.Getsockname(listenFD); err == nil {
		if sa4, ok := sa.(*unix.SockaddrInet4); ok {
			boundAddr = fmt.Sprintf("%s:%d", net.IP(sa4.Addr[:]).String(), sa4.Port)
		}
	}

	s := &Server{
		engine:   eng,
		logger:   logger.With("component", "netpoll"),
		listenFD: listenFD,
		epollFD:  epollFD,
		wakeFD:   wakeFD,
		conns:    make(map[int]*connection),
		events:   make([]unix.EpollEvent, initialEventListSize),
		addr:     boundAddr,
	}

	if err := s.epollAdd(listenFD, unix.EPOLLIN); err != nil {
		s.closeSockets()
		return nil, fmt.Errorf("watch listen socket: %w", err)
	}
	if err := s.epollAdd(wakeFD, unix.EPOLLIN); err != nil {
		s.closeSockets()
		return nil, fmt.Errorf("watch wake eventfd: %w", err)
	}

	s.logger.Info("netpoll server listening", "address", addr)
	return s, nil
}

// Run blocks, servicing readiness events until Close is called or the
// epoll wait itself fails.
func (s *Server) Run() error {
	for {
		n, err := unix.EpollWait(s.epollFD, s.events, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("epoll wait: %w", err)
		}

		if n == len(s.events) {
			s.events = make([]unix.EpollEvent, len(s.events)*2)
		}

		for i := 0; i < n; i++ {
			ev := s.events[i]
			fd := int(ev.Fd)

			switch {
			case fd == s.wakeFD:
				var drain [8]byte
				unix.Read(s.wakeFD, drain[:])
				if s.closed.Load() {
					s.shutdown()
					return nil
				}
			case ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0:
				if fd != s.listenFD {
					s.closeConnection(fd)
				}
			case fd == s.listenFD:
				s.acceptConnections()
			default:
				if ev.Events&unix.EPOLLIN != 0 {
					s.handleReadable(fd)
				}
				if ev.Events&unix.EPOLLOUT != 0 {
					s.handleWritable(fd)
				}
			}
		}
	}
}

// Close makes a blocked Run return on its next iteration. It is safe to
// call from any goroutine, including concurrently with Run.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	one := [8]byte{1}
	_, err := unix.Write(s.wakeFD, one[:])
	return err
}

func (s *Server) shutdown() {
	for fd := range s.conns {
		unix.Close(fd)
	}
	unix.Close(s.wakeFD)
	unix.Close(s.epollFD)
	unix.Close(s.listenFD)
}

func (s *Server) closeSockets() {
	if s.wakeFD != 0 {
		unix.Close(s.wakeFD)
	}
	unix.Close(s.epollFD)
	unix.Close(s.listenFD)
}

func (s *Server) epollAdd(fd int, events uint32) error {
	return unix.EpollCtl(s.epollFD, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: events, Fd: int32(fd)})
}

func (s *Server) acceptConnections() {
	for {
		fd, _, err := unix.Accept(s.listenFD)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return
			}
			s.logger.Error("accept failed", "error", err)
			return
		}

		if err := unix.SetNonblock(fd, true); err != nil {
			s.logger.Error("set client socket nonblocking failed", "error", err)
			unix.Close(fd)
			continue
		}
		if err := s.epollAdd(fd, unix.EPOLLIN); err != nil {
			s.logger.Error("watch client socket failed", "error", err)
			unix.Close(fd)
			continue
		}
		s.conns[fd] = newConnection(fd)
	}
}

func (s *Server) handleReadable(fd int) {
	c, ok := s.conns[fd]
	if !ok {
		return
	}

	chunk := make([]byte, readChunkSize)
	for {
		n, err := unix.Read(fd, chunk)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				break
			}
			s.logger.Warn("read failed, closing connection", "fd", fd, "error", err)
			s.closeConnection(fd)
			return
		}
		if n == 0 {
			s.closeConnection(fd)
			return
		}
		c.buf = append(c.buf, chunk[:n]...)
	}

	s.processBuffer(fd, c)
}

// processBuffer decodes every complete command currently buffered,
// queuing each reply, then flushes whatever it can write immediately. A
// malformed command gets an error reply but does not close the
// connection: the buffer is discarded so the next bytes the client sends
// are read as a fresh command, matching the original server's
// handleClientMessage, which replies and returns without touching the
// connection on a decode failure.
func (s *Server) processBuffer(fd int, c *connection) {
	for {
		cmd, n, err := resp.Decode(c.buf)
		if err != nil {
			if errors.Is(err, resp.ErrIncompleteFrame) {
				break
			}
			s.logger.Warn("malformed command, resynchronizing", "fd", fd, "error", err)
			c.out = resp.AppendError(c.out, err.Error())
			c.buf = c.buf[:0]
			s.flush(fd, c)
			return
		}
		c.out = dispatch(s.engine, cmd, c.out, s.logger)
		c.buf = c.buf[n:]
	}

	if len(c.buf) == 0 {
		c.buf = c.buf[:0]
	} else {
		c.buf = append([]byte(nil), c.buf...)
	}

	s.flush(fd, c)
}

func (s *Server) handleWritable(fd int) {
	c, ok := s.conns[fd]
	if !ok {
		return
	}
	s.flush(fd, c)
}

// flush writes as much of c.out as the socket will accept without
// blocking, keeping any remainder queued for the next EPOLLOUT
// readiness event rather than retrying with a blocking write.
func (s *Server) flush(fd int, c *connection) {
	for len(c.out) > 0 {
		n, err := unix.Write(fd, c.out)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				break
			}
			s.logger.Warn("write failed, closing connection", "fd", fd, "error", err)
			s.closeConnection(fd)
			return
		}
		c.out = c.out[n:]
	}
	if len(c.out) == 0 {
		c.out = nil
	}

	wantWrite := len(c.out) > 0
	if wantWrite == c.writeInterest {
		return
	}
	events := uint32(unix.EPOLLIN)
	if wantWrite {
		events |= unix.EPOLLOUT
	}
	if err := unix.EpollCtl(s.epollFD, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Events: events, Fd: int32(fd)}); err != nil {
		s.logger.Error("epoll mod failed", "fd", fd, "error", err)
		return
	}
	c.writeInterest = wantWrite
}

func (s *Server) closeConnection(fd int) {
	unix.EpollCtl(s.epollFD, unix.EPOLL_CTL_DEL, fd, nil)
	delete(s.conns, fd)
	unix.Close(fd)
}
