//go:build linux
// +build linux

// File: transport/tcp/listener_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Listener owns a non-blocking listening socket and a Reactor driving both
// the accept loop and every accepted Conn: SOCK_NONBLOCK + TCP_NODELAY
// socket setup feeding the eventfd-driven epoll loop the reactor package
// already implements.

package tcp

import (
	"fmt"
	"net"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/momentics/nioreactor/api"
	"github.com/momentics/nioreactor/reactor"
)

// Listener accepts TCP connections and hands each one to the reactor.
type Listener struct {
	cfg    ListenerConfig
	fd     int
	r      *reactor.Reactor
	mu     sync.Mutex
	conns  map[int]*Conn
	closed bool
}

// NewListener creates a non-blocking listening socket bound to cfg.Addr and
// a dedicated Reactor to drive it. The reactor does not start running until
// Serve is called.
func NewListener(cfg ListenerConfig) (*Listener, error) {
	cfg = cfg.withDefaults()
	if cfg.NewHandler == nil {
		return nil, ErrNoHandlerFactory
	}

	sockAddr, domain, err := resolveSockaddr(cfg.Addr)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("tcp: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tcp: SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, sockAddr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tcp: bind %s: %w", cfg.Addr, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tcp: listen %s: %w", cfg.Addr, err)
	}

	r, err := reactor.New(reactor.Default())
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tcp: reactor: %w", err)
	}

	return &Listener{
		cfg:   cfg,
		fd:    fd,
		r:     r,
		conns: make(map[int]*Conn),
	}, nil
}

func resolveSockaddr(addr string) (unix.Sockaddr, int, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, 0, fmt.Errorf("tcp: resolve %s: %w", addr, err)
	}
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: tcpAddr.Port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET, nil
	}
	ip6 := tcpAddr.IP.To16()
	if ip6 == nil {
		ip6 = make([]byte, 16) // unspecified address, e.g. ":9001"
	}
	sa := &unix.SockaddrInet6{Port: tcpAddr.Port}
	copy(sa.Addr[:], ip6)
	return sa, unix.AF_INET6, nil
}

// Serve registers the listening socket and runs the reactor loop until
// Close is called. Blocking; run it in its own goroutine.
func (l *Listener) Serve() error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrListenerClosed
	}
	if l.cfg.UseWorkerCPU {
		pinLoopThread(l.cfg.WorkerCPU)
	}
	if err := l.r.Register(uintptr(l.fd), api.IORead, 0, l.onAcceptReady); err != nil {
		return fmt.Errorf("tcp: register listener: %w", err)
	}
	return l.r.Run()
}

func (l *Listener) onAcceptReady(ev api.Event) {
	for {
		connFd, _, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			if err == unix.ECONNABORTED || err == unix.EINTR {
				continue
			}
			fmt.Fprintf(os.Stderr, "tcp: accept on fd %d: %v\n", l.fd, err)
			return
		}
		_ = unix.SetsockoptInt(connFd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

		c := newConn(connFd, l.r, l.cfg)
		c.onTornDown = l.forgetConn
		if err := l.r.Register(uintptr(connFd), api.IORead, 0, c.onReady); err != nil {
			fmt.Fprintf(os.Stderr, "tcp: register accepted fd %d: %v\n", connFd, err)
			unix.Close(connFd)
			continue
		}

		l.mu.Lock()
		l.conns[connFd] = c
		l.mu.Unlock()

		if l.cfg.OnAccept != nil {
			l.cfg.OnAccept(c)
		}
	}
}

func (l *Listener) forgetConn(c *Conn) {
	l.mu.Lock()
	delete(l.conns, c.fd)
	l.mu.Unlock()
}

// Close stops the reactor loop and force-closes every accepted connection,
// since once the reactor has stopped there is no loop goroutine left to
// drain their queues gracefully.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	conns := make([]*Conn, 0, len(l.conns))
	for _, c := range l.conns {
		conns = append(conns, c)
	}
	l.mu.Unlock()

	_ = l.r.Close()
	for _, c := range conns {
		c.forceClose()
	}
	return unix.Close(l.fd)
}

// Shutdown satisfies api.GracefulShutdown by delegating to Close.
func (l *Listener) Shutdown() error {
	return l.Close()
}

var _ api.GracefulShutdown = (*Listener)(nil)
