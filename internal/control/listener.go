package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"
)

// DefaultIdleTimeout closes control connections that stay silent.
const DefaultIdleTimeout = 30 * time.Second

// Listener accepts control connections and reads newline-terminated commands from them.
type Listener struct {
	addr    string
	allowed []netip.Prefix
	handler *Handler
	idle    time.Duration

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewListener validates the allow-list. An empty list admits loopback only.
func NewListener(addr string, allowedCIDRs []string, h *Handler, idle time.Duration) (*Listener, error) {
	if len(allowedCIDRs) == 0 {
		allowedCIDRs = []string{"127.0.0.0/8", "::1/128"}
	}

	prefixes := make([]netip.Prefix, 0, len(allowedCIDRs))
	for _, raw := range allowedCIDRs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		p, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid control CIDR %q: %w", raw, err)
		}
		prefixes = append(prefixes, p.Masked())
	}

	if idle <= 0 {
		idle = DefaultIdleTimeout
	}

	return &Listener{
		addr:    addr,
		allowed: prefixes,
		handler: h,
		idle:    idle,
		conns:   make(map[net.Conn]struct{}),
	}, nil
}

// Listen binds the control address.
func (l *Listener) Listen() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("listen on control address %s: %w", l.addr, err)
	}
	l.mu.Lock()
	l.listener = ln
	l.mu.Unlock()
	return nil
}

// Addr returns the bound address, nil before Listen.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// Serve accepts connections until ctx is cancelled or Close is called.
func (l *Listener) Serve(ctx context.Context) error {
	l.mu.Lock()
	ln := l.listener
	l.mu.Unlock()
	if ln == nil {
		if err := l.Listen(); err != nil {
			return err
		}
		return l.Serve(ctx)
	}

	slog.Info("Control listener started", "addr", ln.Addr().String())

	stop := context.AfterFunc(ctx, l.Close)
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				l.wg.Wait()
				return nil
			}
			slog.Warn("Control accept failed", "error", err)
			continue
		}

		if !l.allowedAddr(conn.RemoteAddr()) {
			slog.Warn("Rejected control connection", "remote", conn.RemoteAddr().String())
			_ = conn.Close()
			continue
		}

		if !l.track(conn) {
			continue
		}
		go func() {
			defer l.wg.Done()
			defer l.untrack(conn)
			l.serveConn(ctx, conn)
		}()
	}
}

// Close stops accepting and drops open control connections.
func (l *Listener) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.listener != nil {
		_ = l.listener.Close()
	}
	for c := range l.conns {
		_ = c.Close()
	}
}

func (l *Listener) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 512), MaxLineLength)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(l.idle))
		if !scanner.Scan() {
			break
		}
		l.handler.HandleLine(ctx, SourceTCP, scanner.Text())
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		slog.Debug("Control connection ended", "remote", conn.RemoteAddr().String(), "error", err)
	}
}

func (l *Listener) allowedAddr(addr net.Addr) bool {
	ap, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return false
	}
	ip := ap.Addr().Unmap()
	for _, p := range l.allowed {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// track registers conn for Close and adds it to the wait group. A conn accepted after Close
// is closed here and reported false.
func (l *Listener) track(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		_ = conn.Close()
		return false
	}
	l.conns[conn] = struct{}{}
	l.wg.Add(1)
	return true
}

func (l *Listener) untrack(conn net.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conns, conn)
}
