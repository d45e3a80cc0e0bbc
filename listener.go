package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrBind is returned by Start when the endpoint can't be acquired.
var ErrBind = errors.New("bind failed")

// acceptRetryDelay throttles the accept loop after a transient error.
const acceptRetryDelay = 10 * time.Millisecond

// Listener accepts producer connections and runs one session per connection.
// It owns the relay's lifecycle.
type Listener struct {
	addr   string
	relay  *Relay
	logger *zap.Logger

	mu     sync.Mutex
	ln     net.Listener
	cancel context.CancelFunc
	group  *errgroup.Group
}

func NewListener(addr string, relay *Relay, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{addr: addr, relay: relay, logger: logger}
}

// Start binds the endpoint, puts the relay in synthetic mode and begins
// accepting. Calling Start on a started listener is a no-op.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln != nil {
		return nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBind, l.addr, err)
	}

	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	group := &errgroup.Group{}
	l.ln, l.cancel, l.group = ln, cancel, group

	l.relay.start()
	group.Go(func() error {
		l.acceptLoop(sctx, ln, group)
		return nil
	})

	l.logger.Info("tcp listener started", zap.Stringer("addr", ln.Addr()))
	return nil
}

func (l *Listener) acceptLoop(ctx context.Context, ln net.Listener, group *errgroup.Group) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Warn("accept error", zap.Error(err))
			time.Sleep(acceptRetryDelay)
			continue
		}
		s := newSession(conn, l.relay, l.logger)
		group.Go(func() error {
			s.run(ctx)
			return nil
		})
	}
}

// Addr returns the bound address, or nil when not listening.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Stop cancels every session and the generator, closes the socket and waits
// for all of them to finish. Calling Stop more than once is a no-op.
func (l *Listener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ln, cancel, group := l.ln, l.cancel, l.group
	l.ln, l.cancel, l.group = nil, nil, nil
	if ln == nil {
		return nil
	}

	// mu stays held until the relay is shut down, so a concurrent Start
	// can't restart it in between.
	cancel()
	l.relay.shutdown()
	err := ln.Close()
	_ = group.Wait()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("closing listener: %w", err)
	}
	l.logger.Info("tcp listener stopped")
	return nil
}
