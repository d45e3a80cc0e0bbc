package main

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// readBufferSize bounds a single producer record.
const readBufferSize = 1024

// session ingests one producer connection.
type session struct {
	id     string
	conn   net.Conn
	relay  *Relay
	logger *zap.Logger
}

func newSession(conn net.Conn, relay *Relay, logger *zap.Logger) *session {
	id := uuid.NewString()
	return &session{
		id:     id,
		conn:   conn,
		relay:  relay,
		logger: logger.With(zap.String("session", id), zap.Stringer("remote_addr", conn.RemoteAddr())),
	}
}

// run reads until the peer disconnects, an I/O error occurs or ctx is done.
func (s *session) run(ctx context.Context) {
	s.logger.Info("producer connected")
	s.relay.sessionOpened(s)

	// Closing the connection unblocks a pending Read.
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer func() {
		stop()
		closeOrLog(s.logger, s.conn)
		s.relay.sessionClosed(s)
	}()

	buf := make([]byte, readBufferSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.handleChunk(buf[:n])
		}
		if err != nil {
			s.logReadError(ctx, err)
			return
		}
	}
}

func (s *session) handleChunk(chunk []byte) {
	v, err := decodeVehicleState(chunk)
	if err != nil {
		s.relay.metrics.recordDecodeError()
		s.logger.Warn("dropping malformed payload", zap.Int("bytes", len(chunk)), zap.Error(err))
		return
	}
	s.logger.Debug("received vehicle state", zap.String("vehicle", v.ID))
	s.relay.publish(v, ModeLive)
}

func (s *session) logReadError(ctx context.Context, err error) {
	switch {
	case errors.Is(err, io.EOF):
		s.logger.Info("producer disconnected")
	case ctx.Err() != nil || errors.Is(err, net.ErrClosed):
		s.logger.Info("session cancelled")
	case errors.Is(err, syscall.ECONNRESET):
		s.logger.Warn("connection reset by producer", zap.Error(err))
	default:
		s.logger.Error("read error", zap.Error(err))
	}
}
