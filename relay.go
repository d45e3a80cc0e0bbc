package main

import (
	"sync"

	"go.uber.org/zap"
)

// RelayMode says where published states currently come from.
type RelayMode int

const (
	// ModeSynthetic publishes the generated ego trace. It is the initial mode.
	ModeSynthetic RelayMode = iota
	// ModeLive publishes what connected producers send.
	ModeLive
)

func (m RelayMode) String() string {
	switch m {
	case ModeLive:
		return "live"
	case ModeSynthetic:
		return "synthetic"
	default:
		return "unknown"
	}
}

// Relay owns the LIVE/SYNTHETIC state machine and forwards states to the sink.
//
// Mode, the active session set and the generator task are only touched by
// start, shutdown, sessionOpened and sessionClosed, all under mu. Stopping the
// generator waits for its loop to exit, so the generator and a live session
// never publish at the same time.
type Relay struct {
	sink    Sink
	gen     *generator
	logger  *zap.Logger
	metrics *relayMetrics

	mu       sync.Mutex
	running  bool
	mode     RelayMode
	sessions map[string]struct{}
	task     *syntheticTask
}

func NewRelay(sink Sink, gen *generator, logger *zap.Logger, metrics *relayMetrics) *Relay {
	if sink == nil {
		sink = SinkFunc(func(VehicleState) error { return nil })
	}
	if gen == nil {
		gen = newGenerator(syntheticInterval)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		sink:     sink,
		gen:      gen,
		logger:   logger,
		metrics:  metrics,
		mode:     ModeSynthetic,
		sessions: make(map[string]struct{}),
	}
}

// Mode returns the current relay mode.
func (r *Relay) Mode() RelayMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// start enters the running state. With no session active the generator starts.
func (r *Relay) start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	if len(r.sessions) == 0 {
		r.enterSynthetic()
	}
}

// shutdown stops the generator. Sessions are cancelled by their owner.
func (r *Relay) shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	r.task.stop()
	r.task = nil
	r.logger.Info("relay stopped")
}

func (r *Relay) sessionOpened(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.id] = struct{}{}
	r.metrics.recordSessions(true, len(r.sessions))
	if r.mode == ModeLive {
		r.logger.Warn("additional producer connected", zap.String("session", s.id), zap.Int("active", len(r.sessions)))
		return
	}

	r.task.stop()
	r.task = nil
	r.mode = ModeLive
	r.metrics.recordMode(r.mode)
	r.logger.Info("switched to live data", zap.String("session", s.id))
}

func (r *Relay) sessionClosed(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, s.id)
	r.metrics.recordSessions(false, len(r.sessions))
	if len(r.sessions) > 0 || r.mode == ModeSynthetic {
		return
	}
	if !r.running {
		r.mode = ModeSynthetic
		r.metrics.recordMode(r.mode)
		return
	}
	r.enterSynthetic()
	r.logger.Info("no producers left, switched to synthetic data", zap.String("session", s.id))
}

// enterSynthetic must be called with mu held.
func (r *Relay) enterSynthetic() {
	r.mode = ModeSynthetic
	r.metrics.recordMode(r.mode)
	r.task = r.gen.start(func(v VehicleState) {
		r.publish(v, ModeSynthetic)
	})
}

// publish hands v to the sink. It doesn't take mu: exclusivity between the
// generator and live sessions comes from the state machine.
func (r *Relay) publish(v VehicleState, source RelayMode) {
	r.metrics.recordPublished(source)
	if err := r.sink.Publish(v); err != nil {
		r.metrics.recordSinkError()
		r.logger.Debug("sink publish failed", zap.String("vehicle", v.ID), zap.Error(err))
	}
}
