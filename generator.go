package main

import (
	"context"
	"math"
	"sync"
	"time"
)

const (
	egoVehicleID = "ego_vehicle"

	syntheticRadius   = 20.0 // meters
	syntheticSpeed    = 5.0  // meters per second
	syntheticInterval = 100 * time.Millisecond
)

// syntheticStep is the heading advance per tick: 0.02 rad in degrees.
var syntheticStep = 0.02 * 180 / math.Pi

// generator produces a circular ego trace while no producer is connected.
//
// The cursor survives Stop/Start cycles so the trace resumes where it paused.
type generator struct {
	interval time.Duration

	mu      sync.Mutex
	heading float64
}

func newGenerator(interval time.Duration) *generator {
	if interval <= 0 {
		interval = syntheticInterval
	}
	return &generator{interval: interval}
}

// syntheticTask is the handle of one running generator loop.
type syntheticTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// start runs the generator loop until the returned task is stopped. The first
// state is emitted immediately.
func (g *generator) start(emit func(VehicleState)) *syntheticTask {
	ctx, cancel := context.WithCancel(context.Background())
	task := &syntheticTask{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(task.done)
		g.run(ctx, emit)
	}()
	return task
}

func (g *generator) run(ctx context.Context, emit func(VehicleState)) {
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if ctx.Err() != nil {
				return
			}
			emit(g.tick())
			t.Reset(g.interval)
		}
	}
}

// stop cancels the loop and waits for it to exit. No state is emitted after
// stop returns. Safe to call more than once and on a nil task.
func (t *syntheticTask) stop() {
	if t == nil {
		return
	}
	t.cancel()
	<-t.done
}

// tick advances the cursor one step and returns the resulting state.
func (g *generator) tick() VehicleState {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.heading = normalizeHeading(g.heading + syntheticStep)
	rad := g.heading * math.Pi / 180
	return VehicleState{
		ID:      egoVehicleID,
		IsEgo:   true,
		X:       syntheticRadius * math.Cos(rad),
		Y:       syntheticRadius * math.Sin(rad),
		Z:       0,
		Heading: g.heading,
		Speed:   syntheticSpeed,
	}
}
