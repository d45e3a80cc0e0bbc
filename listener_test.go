package main

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func startTestListener(t *testing.T, interval time.Duration) (*Listener, *Relay, *recordingSink) {
	t.Helper()
	sink := newRecordingSink()
	logger := zaptest.NewLogger(t)
	relay := NewRelay(sink, newGenerator(interval), logger, nil)
	l := NewListener("127.0.0.1:0", relay, logger)
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { _ = l.Stop() })
	return l, relay, sink
}

func dialProducer(t *testing.T, l *Listener, relay *Relay) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return relay.Mode() == ModeLive }, time.Second, time.Millisecond)
	return conn
}

func TestListener_EndToEnd(t *testing.T) {
	l, relay, sink := startTestListener(t, syntheticInterval)

	first := sink.next(t, time.Second)
	assert.Equal(t, egoVehicleID, first.ID)
	assert.True(t, first.IsEgo)
	assert.Equal(t, 5.0, first.Speed)
	assert.Equal(t, 0.0, first.Z)

	conn := dialProducer(t, l, relay)
	sink.drain()

	_, err := conn.Write([]byte(`{"id":"car1","x":1,"y":2,"z":0,"heading":90,"speed":3}`))
	require.NoError(t, err)

	v := sink.next(t, time.Second)
	assert.Equal(t, VehicleState{ID: "car1", X: 1, Y: 2, Z: 0, Heading: 90, Speed: 3}, v)
	sink.assertQuiet(t, 3*syntheticInterval)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return relay.Mode() == ModeSynthetic }, time.Second, time.Millisecond)
	resumed := sink.next(t, syntheticInterval)
	assert.Equal(t, egoVehicleID, resumed.ID)
}

func TestListener_MalformedInputKeepsConnection(t *testing.T) {
	l, relay, sink := startTestListener(t, syntheticInterval)

	conn := dialProducer(t, l, relay)
	defer conn.Close()
	sink.drain()

	_, err := conn.Write([]byte(`{"id":"car1","x":`))
	require.NoError(t, err)
	sink.assertQuiet(t, 100*time.Millisecond)
	assert.Equal(t, ModeLive, relay.Mode())

	_, err = conn.Write([]byte(`{"id":"car1","x":4,"y":5,"z":6,"heading":10,"speed":1}`))
	require.NoError(t, err)
	v := sink.next(t, time.Second)
	assert.Equal(t, "car1", v.ID)
	assert.Equal(t, 4.0, v.X)
}

func TestListener_DisconnectFallbackIsPrompt(t *testing.T) {
	l, relay, sink := startTestListener(t, syntheticInterval)

	conn := dialProducer(t, l, relay)
	sink.drain()

	closed := time.Now()
	require.NoError(t, conn.Close())
	v := sink.next(t, time.Second)
	assert.Equal(t, egoVehicleID, v.ID)
	assert.Less(t, time.Since(closed), 2*syntheticInterval)
}

func TestListener_ConnectionResetFallsBack(t *testing.T) {
	l, relay, sink := startTestListener(t, syntheticInterval)

	conn := dialProducer(t, l, relay)
	sink.drain()

	// Linger 0 makes Close send RST instead of FIN.
	tcp, ok := conn.(*net.TCPConn)
	require.True(t, ok)
	require.NoError(t, tcp.SetLinger(0))
	require.NoError(t, tcp.Close())

	require.Eventually(t, func() bool { return relay.Mode() == ModeSynthetic }, time.Second, time.Millisecond)
	v := sink.next(t, syntheticInterval)
	assert.Equal(t, egoVehicleID, v.ID)
}

func TestListener_ConcurrentStartStop(t *testing.T) {
	l, _, sink := startTestListener(t, 5*time.Millisecond)

	for i := 0; i < 50; i++ {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Stop())
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Start(context.Background()))
		}()
		wg.Wait()

		sink.drain()
		if l.Addr() != nil {
			// Listening means the generator must be running too.
			v := sink.next(t, time.Second)
			assert.Equal(t, egoVehicleID, v.ID)
		} else {
			sink.assertQuiet(t, 20*time.Millisecond)
			require.NoError(t, l.Start(context.Background()))
		}
	}
}

func TestListener_StopIsIdempotent(t *testing.T) {
	l, relay, sink := startTestListener(t, 5*time.Millisecond)

	conn := dialProducer(t, l, relay)
	defer conn.Close()

	require.NoError(t, l.Stop())
	require.NoError(t, l.Stop())
	assert.Nil(t, l.Addr())

	// The live session was cancelled and its connection closed.
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err := conn.Read(make([]byte, 1))
	assert.Error(t, err)

	sink.drain()
	sink.assertQuiet(t, 30*time.Millisecond)
}

func TestListener_StartTwiceIsNoop(t *testing.T) {
	l, _, _ := startTestListener(t, syntheticInterval)
	addr := l.Addr().String()
	require.NoError(t, l.Start(context.Background()))
	assert.Equal(t, addr, l.Addr().String())
}

func TestListener_BindError(t *testing.T) {
	l, _, _ := startTestListener(t, syntheticInterval)

	other := NewListener(l.Addr().String(), NewRelay(nil, nil, zaptest.NewLogger(t), nil), zaptest.NewLogger(t))
	err := other.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBind)
	assert.NoError(t, other.Stop())
}
