package session

import (
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gangulwar/rollX/internal/ports"
)

func newTestController(t *testing.T, opts ...Option) (*Controller, *fakeTransport, *fakeSensor) {
	t.Helper()
	tr := &fakeTransport{}
	sensor := &fakeSensor{}
	c := NewController(tr, sensor, opts...)
	t.Cleanup(c.Close)
	return c, tr, sensor
}

// settle waits for queued notifications and the completions they post.
func settle(c *Controller) {
	c.loop.Do(func() {})
	c.loop.Do(func() {})
}

func inspect(c *Controller) (State, bool) {
	var (
		st     State
		active bool
	)
	c.loop.Do(func() {
		st = c.machine.State()
		active = c.source.Active()
	})
	return st, active
}

func TestConnectMovesIdleToConnecting(t *testing.T) {
	c, tr, sensor := newTestController(t)

	require.NoError(t, c.Connect("127.0.0.1", "9000"))

	st, active := inspect(c)
	require.Equal(t, StateConnecting, st)
	require.False(t, active)
	require.Equal(t, 1, tr.opened())
	require.True(t, tr.last().isStarted())
	require.Equal(t, "127.0.0.1", tr.last().ep.Host)
	require.Equal(t, uint16(9000), tr.last().ep.Port)
	require.Zero(t, sensor.active())

	status := c.Status()
	require.Equal(t, "connecting", status.State)
	require.False(t, status.Connected)
	require.NotEmpty(t, status.SessionID)
	require.Equal(t, "127.0.0.1:9000", status.Endpoint)
}

func TestConnectRejectsInvalidInput(t *testing.T) {
	c, tr, _ := newTestController(t)

	err := c.Connect("", "9000")
	require.ErrorIs(t, err, ErrInvalidEndpoint)
	st, _ := inspect(c)
	require.Equal(t, StateIdle, st)
	require.Zero(t, tr.opened())

	for _, port := range []string{"", "abc", "0", "65536", "-1", "90.5"} {
		err := c.Connect("127.0.0.1", port)
		require.ErrorIs(t, err, ErrInvalidPort, "port %q", port)
	}
	require.Zero(t, tr.opened())
	require.Contains(t, c.Status().LastError, "invalid port")
	require.Equal(t, "idle", c.Status().State)
}

func TestReadyStreamsSamplesInOrder(t *testing.T) {
	obs := newRecordingObs()
	c, tr, sensor := newTestController(t, WithObservability(obs))

	var (
		mu       sync.Mutex
		statuses []Status
	)
	c.Watch(func(s Status) {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, s)
	})

	require.NoError(t, c.Connect("127.0.0.1", "9000"))
	conn := tr.last()
	conn.emit(ports.TransportReady, nil)
	settle(c)

	require.True(t, c.Status().Connected)
	require.Equal(t, DefaultInterval, sensor.lastInterval())

	mu.Lock()
	readyAt := len(statuses)
	mu.Unlock()

	sensor.tick(0.1, 0.2, 0.3)
	sensor.tick(0.11, 0.19, 0.29)
	sensor.tick(0.12, 0.18, 0.28)
	settle(c)

	require.Equal(t, []string{
		"0.1,0.2,0.3\n",
		"0.11,0.19,0.29\n",
		"0.12,0.18,0.28\n",
	}, conn.sent())

	mu.Lock()
	for _, s := range statuses[readyAt:] {
		require.True(t, s.Connected)
	}
	mu.Unlock()

	last := c.Status().LastSample
	require.NotNil(t, last)
	require.Equal(t, uint64(3), last.Seq)
	require.Equal(t, 0.12, last.X)
	require.Equal(t, float64(3), obs.counter("rollx_samples_sent_total"))
}

func TestSendFailureDoesNotStopStream(t *testing.T) {
	obs := newRecordingObs()
	c, tr, sensor := newTestController(t, WithObservability(obs))

	require.NoError(t, c.Connect("127.0.0.1", "9000"))
	conn := tr.last()
	conn.emit(ports.TransportReady, nil)
	settle(c)

	conn.failSends(1)
	sensor.tick(1, 2, 3)
	settle(c)

	status := c.Status()
	require.True(t, status.Connected)
	require.Contains(t, status.LastError, "send failed")
	require.Contains(t, status.LastError, errBrokenPipe.Error())

	sensor.tick(4, 5, 6)
	settle(c)

	require.Equal(t, []string{"1,2,3\n", "4,5,6\n"}, conn.sent())
	st, active := inspect(c)
	require.Equal(t, StateReady, st)
	require.True(t, active)
	// a later successful send does not clear the error
	require.Contains(t, c.Status().LastError, "send failed")
	require.Equal(t, float64(1), obs.counter("rollx_send_failures_total"))
}

func TestRepeatedSendFailuresAreEachReported(t *testing.T) {
	obs := newRecordingObs()
	c, tr, sensor := newTestController(t, WithObservability(obs))

	require.NoError(t, c.Connect("127.0.0.1", "9000"))
	conn := tr.last()
	conn.emit(ports.TransportReady, nil)
	settle(c)

	conn.failSends(2)
	sensor.tick(1, 1, 1)
	sensor.tick(2, 2, 2)
	settle(c)

	obs.mu.Lock()
	reported := 0
	for _, msg := range obs.errors {
		if msg == "sample_send_failed" {
			reported++
		}
	}
	obs.mu.Unlock()

	require.Equal(t, 2, reported)
	require.Equal(t, float64(2), obs.counter("rollx_send_failures_total"))
	require.Len(t, conn.sent(), 2)
}

func TestFailedWhileReadyStopsSampling(t *testing.T) {
	c, tr, sensor := newTestController(t)

	require.NoError(t, c.Connect("127.0.0.1", "9000"))
	conn := tr.last()
	conn.emit(ports.TransportReady, nil)
	settle(c)
	sensor.tick(1, 1, 1)
	settle(c)

	conn.emit(ports.TransportFailed, errors.New("connection refused"))
	settle(c)

	st, active := inspect(c)
	require.Equal(t, StateFailed, st)
	require.False(t, active)
	require.Zero(t, sensor.active())
	require.True(t, conn.isCancelled())

	status := c.Status()
	require.False(t, status.Connected)
	require.Contains(t, status.LastError, "connection refused")

	sensor.tick(2, 2, 2)
	settle(c)
	require.Len(t, conn.sent(), 1)

	// terminal for the attempt: a late ready does nothing
	conn.emit(ports.TransportReady, nil)
	settle(c)
	st, _ = inspect(c)
	require.Equal(t, StateFailed, st)
}

func TestWaitingRestartsTransport(t *testing.T) {
	c, tr, sensor := newTestController(t)

	require.NoError(t, c.Connect("127.0.0.1", "9000"))
	conn := tr.last()

	conn.emit(ports.TransportWaiting, errors.New("network is unreachable"))
	settle(c)
	st, active := inspect(c)
	require.Equal(t, StateWaiting, st)
	require.False(t, active)
	require.Equal(t, 1, conn.restartCount())
	require.False(t, c.Status().Connected)
	require.Contains(t, c.Status().LastError, "network is unreachable")

	conn.emit(ports.TransportReady, nil)
	settle(c)
	require.True(t, c.Status().Connected)
	require.Empty(t, c.Status().LastError)
	require.Equal(t, 1, sensor.active())

	conn.emit(ports.TransportWaiting, errors.New("connection reset by peer"))
	settle(c)
	st, active = inspect(c)
	require.Equal(t, StateWaiting, st)
	require.False(t, active)
	require.Zero(t, sensor.active())
	require.Equal(t, 2, conn.restartCount())
	// last known value survives the wait
	require.True(t, c.Status().Connected)
	require.Contains(t, c.Status().LastError, "connection reset by peer")
}

func TestOtherTransportSignalsAreIgnored(t *testing.T) {
	c, tr, _ := newTestController(t)

	require.NoError(t, c.Connect("127.0.0.1", "9000"))
	conn := tr.last()
	conn.emit(ports.TransportPreparing, nil)
	conn.emit(ports.TransportSetup, nil)
	conn.emit(ports.TransportCancelled, nil)
	settle(c)

	st, _ := inspect(c)
	require.Equal(t, StateConnecting, st)
}

func TestDisconnectIsSafeFromAnyState(t *testing.T) {
	c, tr, sensor := newTestController(t)

	c.Disconnect()
	c.Disconnect()
	st, active := inspect(c)
	require.Equal(t, StateIdle, st)
	require.False(t, active)

	require.NoError(t, c.Connect("127.0.0.1", "9000"))
	conn := tr.last()
	conn.emit(ports.TransportReady, nil)
	settle(c)
	require.Equal(t, 1, sensor.active())

	c.Disconnect()
	st, active = inspect(c)
	require.Equal(t, StateIdle, st)
	require.False(t, active)
	require.Zero(t, sensor.active())
	require.True(t, conn.isCancelled())
	require.False(t, c.Status().Connected)

	c.Disconnect()
	st, _ = inspect(c)
	require.Equal(t, StateIdle, st)

	c.Shutdown()
	st, _ = inspect(c)
	require.Equal(t, StateClosed, st)
	c.Disconnect()
	st, active = inspect(c)
	require.Equal(t, StateIdle, st)
	require.False(t, active)
}

func TestDisconnectClearsError(t *testing.T) {
	c, tr, _ := newTestController(t)

	require.NoError(t, c.Connect("127.0.0.1", "9000"))
	tr.last().emit(ports.TransportFailed, errors.New("no route to host"))
	settle(c)
	require.NotEmpty(t, c.Status().LastError)

	c.Disconnect()
	require.Empty(t, c.Status().LastError)
	require.Equal(t, "idle", c.Status().State)
}

func TestConnectTwiceRetiresPreviousConnection(t *testing.T) {
	c, tr, sensor := newTestController(t)

	require.NoError(t, c.Connect("127.0.0.1", "9000"))
	first := tr.last()
	first.emit(ports.TransportReady, nil)
	settle(c)
	require.Equal(t, 1, sensor.active())

	require.NoError(t, c.Connect("127.0.0.2", "9001"))
	second := tr.last()
	require.Equal(t, 2, tr.opened())
	require.True(t, first.isCancelled())
	require.False(t, second.isCancelled())
	require.Equal(t, 1, tr.live())
	require.Zero(t, sensor.active())

	first.emit(ports.TransportReady, nil)
	settle(c)
	st, _ := inspect(c)
	require.Equal(t, StateConnecting, st)

	second.emit(ports.TransportReady, nil)
	settle(c)
	st, active := inspect(c)
	require.Equal(t, StateReady, st)
	require.True(t, active)
	require.Equal(t, 1, sensor.active())
	require.Equal(t, 1, tr.live())

	sensor.tick(1, 2, 3)
	settle(c)
	require.Len(t, first.sent(), 0)
	require.Equal(t, []string{"1,2,3\n"}, second.sent())
}

func TestLateNotificationAfterDisconnectIsDropped(t *testing.T) {
	c, tr, sensor := newTestController(t)

	require.NoError(t, c.Connect("127.0.0.1", "9000"))
	conn := tr.last()
	c.Disconnect()

	conn.emit(ports.TransportReady, nil)
	conn.emit(ports.TransportWaiting, errors.New("late"))
	settle(c)

	st, active := inspect(c)
	require.Equal(t, StateIdle, st)
	require.False(t, active)
	require.Zero(t, sensor.active())
	require.Zero(t, conn.restartCount())
	require.Empty(t, c.Status().LastError)
}

func TestSensorUnavailableIsReported(t *testing.T) {
	c, tr, sensor := newTestController(t)
	sensor.unavailable = true

	require.NoError(t, c.Connect("127.0.0.1", "9000"))
	tr.last().emit(ports.TransportReady, nil)
	settle(c)

	require.Zero(t, sensor.active())
	require.Contains(t, c.Status().LastError, ErrSensorUnavailable.Error())
}

func TestConnectAgainClearsStaleError(t *testing.T) {
	c, tr, sensor := newTestController(t)

	require.NoError(t, c.Connect("127.0.0.1", "9000"))
	first := tr.last()
	first.emit(ports.TransportReady, nil)
	settle(c)
	first.failSends(1)
	sensor.tick(1, 2, 3)
	settle(c)
	require.Contains(t, c.Status().LastError, "send failed")

	require.NoError(t, c.Connect("127.0.0.1", "9001"))
	st, _ := inspect(c)
	require.Equal(t, StateConnecting, st)
	require.True(t, first.isCancelled())
	require.Empty(t, c.Status().LastError)
	require.Equal(t, "127.0.0.1:9001", c.Status().Endpoint)
}

func TestSensorLostWhileReadyIsReported(t *testing.T) {
	c, tr, sensor := newTestController(t)

	require.NoError(t, c.Connect("127.0.0.1", "9000"))
	conn := tr.last()
	conn.emit(ports.TransportReady, nil)
	settle(c)
	require.Equal(t, 1, sensor.active())

	sensor.fail(errors.New("opcua connect: connection refused"))
	require.Eventually(t, func() bool {
		_, active := inspect(c)
		return !active
	}, time.Second, 5*time.Millisecond)

	st := c.Status()
	require.Equal(t, StateReady.String(), st.State)
	require.Contains(t, st.LastError, ErrSensorUnavailable.Error())
	require.Contains(t, st.LastError, "connection refused")

	// Late ticks from the dead subscription go nowhere.
	sensor.tick(1, 2, 3)
	settle(c)
	require.Empty(t, conn.sent())

	// The next Ready starts sampling again.
	conn.emit(ports.TransportWaiting, errors.New("reset"))
	conn.emit(ports.TransportReady, nil)
	settle(c)
	_, active := inspect(c)
	require.True(t, active)
	require.Empty(t, c.Status().LastError)
}

func TestSensorStopAfterDisconnectIsIgnored(t *testing.T) {
	c, tr, sensor := newTestController(t)

	require.NoError(t, c.Connect("127.0.0.1", "9000"))
	tr.last().emit(ports.TransportReady, nil)
	settle(c)
	c.Disconnect()

	sensor.fail(errors.New("late"))
	settle(c)
	require.Empty(t, c.Status().LastError)
}

func TestToggleConnectsThenDisconnects(t *testing.T) {
	c, tr, _ := newTestController(t)

	require.NoError(t, c.Toggle("127.0.0.1", "9000"))
	st, _ := inspect(c)
	require.Equal(t, StateConnecting, st)

	require.NoError(t, c.Toggle("127.0.0.1", "9000"))
	st, _ = inspect(c)
	require.Equal(t, StateIdle, st)
	require.True(t, tr.last().isCancelled())

	require.ErrorIs(t, c.Toggle("127.0.0.1", "nope"), ErrInvalidPort)
}

func TestShutdownRejectsConnect(t *testing.T) {
	c, tr, _ := newTestController(t)

	require.NoError(t, c.Connect("127.0.0.1", "9000"))
	c.Shutdown()

	st, _ := inspect(c)
	require.Equal(t, StateClosed, st)
	require.True(t, tr.last().isCancelled())
	require.ErrorIs(t, c.Connect("127.0.0.1", "9000"), ErrSessionClosed)
	require.Equal(t, 1, tr.opened())
}

func TestCustomIntervalIsPassedToSensor(t *testing.T) {
	c, tr, sensor := newTestController(t, WithInterval(250*time.Millisecond))

	require.NoError(t, c.Connect("127.0.0.1", "9000"))
	tr.last().emit(ports.TransportReady, nil)
	settle(c)
	require.Equal(t, 250*time.Millisecond, sensor.lastInterval())
}

func TestSamplingActiveOnlyWhileReady(t *testing.T) {
	c, tr, sensor := newTestController(t)
	rng := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 2000; i++ {
		switch op := rng.IntN(8); op {
		case 0:
			require.NoError(t, c.Connect("127.0.0.1", "9000"))
		case 1:
			c.Disconnect()
		case 2, 3:
			if conn := tr.last(); conn != nil {
				conn.emit(ports.TransportReady, nil)
			}
		case 4:
			if conn := tr.last(); conn != nil {
				conn.emit(ports.TransportFailed, errors.New("failed"))
			}
		case 5:
			if conn := tr.last(); conn != nil {
				conn.emit(ports.TransportWaiting, errors.New("waiting"))
			}
		case 6:
			sensor.tick(rng.Float64(), rng.Float64(), rng.Float64())
		case 7:
			if n := tr.opened(); n > 0 {
				tr.conn(rng.IntN(n)).emit(ports.TransportReady, nil)
			}
		}
		settle(c)

		st, active := inspect(c)
		require.Equal(t, st == StateReady, active, "step %d state %s", i, st)
		wantSubs := 0
		if st == StateReady {
			wantSubs = 1
		}
		require.Equal(t, wantSubs, sensor.active(), "step %d state %s", i, st)
		require.LessOrEqual(t, tr.live(), 1, "step %d", i)
		require.Equal(t, st == StateReady, c.Status().State == "ready")
	}
}
