package listener

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gangulwar/rollX/internal/adapters/wire"
	"github.com/gangulwar/rollX/internal/domain"
	"github.com/gangulwar/rollX/internal/ports"
)

const maxLineBytes = 4 << 10

// TCPListener accepts producer connections and decodes one sample per line.
// Device is the producer's remote address and Seq counts lines per
// connection, starting at 1.
type TCPListener struct {
	addr string
	obs  ports.Observability
	now  func() time.Time

	mu      sync.Mutex
	ln      net.Listener
	conns   map[net.Conn]struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewTCPListener(addr string, obs ports.Observability) *TCPListener {
	if obs == nil {
		obs = ports.NopObservability{}
	}
	return &TCPListener{
		addr:  addr,
		obs:   obs,
		now:   time.Now,
		conns: make(map[net.Conn]struct{}),
	}
}

func (l *TCPListener) Start(out chan<- *domain.Sample) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return fmt.Errorf("tcp listener already started")
	}

	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", l.addr, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.ln = ln
	l.cancel = cancel
	l.started = true

	l.obs.LogInfo("collector_listening", ports.Field{Key: "addr", Value: ln.Addr().String()})
	l.wg.Add(1)
	go l.acceptLoop(ctx, ln, out)
	return nil
}

// Addr is the bound address, useful when listening on port 0.
func (l *TCPListener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

func (l *TCPListener) Stop() error {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return nil
	}
	l.started = false
	l.cancel()
	err := l.ln.Close()
	for c := range l.conns {
		_ = c.Close()
	}
	l.mu.Unlock()

	l.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

func (l *TCPListener) acceptLoop(ctx context.Context, ln net.Listener, out chan<- *domain.Sample) {
	defer l.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			l.obs.LogError("collector_accept_failed", err)
			continue
		}

		l.mu.Lock()
		if ctx.Err() != nil {
			l.mu.Unlock()
			_ = conn.Close()
			return
		}
		l.conns[conn] = struct{}{}
		l.obs.SetGauge("rollx_collector_clients", float64(len(l.conns)))
		l.mu.Unlock()

		l.wg.Add(1)
		go l.serve(ctx, conn, out)
	}
}

func (l *TCPListener) serve(ctx context.Context, conn net.Conn, out chan<- *domain.Sample) {
	defer l.wg.Done()
	defer l.drop(conn)

	device := conn.RemoteAddr().String()
	l.obs.LogInfo("producer_connected", ports.Field{Key: "device", Value: device})

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 256), maxLineBytes)

	var seq uint64
	for scanner.Scan() {
		s, err := wire.Decode(scanner.Bytes())
		if err != nil {
			l.obs.IncCounter("rollx_malformed_records_total", 1)
			l.obs.LogError("record_decode_failed", err, ports.Field{Key: "device", Value: device})
			continue
		}
		seq++
		s.Device = device
		s.Seq = seq
		s.Timestamp = l.now()
		l.obs.IncCounter("rollx_samples_received_total", 1)

		select {
		case <-ctx.Done():
			return
		case out <- &s:
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		l.obs.LogError("producer_read_failed", err, ports.Field{Key: "device", Value: device})
	}
	l.obs.LogInfo("producer_disconnected",
		ports.Field{Key: "device", Value: device},
		ports.Field{Key: "samples", Value: seq})
}

func (l *TCPListener) drop(conn net.Conn) {
	_ = conn.Close()
	l.mu.Lock()
	delete(l.conns, conn)
	l.obs.SetGauge("rollx_collector_clients", float64(len(l.conns)))
	l.mu.Unlock()
}

var _ ports.Collector = (*TCPListener)(nil)
