package rollx

import (
	"github.com/gangulwar/rollX/internal/app/session"
	"github.com/gangulwar/rollX/internal/domain"
	"github.com/gangulwar/rollX/internal/ports"
)

// Sample is one 3-axis reading as it travels through either runtime.
type Sample = domain.Sample

// Endpoint is a validated collector address.
type Endpoint = domain.Endpoint

// Status is the observable state of a producer session.
type Status = session.Status

// Sensor supplies readings to a producer (hardware, simulator, replay, etc.).
type Sensor = ports.Sensor

// Subscription is returned by Sensor.Subscribe.
type Subscription = ports.Subscription

// StoppableSubscription lets a sensor report that it stopped by itself.
type StoppableSubscription = ports.StoppableSubscription

// Transport opens connections from a producer to a collector.
type Transport = ports.Transport

// Connection is one transport connection.
type Connection = ports.Connection

// TransportEvent is a state notification from a Connection.
type TransportEvent = ports.TransportEvent

// QueuedSample represents an item buffered inside the bounded queue.
type QueuedSample = ports.QueuedSample

// Collector streams samples from producers into the collector pipeline.
type Collector = ports.Collector

// SampleQueue is the bounded, in-memory queue that decouples the collector and sink.
type SampleQueue = ports.SampleQueue

// Sink consumes batches of samples and persists them to any downstream system.
type Sink = ports.Sink

// Observability emits metrics/logs about throughput, latency, and DLQ conditions.
type Observability = ports.Observability

// Field is a structured log/metric field used by Observability implementations.
type Field = ports.Field

// WAL abstracts the write-ahead log used for durability and crash recovery.
type WAL = ports.WAL

// WALStats exposes WAL metadata for observability.
type WALStats = ports.WALStats

// WALEntryID uniquely identifies a WAL entry.
type WALEntryID = ports.WALEntryID

// Errors surfaced by producer sessions.
var (
	ErrInvalidEndpoint   = session.ErrInvalidEndpoint
	ErrInvalidPort       = session.ErrInvalidPort
	ErrSensorUnavailable = session.ErrSensorUnavailable
	ErrSessionClosed     = session.ErrSessionClosed
)

type (
	TransportError = session.TransportError
	SendError      = session.SendError
)
