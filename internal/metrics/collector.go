package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/wayneeseguin/omnitarget/pkg/types"
)

const severitySlots = 16

// Collector handles metrics collection for one target.
type Collector struct {
	// Event counts
	enqueued         atomic.Uint64
	writtenBySev     [severitySlots]atomic.Uint64
	messagesDropped  atomic.Uint64
	messagesDiscard  atomic.Uint64
	degradedSessions atomic.Uint64

	// File operations
	rotationCount     atomic.Uint64
	processorRuns     atomic.Uint64
	processorFailures atomic.Uint64
	bytesWritten      atomic.Uint64

	// Error metrics
	errorCount     atomic.Uint64
	errorsBySource sync.Map // map[string]*atomic.Uint64

	// Performance metrics
	writeCount     atomic.Uint64
	totalWriteTime atomic.Int64 // nanoseconds
	maxWriteTime   atomic.Int64 // nanoseconds
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Metrics contains runtime metrics for a target.
type Metrics struct {
	Target string `json:"target"`
	State  string `json:"state"`

	// Event counts
	Enqueued           uint64            `json:"enqueued"`
	Written            uint64            `json:"written"`
	WrittenBySeverity  map[string]uint64 `json:"written_by_severity"`
	MessagesDropped    uint64            `json:"messages_dropped"`
	MessagesDiscarded  uint64            `json:"messages_discarded"`
	DegradedIncidences uint64            `json:"degraded_incidences"`

	// Queue metrics
	QueueDepth       int     `json:"queue_depth"`
	QueueCapacity    int     `json:"queue_capacity"`
	QueueUtilization float64 `json:"queue_utilization"`

	// File operations
	ActivePath        string `json:"active_path"`
	RotationCount     uint64 `json:"rotation_count"`
	ProcessorRuns     uint64 `json:"processor_runs"`
	ProcessorFailures uint64 `json:"processor_failures"`
	BytesWritten      uint64 `json:"bytes_written"`

	// Error metrics
	ErrorCount     uint64            `json:"error_count"`
	ErrorsBySource map[string]uint64 `json:"errors_by_source"`

	// Performance metrics
	AverageWriteTime time.Duration `json:"average_write_time"`
	MaxWriteTime     time.Duration `json:"max_write_time"`
}

// GetMetrics returns current metrics snapshot.
func (c *Collector) GetMetrics(queueDepth, queueCapacity int) Metrics {
	m := Metrics{
		Enqueued:           c.enqueued.Load(),
		WrittenBySeverity:  make(map[string]uint64),
		MessagesDropped:    c.messagesDropped.Load(),
		MessagesDiscarded:  c.messagesDiscard.Load(),
		DegradedIncidences: c.degradedSessions.Load(),
		QueueDepth:         queueDepth,
		QueueCapacity:      queueCapacity,
		RotationCount:      c.rotationCount.Load(),
		ProcessorRuns:      c.processorRuns.Load(),
		ProcessorFailures:  c.processorFailures.Load(),
		BytesWritten:       c.bytesWritten.Load(),
		ErrorCount:         c.errorCount.Load(),
		ErrorsBySource:     make(map[string]uint64),
	}

	if m.QueueCapacity > 0 {
		m.QueueUtilization = float64(m.QueueDepth) / float64(m.QueueCapacity)
	}

	for i := range c.writtenBySev {
		if n := c.writtenBySev[i].Load(); n > 0 {
			m.Written += n
			m.WrittenBySeverity[sevKey(types.Severity(i))] = n
		}
	}

	c.errorsBySource.Range(func(key, value interface{}) bool {
		if count := value.(*atomic.Uint64).Load(); count > 0 {
			m.ErrorsBySource[key.(string)] = count
		}
		return true
	})

	if writes := c.writeCount.Load(); writes > 0 {
		m.AverageWriteTime = time.Duration(c.totalWriteTime.Load()) / time.Duration(writes)
	}
	m.MaxWriteTime = time.Duration(c.maxWriteTime.Load())

	return m
}

func sevKey(s types.Severity) string {
	if s == types.SeverityBlanks {
		return "BLANKS"
	}
	return s.String()
}

// TrackEnqueued counts an admitted data event.
func (c *Collector) TrackEnqueued() {
	c.enqueued.Add(1)
}

// TrackWritten counts an event written to the active file.
func (c *Collector) TrackWritten(sev types.Severity) {
	c.writtenBySev[int(sev)%severitySlots].Add(1)
}

// TrackMessageDropped counts an event lost to overflow or degraded mode.
func (c *Collector) TrackMessageDropped() {
	c.messagesDropped.Add(1)
}

// Pending counts, per severity, events accepted by the active file's buffer
// but not yet known to have reached the file. It is owned by the consumer.
type Pending struct {
	bySev [severitySlots]uint64
	n     uint64
}

// Add records one buffered event.
func (p *Pending) Add(sev types.Severity) {
	p.bySev[int(sev)%severitySlots]++
	p.n++
}

// Len returns the number of buffered events.
func (p *Pending) Len() uint64 {
	return p.n
}

// Reset forgets the buffered events once they are on disk.
func (p *Pending) Reset() {
	*p = Pending{}
}

// TrackLost moves the events in p from the written counts to the dropped
// count and resets p.
func (c *Collector) TrackLost(p *Pending) {
	if p.n == 0 {
		return
	}
	for i, n := range p.bySev {
		if n > 0 {
			c.writtenBySev[i].Add(^(n - 1))
		}
	}
	c.messagesDropped.Add(p.n)
	p.Reset()
}

// TrackDiscarded counts events thrown away by a cancel shutdown.
func (c *Collector) TrackDiscarded(n int) {
	if n > 0 {
		c.messagesDiscard.Add(uint64(n))
	}
}

// TrackDegraded counts an entry into degraded mode.
func (c *Collector) TrackDegraded() {
	c.degradedSessions.Add(1)
}

// TrackRotation increments the rotation counter.
func (c *Collector) TrackRotation() {
	c.rotationCount.Add(1)
}

// TrackProcessor records one processor run.
func (c *Collector) TrackProcessor(failed bool) {
	c.processorRuns.Add(1)
	if failed {
		c.processorFailures.Add(1)
	}
}

// TrackWrite records write metrics.
func (c *Collector) TrackWrite(bytes int64, duration time.Duration) {
	if bytes > 0 {
		c.bytesWritten.Add(uint64(bytes))
	}
	c.writeCount.Add(1)
	c.totalWriteTime.Add(int64(duration))

	for {
		oldMax := c.maxWriteTime.Load()
		if int64(duration) <= oldMax {
			break
		}
		if c.maxWriteTime.CompareAndSwap(oldMax, int64(duration)) {
			break
		}
	}
}

// TrackError increments the error counter and tracks by source.
func (c *Collector) TrackError(source string) {
	c.errorCount.Add(1)
	val, _ := c.errorsBySource.LoadOrStore(source, &atomic.Uint64{})
	val.(*atomic.Uint64).Add(1)
}
