// Package forward hands decoded packets to the persistence sink.
//
// Packets go through a bounded queue drained by a fixed pool of workers.
// Forward never blocks the notification path: when the sink falls behind and
// the queue is full, the oldest queued packet is dropped. Failed writes are
// logged and counted, never retried.
package forward

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blestream/internal/groutine"
	"github.com/srg/blestream/internal/queue"
	"github.com/srg/blestream/internal/reassembly"
)

// Writer persists one packet's samples as a single record in destination.
type Writer interface {
	Write(ctx context.Context, destination string, values []float32) error
}

// Options tunes the queue and worker pool.
type Options struct {
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
}

// DefaultOptions returns the defaults used when a field is left zero.
func DefaultOptions() Options {
	return Options{QueueSize: 64, Workers: 4, WriteTimeout: 10 * time.Second}
}

// Metrics is a snapshot of forwarding counters.
type Metrics struct {
	Enqueued int64
	Dropped  int64
	Written  int64
	Failed   int64
}

// Forwarder owns the queue between the reassembler and the sink.
type Forwarder struct {
	writer      Writer
	destination string
	opts        Options
	logger      *logrus.Logger

	q       *queue.RingChannel[*reassembly.Packet]
	wg      sync.WaitGroup
	once    sync.Once
	written atomic.Int64
	failed  atomic.Int64
}

// New creates a Forwarder writing to destination. Call Start before Forward.
func New(w Writer, destination string, opts Options, logger *logrus.Logger) *Forwarder {
	if logger == nil {
		logger = logrus.New()
	}
	def := DefaultOptions()
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	return &Forwarder{
		writer:      w,
		destination: destination,
		opts:        opts,
		logger:      logger,
		q:           queue.NewRingChannel[*reassembly.Packet](opts.QueueSize),
	}
}

// Start launches the worker pool. Writes are detached from ctx cancellation
// so queued packets still drain on shutdown, bounded by WriteTimeout each.
func (f *Forwarder) Start(ctx context.Context) {
	f.once.Do(func() {
		base := context.WithoutCancel(ctx)
		for i := 0; i < f.opts.Workers; i++ {
			name := fmt.Sprintf("forward-worker-%d", i)
			groutine.GoTracked(base, name, &f.wg, f.work)
		}
		f.logger.WithFields(logrus.Fields{
			"destination": f.destination,
			"workers":     f.opts.Workers,
			"queue_size":  f.opts.QueueSize,
		}).Info("Forwarder started")
	})
}

// Forward enqueues p without blocking.
func (f *Forwarder) Forward(p *reassembly.Packet) {
	dropped, didDrop, ok := f.q.Send(p)
	if !ok {
		f.logger.WithField("seq", p.Seq).Warn("Forwarder closed, packet discarded")
		return
	}
	if didDrop {
		f.logger.WithFields(logrus.Fields{
			"dropped_seq": dropped.Seq,
			"queue_size":  f.q.Cap(),
		}).Warn("Sink is falling behind, dropped oldest queued packet")
	}
}

// Close stops intake and waits until every queued packet has been attempted.
func (f *Forwarder) Close() {
	f.q.Close()
	f.wg.Wait()
	m := f.Metrics()
	f.logger.WithFields(logrus.Fields{
		"written": m.Written,
		"failed":  m.Failed,
		"dropped": m.Dropped,
	}).Info("Forwarder stopped")
}

// Metrics returns current counters.
func (f *Forwarder) Metrics() Metrics {
	qm := f.q.GetMetrics()
	return Metrics{
		Enqueued: qm.Written,
		Dropped:  qm.Overwritten,
		Written:  f.written.Load(),
		Failed:   f.failed.Load(),
	}
}

func (f *Forwarder) work(ctx context.Context) {
	log := f.logger.WithField("worker", groutine.GetName(ctx))
	for p := range f.q.C() {
		writeCtx, cancel := context.WithTimeout(ctx, f.opts.WriteTimeout)
		err := f.writer.Write(writeCtx, f.destination, p.Samples)
		cancel()

		if err != nil {
			f.failed.Add(1)
			log.WithFields(logrus.Fields{
				"seq":   p.Seq,
				"error": err,
			}).Error("Failed to write packet to sink")
			continue
		}
		f.written.Add(1)
		log.WithFields(logrus.Fields{
			"seq":    p.Seq,
			"values": len(p.Samples),
		}).Info("Packet written to sink")
	}
}
