package authcore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// auditDeliveryTimeout bounds a single sink call so a stuck sink cannot
// hold Close forever.
const auditDeliveryTimeout = 2 * time.Second

// auditQueue hands events to the sink on one goroutine. Enqueue never
// blocks an operation: a full queue drops the event and counts it.
type auditQueue struct {
	sink    AuditSink
	timeout time.Duration
	events  chan AuditEvent
	stop    chan struct{}
	stopped chan struct{}
	dropped atomic.Uint64
	closing atomic.Bool
	once    sync.Once
}

func newAuditQueue(cfg AuditConfig, sink AuditSink) *auditQueue {
	if !cfg.Enabled {
		return nil
	}
	return startAuditQueue(sink, cfg.BufferSize, auditDeliveryTimeout)
}

func startAuditQueue(sink AuditSink, size int, timeout time.Duration) *auditQueue {
	if sink == nil {
		sink = NoOpSink{}
	}
	if size <= 0 {
		size = 1
	}

	q := &auditQueue{
		sink:    sink,
		timeout: timeout,
		events:  make(chan AuditEvent, size),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *auditQueue) loop() {
	defer close(q.stopped)

	for {
		select {
		case ev := <-q.events:
			q.deliver(ev)
		case <-q.stop:
			for {
				select {
				case ev := <-q.events:
					q.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (q *auditQueue) deliver(ev AuditEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	q.sink.Emit(ctx, ev)
}

// Enqueue reports whether ev was accepted. Events after Close are ignored
// and not counted as drops.
func (q *auditQueue) Enqueue(ev AuditEvent) bool {
	if q == nil || q.closing.Load() {
		return false
	}
	select {
	case q.events <- ev:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Close delivers what is already queued and stops the worker.
func (q *auditQueue) Close() {
	if q == nil {
		return
	}
	q.once.Do(func() {
		q.closing.Store(true)
		close(q.stop)
		<-q.stopped
	})
}

func (q *auditQueue) Dropped() uint64 {
	if q == nil {
		return 0
	}
	return q.dropped.Load()
}
