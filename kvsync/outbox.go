package kvsync

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// pendingWrite is the newest unconfirmed remote write for a key
type pendingWrite struct {
	value    json.RawMessage
	seq      uint64
	attempts int
}

// Outbox holds remote writes until they reach the remote table. Writes
// coalesce per key: only the newest pending value is retained, which also
// keeps per-key ordering — an older value can never overtake a newer one
// from the same context.
type Outbox struct {
	remote RemoteStore
	logger *log.Logger

	mu      sync.Mutex
	pending map[string]*pendingWrite
	seq     uint64

	interval time.Duration
	kick     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewOutbox creates an outbox flushing at the given interval
func NewOutbox(remote RemoteStore, interval time.Duration, logger *log.Logger) *Outbox {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Outbox{
		remote:   remote,
		logger:   logger,
		pending:  make(map[string]*pendingWrite),
		interval: interval,
		kick:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go o.run()
	return o
}

// Enqueue records value as the newest pending write for key and triggers
// an immediate flush attempt.
func (o *Outbox) Enqueue(key string, value json.RawMessage) {
	o.mu.Lock()
	o.seq++
	o.pending[key] = &pendingWrite{value: value, seq: o.seq}
	o.mu.Unlock()

	select {
	case o.kick <- struct{}{}:
	default:
	}
}

// Pending returns the number of keys with unconfirmed remote writes
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Flush attempts to push all pending writes now
func (o *Outbox) Flush() {
	o.flush(o.ctx)
}

// Close makes a final flush attempt and stops the retry loop. Writes that
// still cannot reach the remote table are lost with the context, which is
// the crash-loss window the outbox narrows but cannot remove.
func (o *Outbox) Close() {
	flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	o.flush(flushCtx)
	cancel()

	o.cancel()
	<-o.done
}

func (o *Outbox) run() {
	defer close(o.done)
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-o.kick:
			o.flush(o.ctx)
		case <-ticker.C:
			o.flush(o.ctx)
		}
	}
}

func (o *Outbox) flush(ctx context.Context) {
	o.mu.Lock()
	batch := make(map[string]*pendingWrite, len(o.pending))
	for key, write := range o.pending {
		batch[key] = write
	}
	o.mu.Unlock()

	for key, write := range batch {
		if ctx.Err() != nil {
			return
		}
		if err := o.remote.Set(ctx, key, write.value); err != nil {
			o.mu.Lock()
			if current, ok := o.pending[key]; ok && current.seq == write.seq {
				current.attempts++
			}
			o.mu.Unlock()
			o.logger.Printf("kvsync: remote write for %q failed, will retry: %v", key, err)
			continue
		}

		// Drop only if no newer write arrived while this one was in
		// flight.
		o.mu.Lock()
		if current, ok := o.pending[key]; ok && current.seq == write.seq {
			delete(o.pending, key)
		}
		o.mu.Unlock()
	}
}
