// Package stream implements the pool of transmit workers that push
// captured images to the client. Each slot owns a private buffer; the
// capture path checks a slot out, fills it, and wakes its worker, which
// writes one complete image record under the connection lock and checks
// the slot back in. Capture therefore never waits on the network unless
// every slot is busy, which is deliberate backpressure.
package stream

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/cineto/filmrig/internal/debug"
	"github.com/cineto/filmrig/internal/metrics"
	"github.com/cineto/filmrig/internal/wire"
)

// Slot is one reusable transmit unit: a buffer the capture path fills,
// plus the role flag and exposure value for the record header.
type Slot struct {
	id   int
	name string

	// Buf holds the encoded image between Assign and transmission.
	Buf bytes.Buffer

	flag       byte
	exposureUs int32

	wake chan struct{}
	done chan struct{} // closed when the worker goroutine returns
}

// Name returns the worker name, for logs.
func (s *Slot) Name() string { return s.name }

// Pool is the fixed set of transmit slots and their workers.
type Pool struct {
	wr *wire.Writer

	mu   sync.Mutex
	idle []*Slot

	slots []*Slot
	quit  chan struct{}

	shutdownOnce sync.Once

	// backoff between checkout retries when no slot is idle.
	backoff time.Duration

	// onWriteError, when set, is called after a worker fails to write.
	// The slot is already back in the pool by then.
	onWriteError func(error)
}

// NewPool creates size slots and starts one transmit worker per slot.
func NewPool(wr *wire.Writer, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{
		wr:      wr,
		quit:    make(chan struct{}),
		backoff: time.Second,
	}
	for i := 0; i < size; i++ {
		s := &Slot{
			id:   i,
			name: fmt.Sprintf("streamer-%02d", i+1),
			wake: make(chan struct{}, 1),
			done: make(chan struct{}),
		}
		p.slots = append(p.slots, s)
		p.idle = append(p.idle, s)
		go p.worker(s)
	}
	return p
}

// SetErrorHandler installs a callback for transmit write failures. The
// callback runs on the worker goroutine and must not join the pool.
func (p *Pool) SetErrorHandler(fn func(error)) {
	p.onWriteError = fn
}

// SetBackoff overrides the checkout retry interval (tests use a short one).
func (p *Pool) SetBackoff(d time.Duration) {
	p.backoff = d
}

// IdleCount returns how many slots are currently idle.
func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Checkout pops an idle slot, retrying with backoff while every slot is
// busy. Capture stalls here rather than risking a second writer on a
// busy slot. After Shutdown it returns nil: the workers are gone, so the
// caller drops the frame instead of waiting on a slot that can never
// come back.
func (p *Pool) Checkout() *Slot {
	for {
		select {
		case <-p.quit:
			return nil
		default:
		}

		p.mu.Lock()
		if n := len(p.idle); n > 0 {
			s := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.mu.Unlock()
			debug.Verbose("Reserved %s", s.name)
			return s
		}
		p.mu.Unlock()

		debug.Info("No idle streamer available. Capture waiting.")
		metrics.PoolWaits.Inc()
		select {
		case <-time.After(p.backoff):
		case <-p.quit:
			return nil
		}
	}
}

// Assign sets the record header fields on a checked-out slot and wakes
// its worker. The caller must have filled s.Buf first.
func (p *Pool) Assign(s *Slot, flag byte, exposureUs int32) {
	s.flag = flag
	s.exposureUs = exposureUs
	s.wake <- struct{}{}
}

// Release returns a checked-out slot without transmitting, for capture
// failures. The buffer is cleared first.
func (p *Pool) Release(s *Slot) {
	s.Buf.Reset()
	p.checkin(s)
}

func (p *Pool) checkin(s *Slot) {
	p.mu.Lock()
	p.idle = append(p.idle, s)
	p.mu.Unlock()
	debug.Verbose("%s released", s.name)
}

// worker transmits whatever its slot is assigned until shutdown. The
// slot returns to the pool after every transmission, failed or not.
func (p *Pool) worker(s *Slot) {
	defer close(s.done)

	for {
		select {
		case <-s.wake:
			err := p.wr.SendImage(s.flag, s.exposureUs, s.Buf.Bytes())
			if err != nil {
				debug.Error(err)
			} else {
				metrics.FramesSent.WithLabelValues(string(s.flag)).Inc()
			}
			s.Buf.Reset()
			p.checkin(s)
			if err != nil && p.onWriteError != nil {
				p.onWriteError(err)
			}
		case <-p.quit:
			return
		}
	}
}

// Shutdown tells every worker to terminate and joins each with a
// bounded timeout, so a worker stuck on a slow write never blocks
// shutdown; it is abandoned and logged instead. Safe to call twice.
func (p *Pool) Shutdown(joinTimeout time.Duration) {
	p.shutdownOnce.Do(func() {
		close(p.quit)
		for _, s := range p.slots {
			select {
			case <-s.done:
				debug.Info("%s terminated", s.name)
			case <-time.After(joinTimeout):
				debug.Info("%s did not terminate in time, abandoning", s.name)
			}
		}
	})
}
