package stream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/cineto/filmrig/internal/wire"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

// failWriter fails every write after the first n bytes worth of calls.
type failWriter struct {
	mu    sync.Mutex
	calls int
	limit int
}

func (w *failWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.calls > w.limit {
		return 0, errors.New("connection reset")
	}
	return len(p), nil
}

func waitIdle(t *testing.T, p *Pool, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for p.IdleCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("pool never returned to %d idle slots (have %d)", want, p.IdleCount())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPool_TransmitsAssignedFrame(t *testing.T) {
	var buf syncBuffer
	p := NewPool(wire.NewWriter(&buf), 2)
	defer p.Shutdown(time.Second)

	s := p.Checkout()
	s.Buf.Write([]byte{0xFF, 0xD8, 0xFF, 0xD9})
	p.Assign(s, 's', 8000)

	waitIdle(t, p, 2)

	data := buf.Bytes()
	if len(data) != 13 {
		t.Fatalf("wrote %d bytes, want 13", len(data))
	}
	if data[0] != 's' {
		t.Errorf("flag = %c, want s", data[0])
	}
	if exp := int32(binary.LittleEndian.Uint32(data[1:5])); exp != 8000 {
		t.Errorf("exposure = %d, want 8000", exp)
	}
}

func TestPool_CheckoutIsExclusive(t *testing.T) {
	p := NewPool(wire.NewWriter(io.Discard), 3)
	defer p.Shutdown(time.Second)

	a := p.Checkout()
	b := p.Checkout()
	c := p.Checkout()
	if a == b || a == c || b == c {
		t.Fatalf("Checkout handed out the same slot twice")
	}
	if p.IdleCount() != 0 {
		t.Fatalf("idle = %d after checking out all slots", p.IdleCount())
	}
	p.Release(a)
	p.Release(b)
	p.Release(c)
	waitIdle(t, p, 3)
}

// Hammer the pool from many goroutines and check no slot is ever held
// by two captures at once. Each goroutine stamps the slot buffer with
// its own byte and verifies it is still intact before assigning.
func TestPool_ConcurrentCheckoutStress(t *testing.T) {
	var buf syncBuffer
	p := NewPool(wire.NewWriter(&buf), 4)
	p.SetBackoff(time.Millisecond)
	defer p.Shutdown(time.Second)

	const producers = 16
	const perProducer = 25

	var wg sync.WaitGroup
	for id := 0; id < producers; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				s := p.Checkout()
				if s.Buf.Len() != 0 {
					t.Errorf("checked out a dirty slot (%d bytes)", s.Buf.Len())
				}
				s.Buf.Write(bytes.Repeat([]byte{byte(id)}, 32))
				payload := s.Buf.Bytes()
				for _, b := range payload {
					if b != byte(id) {
						t.Errorf("slot buffer clobbered while held")
						break
					}
				}
				p.Assign(s, 'p', int32(id))
			}
		}(id)
	}
	wg.Wait()
	waitIdle(t, p, 4)

	// Every transmitted frame must carry a uniform payload.
	data := buf.Bytes()
	frames := 0
	for off := 0; off < len(data); {
		exp := int32(binary.LittleEndian.Uint32(data[off+1 : off+5]))
		size := int(binary.LittleEndian.Uint32(data[off+5 : off+9]))
		for _, b := range data[off+9 : off+9+size] {
			if b != byte(exp) {
				t.Fatalf("frame %d: payload mixed between producers", frames)
			}
		}
		off += 9 + size
		frames++
	}
	if frames != producers*perProducer {
		t.Errorf("transmitted %d frames, want %d", frames, producers*perProducer)
	}
}

func TestPool_ReleaseClearsBuffer(t *testing.T) {
	p := NewPool(wire.NewWriter(io.Discard), 1)
	defer p.Shutdown(time.Second)

	s := p.Checkout()
	s.Buf.WriteString("partial capture")
	p.Release(s)

	s = p.Checkout()
	if s.Buf.Len() != 0 {
		t.Errorf("released slot kept %d stale bytes", s.Buf.Len())
	}
	p.Release(s)
}

func TestPool_WriteErrorReturnsSlotAndReports(t *testing.T) {
	p := NewPool(wire.NewWriter(&failWriter{limit: 0}), 1)
	defer p.Shutdown(time.Second)

	errc := make(chan error, 1)
	p.SetErrorHandler(func(err error) { errc <- err })

	s := p.Checkout()
	s.Buf.WriteString("doomed")
	p.Assign(s, 's', 1000)

	select {
	case err := <-errc:
		if err == nil {
			t.Fatal("error handler called with nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error handler never called")
	}
	waitIdle(t, p, 1)
}

// A capture stuck waiting for a slot must come back empty-handed once
// the pool shuts down, even when the only slot was never returned; the
// session would otherwise hang between an operator interrupt and exit.
func TestPool_CheckoutUnblocksOnShutdown(t *testing.T) {
	p := NewPool(wire.NewWriter(io.Discard), 1)
	p.SetBackoff(10 * time.Millisecond)

	held := p.Checkout()
	if held == nil {
		t.Fatal("Checkout returned nil from a live pool")
	}
	p.Shutdown(10 * time.Millisecond)

	got := make(chan *Slot, 1)
	go func() { got <- p.Checkout() }()

	select {
	case s := <-got:
		if s != nil {
			t.Error("Checkout handed out a slot from a shut-down pool")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Checkout still blocked after pool shutdown")
	}
}

func TestPool_CheckoutNilAfterShutdownWithIdleSlots(t *testing.T) {
	p := NewPool(wire.NewWriter(io.Discard), 2)
	p.Shutdown(time.Second)

	// Idle slots remain, but their workers are gone; handing one out
	// would strand the frame in a buffer nobody transmits.
	if s := p.Checkout(); s != nil {
		t.Error("Checkout handed out a slot with no worker behind it")
	}
}

func TestPool_ShutdownTwice(t *testing.T) {
	p := NewPool(wire.NewWriter(io.Discard), 3)
	p.Shutdown(time.Second)
	p.Shutdown(time.Second) // must be a no-op, not a panic
}
