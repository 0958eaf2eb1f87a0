package command

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cineto/filmrig/internal/debug"
)

// Reader continuously reads control lines from the client connection on
// its own goroutine, decoupling slow or partial input from the capture
// pipeline. Lines queue in order; ReadLine pops with a timeout so the
// session loop can recheck its exit flag instead of blocking forever.
type Reader struct {
	lines chan string
	done  atomic.Bool

	quit     chan struct{}
	quitOnce sync.Once
}

// NewReader starts the background reading goroutine for src.
func NewReader(src io.Reader) *Reader {
	r := &Reader{
		lines: make(chan string, 64),
		quit:  make(chan struct{}),
	}
	go r.loop(src)
	return r
}

func (r *Reader) loop(src io.Reader) {
	debug.Info("Command reading goroutine running")

	sc := bufio.NewScanner(src)
scan:
	for sc.Scan() {
		select {
		case r.lines <- sc.Text():
		case <-r.quit:
			// Session stopped consuming; drop the line and end.
			break scan
		}
	}
	if err := sc.Err(); err != nil {
		debug.Error(err)
	}

	debug.Info("End of command reading goroutine")
	r.done.Store(true)
	close(r.lines)
}

// Close releases the reading goroutine. A reader blocked handing over a
// line to a full queue ends immediately; queued lines stay readable
// until drained. Safe to call twice.
func (r *Reader) Close() {
	r.quitOnce.Do(func() {
		close(r.quit)
	})
}

// ReadLine pops the next control line, waiting up to timeout.
// ok is false on expiry and after the reader has closed.
func (r *Reader) ReadLine(timeout time.Duration) (line string, ok bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case line, open := <-r.lines:
		if !open {
			return "", false
		}
		return line, true
	case <-t.C:
		return "", false
	}
}

// Closed reports whether the control connection has failed or ended and
// every queued line has been consumed.
func (r *Reader) Closed() bool {
	return r.done.Load() && len(r.lines) == 0
}
