package command

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestReader_DeliversLinesInOrder(t *testing.T) {
	r := NewReader(strings.NewReader("i\ne25\n7\n"))

	want := []string{"i", "e25", "7"}
	for _, w := range want {
		line, ok := r.ReadLine(time.Second)
		if !ok {
			t.Fatalf("ReadLine timed out waiting for %q", w)
		}
		if line != w {
			t.Errorf("ReadLine = %q, want %q", line, w)
		}
	}
}

func TestReader_TimeoutWhenNoInput(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	r := NewReader(server)

	start := time.Now()
	if _, ok := r.ReadLine(20 * time.Millisecond); ok {
		t.Fatal("ReadLine returned a line from an idle connection")
	}
	if time.Since(start) > time.Second {
		t.Error("ReadLine blocked far past its timeout")
	}
}

func TestReader_ClosedAfterDrain(t *testing.T) {
	r := NewReader(strings.NewReader("q\n"))

	// A queued line keeps the reader alive even after EOF.
	line, ok := r.ReadLine(time.Second)
	if !ok || line != "q" {
		t.Fatalf("ReadLine = (%q, %v), want (q, true)", line, ok)
	}

	deadline := time.Now().Add(time.Second)
	for !r.Closed() {
		if time.Now().After(deadline) {
			t.Fatal("reader never reported closed after EOF and drain")
		}
		time.Sleep(time.Millisecond)
	}

	if _, ok := r.ReadLine(10 * time.Millisecond); ok {
		t.Error("ReadLine returned a line after close")
	}
}

// A client that keeps sending after the session stops consuming must
// not pin the reading goroutine on the full line queue forever.
func TestReader_CloseReleasesBlockedGoroutine(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	r := NewReader(server)

	go func() {
		for i := 0; i < 200; i++ {
			if _, err := client.Write([]byte("i\n")); err != nil {
				return
			}
		}
	}()

	// Let the queue fill with nobody consuming.
	time.Sleep(20 * time.Millisecond)
	r.Close()
	r.Close() // second call is a no-op

	// The goroutine ends; queued lines drain, then the reader reports
	// closed.
	deadline := time.Now().Add(2 * time.Second)
	for !r.Closed() {
		if time.Now().After(deadline) {
			t.Fatal("reader goroutine never released after Close")
		}
		r.ReadLine(10 * time.Millisecond)
	}
}

func TestReader_ConnectionDrop(t *testing.T) {
	client, server := net.Pipe()
	r := NewReader(server)

	client.Write([]byte("i\n"))
	if line, ok := r.ReadLine(time.Second); !ok || line != "i" {
		t.Fatalf("ReadLine = (%q, %v), want (i, true)", line, ok)
	}

	client.Close()
	server.Close()

	deadline := time.Now().Add(2 * time.Second)
	for !r.Closed() {
		if time.Now().After(deadline) {
			t.Fatal("reader never noticed the dropped connection")
		}
		time.Sleep(time.Millisecond)
	}
}
