package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer guards a buffer shared with the spinner goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinnerDraws(t *testing.T) {
	var w syncBuffer
	s := newSpinner(context.Background(), &w, "Clustering...")
	s.Start()
	time.Sleep(3 * spinnerInterval)
	s.Stop()

	if !strings.Contains(w.String(), "Clustering...") {
		t.Error("spinner never drew its message")
	}
	if s.Cancelled() {
		t.Error("Stop must not count as cancellation")
	}
}

func TestSpinnerWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newSpinner(ctx, &syncBuffer{}, "Testing with context...")
	s.Start()
	cancel()
	s.Stop()

	if !s.Cancelled() {
		t.Error("spinner should be cancelled after context cancellation")
	}
}

func TestSpinnerStopIsIdempotent(t *testing.T) {
	s := newSpinner(context.Background(), &syncBuffer{}, "Testing idempotent stop...")
	s.Start()
	s.Stop()
	s.Stop()
	s.Stop()
}

func TestSpinnerStopWithoutStart(t *testing.T) {
	s := newSpinner(context.Background(), &syncBuffer{}, "never started")
	s.Stop()
}

func TestSpinnerStopMessages(t *testing.T) {
	var w syncBuffer
	s := newSpinner(context.Background(), &w, "Working...")
	s.Start()
	s.StopWithSuccess("Done")

	s = newSpinner(context.Background(), &w, "Working...")
	s.Start()
	s.StopWithError("Failed")

	out := w.String()
	if !strings.Contains(out, "Done") || !strings.Contains(out, "Failed") {
		t.Errorf("missing stop messages in %q", out)
	}
}
