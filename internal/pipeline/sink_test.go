package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

type recordingSink struct {
	id     string
	calls  *[]string
	mu     *sync.Mutex
	retErr error
}

// Consume records sink call order for assertions.
// Params: ctx/event are ignored.
// Returns: configured sink error.
func (s *recordingSink) Consume(_ context.Context, _ Event) error {
	s.mu.Lock()
	*s.calls = append(*s.calls, s.id)
	s.mu.Unlock()
	return s.retErr
}

type fakePublisher struct {
	subject string
	data    []byte
	err     error
}

// Publish stores the last message.
func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.subject = subject
	p.data = append([]byte(nil), data...)
	return p.err
}

// TestMultiSink_ConsumeSequential verifies all sinks are called and first error is returned.
// Params: testing.T for assertions.
// Returns: none.
func TestMultiSink_ConsumeSequential(t *testing.T) {
	calls := make([]string, 0, 3)
	var mu sync.Mutex

	sink := NewMultiSink(
		&recordingSink{id: "s1", calls: &calls, mu: &mu},
		nil,
		&recordingSink{id: "s2", calls: &calls, mu: &mu, retErr: errors.New("sink s2 failed")},
		&recordingSink{id: "s3", calls: &calls, mu: &mu},
	)
	if sink.Len() != 3 {
		t.Fatalf("expected nil sinks to be skipped, got %d", sink.Len())
	}

	err := sink.Consume(context.Background(), Event{ID: "e1", Sensor: "sim:4"})
	if err == nil || err.Error() != "sink s2 failed" {
		t.Fatalf("unexpected consume error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 3 {
		t.Fatalf("unexpected sink call count: %d", len(calls))
	}
	if calls[0] != "s1" || calls[1] != "s2" || calls[2] != "s3" {
		t.Fatalf("unexpected sink call order: %#v", calls)
	}
}

// TestLogSink_DebugOnly verifies events are logged only at debug level.
// Params: testing.T for assertions.
// Returns: none.
func TestLogSink_DebugOnly(t *testing.T) {
	var out bytes.Buffer
	info := NewLogSink(slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelInfo})))
	if err := info.Consume(context.Background(), Event{ID: "e1"}); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected no output at info level, got %q", out.String())
	}

	debug := NewLogSink(slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug})))
	if err := debug.Consume(context.Background(), Event{ID: "e2", Sensor: "iio:4"}); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !strings.Contains(out.String(), "sample event") || !strings.Contains(out.String(), "id=e2") {
		t.Fatalf("unexpected debug output: %q", out.String())
	}
}

// TestNATSSink_PublishesJSON verifies subject and payload of published events.
// Params: testing.T for assertions.
// Returns: none.
func TestNATSSink_PublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	closed := 0
	sink := newNATSSinkWithPublisher(pub, " meteo.samples ", func() { closed++ })

	temperature := 22.5
	event := Event{ID: "abc", Host: "h", Sensor: "iio:4", OK: true, Temperature: &temperature}
	if err := sink.Consume(context.Background(), event); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if pub.subject != "meteo.samples" {
		t.Fatalf("unexpected subject: %q", pub.subject)
	}

	var decoded Event
	if err := json.Unmarshal(pub.data, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.ID != "abc" || decoded.Temperature == nil || *decoded.Temperature != 22.5 || decoded.Humidity != nil {
		t.Fatalf("unexpected payload: %s", pub.data)
	}

	sink.Close()
	sink.Close()
	if closed != 1 {
		t.Fatalf("expected single close, got %d", closed)
	}
}

// TestNATSSink_PublishError verifies publish errors are wrapped.
// Params: testing.T for assertions.
// Returns: none.
func TestNATSSink_PublishError(t *testing.T) {
	cause := errors.New("connection closed")
	sink := newNATSSinkWithPublisher(&fakePublisher{err: cause}, "s", nil)

	err := sink.Consume(context.Background(), Event{ID: "x"})
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped publish error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sink.Consume(ctx, Event{ID: "y"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled context error, got %v", err)
	}
}
