package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Sink consumes emitted sample events.
// Params: context and one event payload.
// Returns: error if sink cannot process event.
type Sink interface {
	Consume(ctx context.Context, event Event) error
}

// LogSink writes event payloads into debug logs.
// Params: logger used for output.
// Returns: debug sink instance.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a debug sink.
// Params: logger instance.
// Returns: event sink implementation.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Consume logs one event as compact JSON.
// Params: ctx is used for level check only; event payload to log.
// Returns: marshal error when payload cannot be encoded.
func (s *LogSink) Consume(ctx context.Context, event Event) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.logger.Enabled(ctx, slog.LevelDebug) {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	s.logger.Debug(
		"sample event",
		slog.String("id", event.ID),
		slog.String("sensor", event.Sensor),
		slog.String("payload", string(payload)),
	)

	return nil
}

// MultiSink dispatches one event to multiple sink implementations.
// Params: sink list.
// Returns: composite sink.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink builds composite sink from sink list.
// Params: sinks target list.
// Returns: multi sink implementation.
func NewMultiSink(sinks ...Sink) *MultiSink {
	out := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		out = append(out, sink)
	}
	return &MultiSink{sinks: out}
}

// Consume forwards event to each child sink.
// Params: ctx consume context; event payload.
// Returns: first error from downstream sinks, if any.
func (s *MultiSink) Consume(ctx context.Context, event Event) error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Consume(ctx, event); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Len returns number of child sinks.
func (s *MultiSink) Len() int {
	return len(s.sinks)
}
