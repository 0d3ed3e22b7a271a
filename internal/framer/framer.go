package framer

import (
	"context"
	"ctchen222/Four-In-A-Row/pkg/proto"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("framer")

// Splitter cuts one raw transport chunk into candidate message strings.
// Implementations may keep state between chunks.
type Splitter interface {
	Split(chunk []byte) [][]byte
}

// Framer turns raw chunks into decoded messages, discarding candidates that
// fail to decode without affecting the rest of the chunk.
type Framer struct {
	splitter Splitter
	dropped  metric.Int64Counter
}

// New creates a Framer backed by the given Splitter.
func New(s Splitter) *Framer {
	dropped, err := meter.Int64Counter("framer.candidates.dropped",
		metric.WithDescription("Candidate messages discarded because they failed to decode"))
	if err != nil {
		slog.Warn("failed to create framer.candidates.dropped counter", "error", err)
	}
	return &Framer{splitter: s, dropped: dropped}
}

// Frame returns the messages contained in chunk, in the order they appear.
func (f *Framer) Frame(ctx context.Context, chunk []byte) []proto.Message {
	candidates := f.splitter.Split(chunk)
	messages := make([]proto.Message, 0, len(candidates))
	for i, candidate := range candidates {
		msg, err := proto.Decode(candidate)
		if err != nil {
			slog.WarnContext(ctx, "dropping undecodable message", "candidate.index", i, "candidate", string(candidate), "error", err)
			if f.dropped != nil {
				f.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("framer.reason", "decode")))
			}
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}
