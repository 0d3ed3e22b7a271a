package framer

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

var objectBoundary = []byte("}{")

// BraceSplitter frames back-to-back JSON objects by cutting on the literal "}{"
// boundary and restoring the braces lost in the cut.
//
// It is kept for compatibility with servers that write several objects into
// one frame. It mis-frames any payload whose strings contain "}{" and any
// object split across two chunks; StreamSplitter has neither problem.
type BraceSplitter struct{}

func (BraceSplitter) Split(chunk []byte) [][]byte {
	parts := bytes.Split(chunk, objectBoundary)
	out := make([][]byte, 0, len(parts))
	last := len(parts) - 1
	for i, part := range parts {
		candidate := make([]byte, 0, len(part)+2)
		if i > 0 {
			candidate = append(candidate, '{')
		}
		candidate = append(candidate, part...)
		if i < last {
			candidate = append(candidate, '}')
		}
		if len(bytes.TrimSpace(candidate)) == 0 {
			continue
		}
		out = append(out, candidate)
	}
	return out
}

// MaxPending bounds the bytes a StreamSplitter holds back for an incomplete
// value. It matches the transport's per-frame read limit.
const MaxPending = 64 * 1024

// StreamSplitter frames a stream of JSON values by decoding them incrementally.
// Values may be separated by whitespace, newlines or nothing at all, and a value
// cut off at the end of a chunk is completed by the following chunk.
type StreamSplitter struct {
	pending []byte
}

// NewStreamSplitter creates an empty StreamSplitter.
func NewStreamSplitter() *StreamSplitter {
	return &StreamSplitter{}
}

func (s *StreamSplitter) Split(chunk []byte) [][]byte {
	buf := append(s.pending, chunk...)
	s.pending = nil

	var out [][]byte
	for {
		values, rest, err := decodeValues(buf)
		out = append(out, values...)

		switch {
		case errors.Is(err, io.EOF):
			return out
		case errors.Is(err, io.ErrUnexpectedEOF):
			if len(rest) > MaxPending {
				// Surface the oversized value as a candidate so it is dropped.
				return appendTrimmed(out, rest)
			}
			s.pending = append([]byte(nil), rest...)
			return out
		default:
			// Resume at the next '{' after the bad value's first byte. The
			// skipped bytes become one candidate that fails to decode.
			rest = bytes.TrimSpace(rest)
			next := bytes.IndexByte(rest[1:], '{')
			if next < 0 {
				return appendTrimmed(out, rest)
			}
			out = appendTrimmed(out, rest[:next+1])
			buf = rest[next+1:]
		}
	}
}

// decodeValues decodes complete values from buf until the first error and
// returns the undecoded remainder.
func decodeValues(buf []byte) ([][]byte, []byte, error) {
	dec := json.NewDecoder(bytes.NewReader(buf))
	var out [][]byte
	var consumed int64
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return out, buf[consumed:], err
		}
		out = append(out, raw)
		consumed = dec.InputOffset()
	}
}

func appendTrimmed(out [][]byte, b []byte) [][]byte {
	if trimmed := bytes.TrimSpace(b); len(trimmed) > 0 {
		out = append(out, append([]byte(nil), trimmed...))
	}
	return out
}

// Pending reports how many bytes are buffered waiting for the rest of a value.
func (s *StreamSplitter) Pending() int {
	return len(s.pending)
}
