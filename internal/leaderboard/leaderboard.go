package leaderboard

import (
	"context"
	"ctchen222/Four-In-A-Row/internal/validator"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("leaderboard")

const maxBody = 1 << 20

// Entry is one player's win count.
type Entry struct {
	Username string `json:"username" validate:"required"`
	Wins     int    `json:"wins" validate:"gte=0"`
}

// Fetch reads GET {baseURL}/leaderboard. Entries that fail validation are
// skipped; the rest are returned sorted by wins, highest first.
func Fetch(ctx context.Context, client *http.Client, baseURL string) ([]Entry, error) {
	endpoint := strings.TrimSuffix(baseURL, "/") + "/leaderboard"
	ctx, span := tracer.Start(ctx, "leaderboard.Fetch", trace.WithAttributes(
		attribute.String("http.url", endpoint),
	))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to build request")
		return nil, fmt.Errorf("build leaderboard request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Request failed")
		return nil, fmt.Errorf("fetch leaderboard: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, "Unexpected status")
		return nil, fmt.Errorf("fetch leaderboard: unexpected status %s", resp.Status)
	}

	var raw []Entry
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&raw); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decode body")
		return nil, fmt.Errorf("decode leaderboard: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for i, e := range raw {
		if err := validator.GetValidator().Struct(e); err != nil {
			slog.WarnContext(ctx, "Skipping invalid leaderboard entry", "entry.index", i, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Wins > entries[j].Wins })

	span.SetAttributes(attribute.Int("leaderboard.entries", len(entries)))
	return entries, nil
}
