package main

import (
	"bufio"
	"context"
	"ctchen222/Four-In-A-Row/internal/client"
	"ctchen222/Four-In-A-Row/internal/config"
	"ctchen222/Four-In-A-Row/internal/events"
	"ctchen222/Four-In-A-Row/internal/framer"
	"ctchen222/Four-In-A-Row/internal/leaderboard"
	"ctchen222/Four-In-A-Row/internal/logger"
	"ctchen222/Four-In-A-Row/internal/render"
	"ctchen222/Four-In-A-Row/internal/telemetry"
	"ctchen222/Four-In-A-Row/internal/transport"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
)

const help = `Commands:
  0-6            drop a disc into that column
  c <username>   connect as a new player
  s              show status and board
  l              show the leaderboard
  q              quit`

func main() {
	cfg := config.Load()

	cmd := &cli.Command{
		Name:  "four-in-a-row",
		Usage: "Play four-in-a-row against other players from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "backend", Value: cfg.BackendURL, Usage: "backend base URL"},
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "connect immediately as this player", Sources: cli.EnvVars("PLAYER_USERNAME")},
			&cli.IntFlag{Name: "reconnect-attempts", Value: cfg.ReconnectAttempts, Usage: "reconnects before giving up"},
			&cli.DurationFlag{Name: "reconnect-interval", Value: cfg.ReconnectInterval, Usage: "delay between reconnects"},
			&cli.DurationFlag{Name: "heartbeat-interval", Value: cfg.HeartbeatInterval, Usage: "interval between keepalive pings"},
			&cli.DurationFlag{Name: "pong-wait", Value: cfg.PongWait, Usage: "close the connection after this long without traffic"},
			&cli.DurationFlag{Name: "dial-timeout", Value: cfg.DialTimeout, Usage: "WebSocket handshake timeout"},
			&cli.StringFlag{Name: "framing", Value: cfg.Framing, Usage: "inbound framing: brace or stream"},
			&cli.StringFlag{Name: "log-level", Value: cfg.LogLevel, Usage: "debug, info, warn or error"},
			&cli.BoolFlag{Name: "otel", Value: cfg.OtelEnabled, Usage: "export traces, metrics and logs over OTLP"},
			&cli.StringFlag{Name: "otel-endpoint", Value: cfg.OtelEndpoint, Usage: "OTLP gRPC collector address"},
			&cli.BoolFlag{Name: "no-leaderboard", Usage: "skip the leaderboard on startup"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("four-in-a-row: %v", err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	logger.Init(cmd.String("log-level"))

	if cmd.Bool("otel") {
		shutdown, err := telemetry.InitOtel(ctx, cmd.String("otel-endpoint"))
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				slog.Error("Error shutting down telemetry", "error", err)
			}
		}()
	}

	settings := &config.Config{
		BackendURL:        cmd.String("backend"),
		ReconnectAttempts: int(cmd.Int("reconnect-attempts")),
		ReconnectInterval: cmd.Duration("reconnect-interval"),
		HeartbeatInterval: cmd.Duration("heartbeat-interval"),
		PongWait:          cmd.Duration("pong-wait"),
		DialTimeout:       cmd.Duration("dial-timeout"),
		Framing:           strings.ToLower(cmd.String("framing")),
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	backend := settings.BackendURL
	endpoint, err := config.WebSocketURL(backend)
	if err != nil {
		return err
	}

	var splitter framer.Splitter = framer.BraceSplitter{}
	if settings.Framing == config.FramingStream {
		splitter = framer.NewStreamSplitter()
	}

	out := os.Stdout
	httpClient := &http.Client{Timeout: 5 * time.Second}
	if !cmd.Bool("no-leaderboard") {
		showLeaderboard(ctx, out, httpClient, backend)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(client.Config{
		Endpoint:          endpoint,
		MaxAttempts:       settings.ReconnectAttempts,
		ReconnectDelay:    settings.ReconnectInterval,
		HeartbeatInterval: settings.HeartbeatInterval,
	},
		transport.NewWebSocketTransport(settings.DialTimeout, settings.PongWait),
		framer.New(splitter),
		func(ev events.Event) {
			slog.Debug("Session event", "event.name", ev.Name())
			render.Event(out, ev)
		},
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()

	fmt.Fprintln(out, help)
	if username := cmd.String("username"); username != "" {
		if err := c.Connect(ctx, username); err != nil {
			fmt.Fprintf(out, "Cannot connect: %v\n", err)
		}
	} else {
		fmt.Fprintln(out, "Enter c <username> to play.")
	}

	lines := readLines(ctx, os.Stdin)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok || !handleCommand(ctx, out, c, httpClient, backend, line) {
				break loop
			}
		}
	}

	stop()
	<-done
	slog.Info("Client exiting")
	return nil
}

// readLines delivers lines from r until EOF or until ctx is done. The channel
// is closed when the reader goroutine exits.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// handleCommand runs one input line and reports whether to keep reading.
func handleCommand(ctx context.Context, out io.Writer, c *client.Client, httpClient *http.Client, backend, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}

	if col, err := strconv.Atoi(fields[0]); err == nil {
		c.SubmitMove(col)
		return true
	}

	switch strings.ToLower(fields[0]) {
	case "q", "quit", "exit":
		return false
	case "c", "connect":
		if len(fields) < 2 {
			fmt.Fprintln(out, "Usage: c <username>")
			return true
		}
		if err := c.Connect(ctx, strings.Join(fields[1:], " ")); err != nil {
			fmt.Fprintf(out, "Cannot connect: %v\n", err)
		}
	case "s", "status":
		view, err := c.Snapshot(ctx)
		if err != nil {
			fmt.Fprintf(out, "Cannot read status: %v\n", err)
			return true
		}
		render.Board(out, view.Game.Board)
		render.Status(out, view)
	case "l", "leaderboard":
		showLeaderboard(ctx, out, httpClient, backend)
	default:
		fmt.Fprintln(out, help)
	}
	return true
}

func showLeaderboard(ctx context.Context, out io.Writer, httpClient *http.Client, backend string) {
	entries, err := leaderboard.Fetch(ctx, httpClient, backend)
	if err != nil {
		slog.WarnContext(ctx, "Leaderboard fetch failed", "error", err)
		fmt.Fprintln(out, "Leaderboard unavailable")
		return
	}
	render.Leaderboard(out, entries)
}
