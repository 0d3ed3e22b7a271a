package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReadLines_DeliversUntilEOF(t *testing.T) {
	lines := readLines(context.Background(), strings.NewReader("3\nq\n"))

	var got []string
	for line := range lines {
		got = append(got, line)
	}
	assert.Equal(t, []string{"3", "q"}, got)
}

func TestReadLines_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	lines := readLines(ctx, strings.NewReader("1\n2\n3\n"))

	assert.Equal(t, "1", <-lines)
	cancel()

	// Nobody reads the next line, so the reader must notice the cancel and
	// close the channel instead of blocking on the send.
	time.Sleep(50 * time.Millisecond)
	select {
	case line, ok := <-lines:
		assert.False(t, ok, "got %q after cancel", line)
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not exit after cancel")
	}
}
