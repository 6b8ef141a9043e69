// ABOUTME: Minimal Server-Sent Events reader for the gateway's /api/send stream
// ABOUTME: Joins multi-line data fields and hands each complete event to a callback

package gateway

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// maxEventSize bounds a single SSE line. Full replies arrive in one done event.
const maxEventSize = 4 * 1024 * 1024

// readSSE parses body as an SSE stream and calls fn for every complete event.
// It stops at end of input, on ctx cancellation, or when fn returns an error.
func readSSE(ctx context.Context, body io.Reader, fn func(eventType, data string) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var eventType string
	var dataLines []string

	flush := func() error {
		defer func() {
			eventType = ""
			dataLines = nil
		}()
		if eventType == "" || len(dataLines) == 0 {
			return nil
		}
		return fn(eventType, strings.Join(dataLines, "\n"))
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Text()

		// Empty line signals end of event
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}

		// Comment lines keep the connection alive
		if strings.HasPrefix(line, ":") {
			continue
		}

		if strings.HasPrefix(line, "event:") {
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}

		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			continue
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}
