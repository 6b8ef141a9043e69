// ABOUTME: Gateway session: one thread id, one POST /api/send per prompt
// ABOUTME: Maps SSE events onto model responses (text is a delta, done carries the full reply)

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/2389/coven-chat/internal/model"
)

// sendRequest is the JSON body sent to POST /api/send.
type sendRequest struct {
	ThreadID string `json:"thread_id"`
	Sender   string `json:"sender"`
	Content  string `json:"content"`
	AgentID  string `json:"agent_id,omitempty"`
}

// eventPayload covers the fields of the SSE events the session reads.
type eventPayload struct {
	Text         string `json:"text"`
	FullResponse string `json:"full_response"`
	Error        string `json:"error"`
	Reason       string `json:"reason"`
}

// errStreamTruncated is reported when the stream ends without done or error.
var errStreamTruncated = errors.New("response stream ended before completion")

type session struct {
	threadID       string
	conversationID string
	provider       *Provider

	mu     sync.Mutex
	closed bool
}

func (s *session) ID() string             { return s.threadID }
func (s *session) ConversationID() string { return s.conversationID }

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// StreamResponse posts prompt to the gateway and streams the agent's reply.
func (s *session) StreamResponse(ctx context.Context, prompt string) (<-chan *model.Response, error) {
	if s.isClosed() {
		return nil, model.ErrSessionClosed
	}
	p := s.provider

	bodyBytes, err := json.Marshal(sendRequest{
		ThreadID: s.threadID,
		Sender:   p.sender,
		Content:  prompt,
		AgentID:  p.agentID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/send", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, responseError(resp)
	}

	out := make(chan *model.Response)
	go s.consume(ctx, resp.Body, out)
	return out, nil
}

// responseError extracts {"error": "..."} from a failed response when present.
func responseError(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, errResp.Error)
	}
	return fmt.Errorf("gateway returned status %d", resp.StatusCode)
}

func (s *session) consume(ctx context.Context, body io.ReadCloser, out chan<- *model.Response) {
	defer close(out)
	defer body.Close()

	logger := s.provider.logger.With("thread_id", s.threadID)

	send := func(r *model.Response) bool {
		select {
		case out <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}

	finished := false
	err := readSSE(ctx, body, func(eventType, data string) error {
		var payload eventPayload
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			logger.Debug("skipping malformed event", "event", eventType, "error", err)
			return nil
		}

		var r *model.Response
		switch eventType {
		case "text":
			if payload.Text == "" {
				return nil
			}
			r = &model.Response{Event: model.EventDelta, Text: payload.Text}
		case "done":
			r = &model.Response{Event: model.EventDone, Text: payload.FullResponse}
		case "error":
			msg := payload.Error
			if msg == "" {
				msg = "agent reported an error"
			}
			r = &model.Response{Event: model.EventError, Error: msg}
		case "cancelled":
			msg := "request cancelled"
			if payload.Reason != "" {
				msg += ": " + payload.Reason
			}
			r = &model.Response{Event: model.EventError, Error: msg}
		default:
			// thinking, tool and usage events do not change the reply
			return nil
		}

		if !send(r) {
			return ctx.Err()
		}
		if r.Done() {
			finished = true
			return io.EOF
		}
		return nil
	})

	if finished || ctx.Err() != nil {
		return
	}
	if err == nil {
		err = errStreamTruncated
	}
	logger.Warn("response stream failed", "error", err)
	send(&model.Response{Event: model.EventError, Error: err.Error()})
}
