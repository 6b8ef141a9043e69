// ABOUTME: Scripted model provider for tests
// ABOUTME: Streams queued scripts, injects availability and session failures, records prompts

package fake

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/coven-chat/internal/model"
)

// AvailabilityResult is one scripted answer to Availability.
type AvailabilityResult struct {
	Availability model.Availability
	Err          error
}

// Step is one scripted response. When Wait is set the stream blocks on it
// before sending Response.
type Step struct {
	Response *model.Response
	Wait     <-chan struct{}
}

// Script drives one StreamResponse call.
type Script struct {
	Steps []Step
	// Err is returned by StreamResponse itself instead of a channel.
	Err error
	// IgnoreCancel keeps delivering steps after the stream context ends,
	// imitating a backend that does not stop promptly.
	IgnoreCancel bool
}

// Snapshots scripts cumulative snapshots followed by Done.
func Snapshots(texts ...string) Script {
	steps := make([]Step, 0, len(texts)+1)
	for _, t := range texts {
		steps = append(steps, Step{Response: &model.Response{Event: model.EventSnapshot, Text: t}})
	}
	steps = append(steps, Step{Response: &model.Response{Event: model.EventDone}})
	return Script{Steps: steps}
}

// Deltas scripts appended chunks followed by Done.
func Deltas(chunks ...string) Script {
	steps := make([]Step, 0, len(chunks)+1)
	for _, c := range chunks {
		steps = append(steps, Step{Response: &model.Response{Event: model.EventDelta, Text: c}})
	}
	steps = append(steps, Step{Response: &model.Response{Event: model.EventDone}})
	return Script{Steps: steps}
}

// Failing scripts snapshots followed by an Error response.
func Failing(msg string, texts ...string) Script {
	steps := make([]Step, 0, len(texts)+1)
	for _, t := range texts {
		steps = append(steps, Step{Response: &model.Response{Event: model.EventSnapshot, Text: t}})
	}
	steps = append(steps, Step{Response: &model.Response{Event: model.EventError, Error: msg}})
	return Script{Steps: steps}
}

// Gated returns a copy of s whose step i waits on gate.
func (s Script) Gated(i int, gate <-chan struct{}) Script {
	steps := make([]Step, len(s.Steps))
	copy(steps, s.Steps)
	if i >= 0 && i < len(steps) {
		steps[i].Wait = gate
	}
	s.Steps = steps
	return s
}

// Provider is a scripted model.Provider.
type Provider struct {
	mu         sync.Mutex
	avail      []AvailabilityResult
	availCalls int
	sessionErr error
	scripts    []Script
	sessions   []*Session
	prompts    []string
}

// New creates a provider that is ready and answers every prompt with "ok".
func New() *Provider {
	return &Provider{}
}

// SetAvailability scripts successive Availability answers. The last one repeats.
func (p *Provider) SetAvailability(results ...AvailabilityResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.avail = results
}

// SetSessionError makes NewSession fail with err until reset with nil.
func (p *Provider) SetSessionError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionErr = err
}

// Enqueue adds scripts consumed by successive StreamResponse calls.
func (p *Provider) Enqueue(scripts ...Script) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts = append(p.scripts, scripts...)
}

// Prompts returns every prompt streamed so far.
func (p *Provider) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.prompts))
	copy(out, p.prompts)
	return out
}

// Sessions returns every session created so far.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, len(p.sessions))
	copy(out, p.sessions)
	return out
}

// AvailabilityCalls returns how often Availability was called.
func (p *Provider) AvailabilityCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.availCalls
}

// Availability returns the next scripted answer.
func (p *Provider) Availability(ctx context.Context) (model.Availability, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.availCalls++
	if len(p.avail) == 0 {
		return model.AvailabilityReady, nil
	}
	r := p.avail[0]
	if len(p.avail) > 1 {
		p.avail = p.avail[1:]
	}
	return r.Availability, r.Err
}

// NewSession creates a scripted session.
func (p *Provider) NewSession(ctx context.Context, conversationID string) (model.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sessionErr != nil {
		return nil, p.sessionErr
	}
	s := &Session{
		id:             uuid.New().String(),
		conversationID: conversationID,
		provider:       p,
	}
	p.sessions = append(p.sessions, s)
	return s, nil
}

func (p *Provider) nextScript(prompt string) Script {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.prompts = append(p.prompts, prompt)
	if len(p.scripts) == 0 {
		return Snapshots("ok")
	}
	s := p.scripts[0]
	p.scripts = p.scripts[1:]
	return s
}

// Session is a scripted model.Session.
type Session struct {
	id             string
	conversationID string
	provider       *Provider

	mu     sync.Mutex
	closed bool
}

func (s *Session) ID() string             { return s.id }
func (s *Session) ConversationID() string { return s.conversationID }

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// StreamResponse plays the next queued script.
func (s *Session) StreamResponse(ctx context.Context, prompt string) (<-chan *model.Response, error) {
	if s.Closed() {
		return nil, model.ErrSessionClosed
	}
	script := s.provider.nextScript(prompt)
	if script.Err != nil {
		return nil, script.Err
	}

	out := make(chan *model.Response)
	go func() {
		defer close(out)
		for _, step := range script.Steps {
			if step.Wait != nil {
				if script.IgnoreCancel {
					<-step.Wait
				} else {
					select {
					case <-step.Wait:
					case <-ctx.Done():
						return
					}
				}
			}
			resp := *step.Response
			if script.IgnoreCancel {
				out <- &resp
				continue
			}
			select {
			case out <- &resp:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
