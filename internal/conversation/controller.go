package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/kalambet/qadesk/internal/service"
	"github.com/kalambet/qadesk/internal/workflow"
)

const (
	// DefaultGreeting seeds every new transcript.
	DefaultGreeting = "Hello! I'm your AI assistant. How can I help you today?"
	// NoAnswer replaces a reply that carries no answer.
	NoAnswer = "No AI response"
	// FailurePrefix starts the assistant message recorded for a failed turn.
	FailurePrefix = "Request failed: "
)

var (
	// ErrEmpty is returned by Submit for blank input.
	ErrEmpty = errors.New("message is empty")
	// ErrBusy is returned by Submit while a turn is in flight.
	ErrBusy = workflow.ErrBusy
)

// Sender delivers a JSON payload to a named service endpoint.
type Sender interface {
	Send(ctx context.Context, endpoint string, payload any) (service.Response, error)
}

// State is a snapshot of the conversation. Seq grows by one with every change.
type State struct {
	Status     workflow.Status
	Draft      string
	Transcript []Message
	Seq        uint64
}

// Reply is the assistant message recorded for one turn.
type Reply struct {
	Message Message
	// Failed is set when the request did not complete; Message then carries
	// FailurePrefix and the reason.
	Failed bool
}

// Controller owns the transcript and runs one chat turn at a time.
type Controller struct {
	sender   Sender
	logger   *slog.Logger
	observer func(State)

	mu         sync.Mutex
	status     workflow.Status
	draft      string
	transcript []Message
	seq        uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithGreeting replaces the seed assistant message.
func WithGreeting(text string) Option {
	return func(c *Controller) {
		if strings.TrimSpace(text) != "" {
			c.transcript[0] = Message{Role: RoleAssistant, Content: text}
		}
	}
}

// WithObserver registers fn to receive a snapshot after every change.
// fn is called outside the controller's lock, so racing changes may arrive
// out of order; compare Seq.
func WithObserver(fn func(State)) Option {
	return func(c *Controller) { c.observer = fn }
}

// WithLogger sets the controller's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New creates an idle Controller whose transcript holds the greeting.
func New(sender Sender, opts ...Option) *Controller {
	c := &Controller{
		sender:     sender,
		logger:     slog.Default(),
		transcript: []Message{{Role: RoleAssistant, Content: DefaultGreeting}},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcript returns a copy of the messages so far, oldest first.
func (c *Controller) Transcript() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyTranscript()
}

// Len returns the number of messages in the transcript.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.transcript)
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// SetDraft replaces the input buffer.
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.seq++
	snap := c.snapshot()
	c.mu.Unlock()
	c.notify(snap)
}

// SubmitDraft submits the current input buffer.
func (c *Controller) SubmitDraft(ctx context.Context) error {
	c.mu.Lock()
	text := c.draft
	c.mu.Unlock()
	return c.Submit(ctx, text)
}

// Submit runs one chat turn and blocks until the reply is recorded.
//
// The user message is appended before the request is sent; exactly one
// assistant message is appended when the request settles, whether it
// succeeded or not. The full transcript is sent so the service sees the whole
// conversation. ErrEmpty and ErrBusy leave everything untouched.
func (c *Controller) Submit(ctx context.Context, text string) error {
	_, err := c.Ask(ctx, text)
	return err
}

// Ask is Submit returning the reply recorded for this turn. Callers sharing
// the controller use it rather than reading the transcript afterwards, which
// may already hold another turn.
func (c *Controller) Ask(ctx context.Context, text string) (Reply, error) {
	if strings.TrimSpace(text) == "" {
		return Reply{}, ErrEmpty
	}

	c.mu.Lock()
	if c.status == workflow.StatusPending {
		c.mu.Unlock()
		c.logger.Debug("chat submission ignored, turn pending")
		return Reply{}, ErrBusy
	}
	c.transcript = append(c.transcript, Message{Role: RoleUser, Content: text})
	c.status = workflow.StatusPending
	c.draft = ""
	c.seq++
	history := c.copyTranscript()
	snap := c.snapshot()
	c.mu.Unlock()
	c.notify(snap)

	resp, err := c.sender.Send(ctx, service.EndpointChat, chatRequest{Messages: history})

	var reply Reply
	if err != nil {
		reply = Reply{
			Message: Message{Role: RoleAssistant, Content: FailurePrefix + service.Reason(err)},
			Failed:  true,
		}
		c.logger.Warn("chat request failed", "error", err, "turns", len(history))
	} else {
		answer, ok := resp.String("answer")
		if !ok {
			answer = NoAnswer
		}
		reply = Reply{Message: Message{Role: RoleAssistant, Content: answer}}
		c.logger.Info("chat reply received", "status_code", resp.StatusCode, "turns", len(history))
	}

	c.mu.Lock()
	c.transcript = append(c.transcript, reply.Message)
	c.status = workflow.StatusIdle
	c.seq++
	snap = c.snapshot()
	c.mu.Unlock()
	c.notify(snap)

	return reply, nil
}

func (c *Controller) copyTranscript() []Message {
	out := make([]Message, len(c.transcript))
	copy(out, c.transcript)
	return out
}

func (c *Controller) snapshot() State {
	return State{
		Status:     c.status,
		Draft:      c.draft,
		Transcript: c.copyTranscript(),
		Seq:        c.seq,
	}
}

func (c *Controller) notify(s State) {
	if c.observer != nil {
		c.observer(s)
	}
}
