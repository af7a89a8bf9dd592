package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kalambet/qadesk/internal/service"
)

// ErrBusy is returned by Submit while a request for the same workflow is in flight.
var ErrBusy = errors.New("request already in progress")

// ValidationError reports input rejected before any request is sent.
type ValidationError struct {
	Workflow string
	Err      error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid input: %v", e.Workflow, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// FailurePrefix starts the result message of a failed submission.
const FailurePrefix = "Processing failed: "

// Sender delivers a JSON payload to a named service endpoint.
type Sender interface {
	Send(ctx context.Context, endpoint string, payload any) (service.Response, error)
}

// Definition describes one single-request workflow.
type Definition[In any] struct {
	// Name identifies the workflow in logs and errors.
	Name string
	// Endpoint is the service endpoint the input is posted to.
	Endpoint string
	// Field is the JSON key the input is sent under.
	Field string
	// Validate rejects input that must not be submitted. Nil accepts everything.
	Validate func(In) error
	// DefaultMessage is the result used when a reply carries no message.
	DefaultMessage string
	// ClearDraftOnSuccess empties the draft buffer after a successful submission.
	ClearDraftOnSuccess bool
}

// State is a snapshot of a workflow. Seq grows by one with every change, so
// snapshots delivered out of order can be put back in order.
type State[In any] struct {
	Status Status
	Result string
	Draft  In
	Seq    uint64
}

// Controller tracks the single in-flight submission of one workflow.
// All state changes go through its methods.
type Controller[In any] struct {
	def      Definition[In]
	sender   Sender
	logger   *slog.Logger
	observer func(State[In])

	mu    sync.Mutex
	state State[In]
}

// ControllerOption configures a Controller.
type ControllerOption[In any] func(*Controller[In])

// WithObserver registers fn to receive a snapshot after every state change.
// fn is called outside the controller's lock, so racing changes may arrive
// out of order; compare Seq.
func WithObserver[In any](fn func(State[In])) ControllerOption[In] {
	return func(c *Controller[In]) { c.observer = fn }
}

// WithLogger sets the controller's logger.
func WithLogger[In any](l *slog.Logger) ControllerOption[In] {
	return func(c *Controller[In]) { c.logger = l }
}

// New creates an idle Controller for def.
func New[In any](def Definition[In], sender Sender, opts ...ControllerOption[In]) *Controller[In] {
	c := &Controller[In]{
		def:    def,
		sender: sender,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the workflow name.
func (c *Controller[In]) Name() string {
	return c.def.Name
}

// State returns the current snapshot.
func (c *Controller[In]) State() State[In] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetDraft replaces the draft input buffer.
func (c *Controller[In]) SetDraft(v In) {
	c.mu.Lock()
	c.state.Draft = v
	c.state.Seq++
	snap := c.state
	c.mu.Unlock()
	c.notify(snap)
}

// SubmitDraft submits the current draft buffer.
func (c *Controller[In]) SubmitDraft(ctx context.Context) error {
	return c.Submit(ctx, c.State().Draft)
}

// Validate reports whether input would be accepted by Submit, without
// changing anything.
func (c *Controller[In]) Validate(input In) error {
	if c.def.Validate == nil {
		return nil
	}
	if err := c.def.Validate(input); err != nil {
		return &ValidationError{Workflow: c.def.Name, Err: err}
	}
	return nil
}

// Submit sends input to the workflow's endpoint and blocks until the request
// settles. It returns ErrBusy if a request is already pending and a
// *ValidationError if input is rejected; in both cases nothing changes.
// A failed request is recorded in the state, not returned.
func (c *Controller[In]) Submit(ctx context.Context, input In) error {
	_, err := c.Run(ctx, input)
	return err
}

// Run is Submit returning the snapshot taken when this request settled.
// Callers sharing the controller use it rather than reading State afterwards,
// which may already reflect another submission.
func (c *Controller[In]) Run(ctx context.Context, input In) (State[In], error) {
	c.mu.Lock()
	if c.state.Status == StatusPending {
		c.mu.Unlock()
		c.logger.Debug("submission ignored, request pending", "workflow", c.def.Name)
		return State[In]{}, ErrBusy
	}
	if err := c.Validate(input); err != nil {
		c.mu.Unlock()
		c.logger.Debug("submission rejected", "workflow", c.def.Name, "error", err)
		return State[In]{}, err
	}
	c.state.Status = StatusPending
	c.state.Result = ""
	c.state.Seq++
	snap := c.state
	c.mu.Unlock()
	c.notify(snap)

	resp, err := c.sender.Send(ctx, c.def.Endpoint, map[string]In{c.def.Field: input})

	c.mu.Lock()
	if err != nil {
		c.state.Status = StatusFailed
		c.state.Result = FailurePrefix + service.Reason(err)
		c.logger.Warn("workflow request failed", "workflow", c.def.Name, "error", err)
	} else {
		c.state.Status = StatusSucceeded
		msg, ok := resp.String("message")
		if !ok {
			msg = c.def.DefaultMessage
		}
		c.state.Result = msg
		if c.def.ClearDraftOnSuccess {
			var zero In
			c.state.Draft = zero
		}
		c.logger.Info("workflow request succeeded", "workflow", c.def.Name, "status_code", resp.StatusCode)
	}
	c.state.Seq++
	snap = c.state
	c.mu.Unlock()
	c.notify(snap)

	return snap, nil
}

func (c *Controller[In]) notify(s State[In]) {
	if c.observer != nil {
		c.observer(s)
	}
}
