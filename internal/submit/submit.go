// Package submit implements the client-facing submission state machine.
// It serializes submissions per session and guarantees that every attempt
// produces exactly one SubmissionResult and lands back in the idle state,
// whatever the pipeline underneath does.
package submit

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/plateful/plateful/internal/classify"
	"github.com/plateful/plateful/internal/model"
	"github.com/plateful/plateful/internal/pipeline"
)

// State names a position in the submission lifecycle.
type State string

const (
	StateIdle          State = "idle"
	StateValidating    State = "validating"
	StateCheckingCache State = "checking_cache"
	StateParsing       State = "parsing"
	StateNavigating    State = "navigating"
)

// SubmitFunc runs one classified submission through the pipeline.
type SubmitFunc func(ctx context.Context, raw string) (*model.SubmissionResult, error)

// Machine is one client session's submission gate. Exactly one submission
// may be in flight; further attempts while busy are no-ops.
type Machine struct {
	mu     sync.Mutex
	state  State
	submit SubmitFunc
}

// NewMachine wraps submit in a fresh idle machine.
func NewMachine(submit SubmitFunc) *Machine {
	return &Machine{state: StateIdle, submit: submit}
}

// State reports the current lifecycle position.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Submit runs raw through the pipeline. Mode names the active input field
// ("url" or "name"; empty accepts any non-invalid kind): input whose
// classification does not fit the mode is rejected as a validation error
// rather than silently reclassified. The second return is false when the
// machine was busy and the attempt was dropped. A true return always comes
// with a non-nil result, even when the pipeline fails or panics.
func (m *Machine) Submit(ctx context.Context, raw, mode string) (result *model.SubmissionResult, accepted bool) {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return nil, false
	}
	m.state = StateValidating
	m.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("submission panicked", zap.Any("panic", r))
			result = &model.SubmissionResult{
				Kind:    model.ResultValidationError,
				Message: "Something went wrong. Please try again.",
			}
			accepted = true
		}
		m.setState(StateIdle)
	}()

	kind := classify.Classify(raw)
	if kind == model.KindInvalid {
		return &model.SubmissionResult{
			Kind:    model.ResultValidationError,
			Message: "Enter a recipe name, a link, or the recipe text itself.",
		}, true
	}
	if !classify.MatchesMode(kind, mode) {
		return &model.SubmissionResult{
			Kind:    model.ResultValidationError,
			Message: modeMismatchMessage(mode),
		}, true
	}

	m.setState(StateCheckingCache)
	m.setState(StateParsing)
	res, err := m.submit(ctx, raw)
	if err != nil {
		return &model.SubmissionResult{
			Kind:    model.ResultValidationError,
			Message: userMessage(err),
		}, true
	}

	m.setState(StateNavigating)
	return res, true
}

// modeMismatchMessage explains a kind/mode mismatch in field terms.
func modeMismatchMessage(mode string) string {
	if mode == "url" {
		return "That doesn't look like a link."
	}
	return "That looks like a link. Paste it into the link field instead."
}

// userMessage extracts a safe-to-show message from a pipeline failure.
func userMessage(err error) string {
	if pe, ok := pipeline.AsError(err); ok {
		return pe.Message
	}
	return "We couldn't save that recipe. Please try again."
}
