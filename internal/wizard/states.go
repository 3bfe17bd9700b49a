// Package wizard defines the forwarding wizard's states and the pure
// transition function over them. Sessions persist the state as a string;
// handlers drive transitions and apply the matching field updates.
package wizard

import "fmt"

// State is one step of the forwarding wizard.
type State string

const (
	StateChannelSelect  State = "channel_select"
	StateActionSelect   State = "action_select"
	StateTextHandling   State = "text_handling"
	StateNicknameSelect State = "nickname_select"
	StateCustomText     State = "custom_text"
	StatePreview        State = "preview"
	StateCompleted      State = "completed"
)

// Context carries the captured-message properties and channel classification
// the transition function branches on.
type Context struct {
	IsGreenListed bool
	IsRedListed   bool
	HasText       bool
	IsForward     bool // operator chose "forward as-is"
}

// InvalidStateError is returned by Next for a state it does not know.
type InvalidStateError struct {
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid wizard state %q", string(e.State))
}

// Next returns the state following s under ctx. It is total over the known
// states and deterministic; StateCompleted is terminal and idempotent.
func Next(s State, ctx Context) (State, error) {
	switch s {
	case StateChannelSelect:
		if ctx.IsGreenListed {
			// Fully trusted channel: auto-publish, no further questions.
			return StateCompleted, nil
		}
		if ctx.IsRedListed {
			// Attribution questions still apply even though the channel
			// identity will never be surfaced.
			if ctx.HasText {
				return StateTextHandling, nil
			}
			return StateNicknameSelect, nil
		}
		return StateActionSelect, nil
	case StateActionSelect:
		if ctx.IsForward {
			return StateCompleted, nil
		}
		if ctx.HasText {
			return StateTextHandling, nil
		}
		return StateNicknameSelect, nil
	case StateTextHandling:
		return StateNicknameSelect, nil
	case StateNicknameSelect:
		return StateCustomText, nil
	case StateCustomText:
		return StatePreview, nil
	case StatePreview:
		return StateCompleted, nil
	case StateCompleted:
		return StateCompleted, nil
	default:
		return s, &InvalidStateError{State: s}
	}
}
