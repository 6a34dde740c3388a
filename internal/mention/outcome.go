package mention

import "time"

type State string

const (
	StateIgnored         State = "ignored"
	StateCooldownBlocked State = "cooldown_blocked"
	StateEmptyPrompt     State = "empty_prompt"
	StateGenerating      State = "generating"
	StateReplied         State = "replied"
	StateFailed          State = "failed"
)

type Reason string

const (
	ReasonSelf         Reason = "self"
	ReasonNotAddressed Reason = "not_addressed"
	ReasonBroadcast    Reason = "broadcast_mention"
	ReasonRoleMention  Reason = "role_mention"
)

// Outcome describes what one event produced. Replies counts sent messages of
// any kind, including the cooldown, empty prompt and error replies.
type Outcome struct {
	RequestID       string
	Command         string
	UserID          string
	ChannelID       string
	MessageID       string
	State           State
	Reason          Reason
	Remaining       time.Duration
	PromptChars     int
	ContextMessages int
	Replies         int
	Err             error
	Duration        time.Duration
}
