package protocol

import "encoding/json"

// Version identifies the line protocol spoken with agent processes. It is not sent on the wire;
// it is recorded in checkpoints and the observer bootstrap.
const Version = "1.0"

// Action tags.
const (
	ActionRest      ActionKind = "rest"
	ActionAttack    ActionKind = "attack"
	ActionReplicate ActionKind = "replicate"
)

type ActionKind string

func (k ActionKind) Known() bool {
	switch k {
	case ActionRest, ActionAttack, ActionReplicate:
		return true
	}
	return false
}

// Action is both the decoded agent decision and its wire form.
type Action struct {
	Kind   ActionKind `json:"action"`
	Target Direction  `json:"target,omitempty"`
}

func Rest() Action                { return Action{Kind: ActionRest} }
func Replicate() Action           { return Action{Kind: ActionReplicate} }
func Attack(dir Direction) Action { return Action{Kind: ActionAttack, Target: dir} }

func (a Action) String() string {
	if a.Kind == ActionAttack {
		return string(a.Kind) + ":" + string(a.Target)
	}
	return string(a.Kind)
}

// BaseMessage lets us classify a response before full decoding.
type BaseMessage struct {
	Action json.RawMessage `json:"action"`
	Target json.RawMessage `json:"target"`
}
