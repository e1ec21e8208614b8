package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodeView renders v as a single newline-terminated JSON line.
func EncodeView(v View) ([]byte, error) {
	if v.Neighbors == nil {
		v.Neighbors = map[Direction]*Neighbor{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode view: %w", err)
	}
	return append(b, '\n'), nil
}

// DecodeView parses an engine -> agent line. Used by agent implementations.
func DecodeView(line []byte) (View, error) {
	var v View
	if err := json.Unmarshal(bytes.TrimSpace(line), &v); err != nil {
		return v, err
	}
	return v, nil
}

// EncodeAction renders a response line (agent side).
func EncodeAction(a Action) []byte {
	b, _ := json.Marshal(a)
	return append(b, '\n')
}

// DecodeAction turns one agent output line into an Action. It never fails hard: every
// malformed line yields Rest together with a *DecodeError describing why.
func DecodeAction(line []byte) (Action, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Rest(), &DecodeError{Code: ErrEmpty}
	}

	var doc any
	if err := json.Unmarshal(line, &doc); err != nil {
		return Rest(), &DecodeError{Code: ErrBadJSON, Err: err}
	}
	if err := ActionSchema().Validate(doc); err != nil {
		return Rest(), classify(line, err)
	}

	var base BaseMessage
	if err := json.Unmarshal(line, &base); err != nil {
		return Rest(), &DecodeError{Code: ErrBadJSON, Err: err}
	}
	var act Action
	if err := json.Unmarshal(base.Action, &act.Kind); err != nil {
		return Rest(), &DecodeError{Code: ErrUnknownAction, Err: err}
	}
	if act.Kind == ActionAttack {
		if err := json.Unmarshal(base.Target, &act.Target); err != nil {
			return Rest(), &DecodeError{Code: ErrBadDirection, Err: err}
		}
	}
	return act, nil
}

// classify maps a schema failure to the most specific code.
func classify(line []byte, schemaErr error) *DecodeError {
	var base BaseMessage
	if err := json.Unmarshal(line, &base); err != nil {
		return &DecodeError{Code: ErrSchema, Err: schemaErr}
	}
	var kind string
	if err := json.Unmarshal(base.Action, &kind); err != nil || !ActionKind(kind).Known() {
		return &DecodeError{Code: ErrUnknownAction, Detail: string(base.Action)}
	}
	var target string
	if kind == string(ActionAttack) {
		if err := json.Unmarshal(base.Target, &target); err != nil || !Direction(target).Valid() {
			return &DecodeError{Code: ErrBadDirection, Detail: string(base.Target)}
		}
	}
	return &DecodeError{Code: ErrSchema, Err: schemaErr}
}
