package protocol

import "fmt"

const (
	// Response decoding.
	ErrEmpty         = "E_EMPTY"
	ErrBadJSON       = "E_BAD_JSON"
	ErrSchema        = "E_SCHEMA"
	ErrUnknownAction = "E_UNKNOWN_ACTION"
	ErrBadDirection  = "E_BAD_DIRECTION"

	// Exchange/process layer.
	ErrTimeout  = "E_TIMEOUT"
	ErrExited   = "E_EXITED"
	ErrClosed   = "E_CLOSED"
	ErrSpawn    = "E_SPAWN"
	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrEmpty:         {},
	ErrBadJSON:       {},
	ErrSchema:        {},
	ErrUnknownAction: {},
	ErrBadDirection:  {},
	ErrTimeout:       {},
	ErrExited:        {},
	ErrClosed:        {},
	ErrSpawn:         {},
	ErrInternal:      {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// DecodeError describes why a response line degraded to rest.
type DecodeError struct {
	Code   string
	Detail string
	Err    error
}

func (e *DecodeError) Error() string {
	switch {
	case e.Err != nil && e.Detail != "":
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Detail, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Detail)
	}
	return e.Code
}

func (e *DecodeError) Unwrap() error { return e.Err }
