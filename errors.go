package relay

import "fmt"

// ErrInput reports a request that is invalid before any work starts:
// empty task, unknown pipeline, malformed arguments.
type ErrInput struct {
	Field   string
	Message string
}

func (e *ErrInput) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ErrRateLimited reports a dispatch rejected because the session's token
// bucket is empty. RetryAfter is the time in seconds until the next refill.
type ErrRateLimited struct {
	SessionID  string
	RetryAfter float64
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("session %s rate limited, retry in %.1fs", e.SessionID, e.RetryAfter)
}

// ErrDependency reports a required collaborator that is not configured or
// not reachable: a nil Completer, a missing issue resolver, a closed store.
type ErrDependency struct {
	Name    string
	Message string
}

func (e *ErrDependency) Error() string {
	return fmt.Sprintf("%s unavailable: %s", e.Name, e.Message)
}

// ErrTransient wraps a failure from an external call that is worth
// retrying: timeouts, 429s, connection resets.
type ErrTransient struct {
	Op  string
	Err error
}

func (e *ErrTransient) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *ErrTransient) Unwrap() error { return e.Err }

// ErrMalformed reports structured model output that could not be parsed
// even after repair. Raw holds the offending text, truncated for logs.
type ErrMalformed struct {
	Stage string
	Raw   string
}

func (e *ErrMalformed) Error() string {
	return fmt.Sprintf("%s: malformed structured output: %s", e.Stage, truncateStr(e.Raw, 120))
}

// ErrConflict reports a session command that does not match the stage the
// session is currently awaiting.
type ErrConflict struct {
	SessionID string
	Want      string
	Have      string
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("session %s awaiting %s, got command for %s", e.SessionID, e.Have, e.Want)
}
