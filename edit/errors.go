package edit

import (
	"errors"
	"fmt"
)

// ErrInvalidAction is returned by Dispatch for an unknown action name.
var ErrInvalidAction = errors.New("invalid action")

// InvalidArgsError reports action argument validation failure.  The label
// volume and index are guaranteed untouched when Dispatch returns one:
// validation happens entirely before the first write.
type InvalidArgsError struct {
	Action string
	Reason string
	Err    error
}

func (e InvalidArgsError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid arguments for action %q: %s: %v", e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid arguments for action %q: %s", e.Action, e.Reason)
}

func (e InvalidArgsError) Unwrap() error {
	return e.Err
}

func invalidArgsf(action, format string, args ...interface{}) error {
	return InvalidArgsError{Action: action, Reason: fmt.Sprintf(format, args...)}
}
