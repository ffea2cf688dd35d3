package domain

import "errors"

var (
	// ErrValue marks text that cannot be resolved into a position.
	ErrValue = errors.New("domain value")
	// ErrConfig marks an unusable resolver configuration.
	ErrConfig = errors.New("domain configuration")
)

// Error is a resolution failure. Kind is ErrValue or ErrConfig.
type Error struct {
	Kind error
	Msg  string
	Text string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func valueError(msg, text string) error {
	return &Error{Kind: ErrValue, Msg: msg, Text: text}
}

func configError(msg string) error {
	return &Error{Kind: ErrConfig, Msg: msg}
}
