package client

import "errors"

var (
	// ErrInvalidArgument is returned before any I/O when an argument is out
	// of the range the bulb accepts.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnsupportedTarget is returned when a command has no variant for the
	// requested target.
	ErrUnsupportedTarget = errors.New("unsupported target")
)
