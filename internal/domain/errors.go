package domain

import "errors"

var (
	ErrRejected       = errors.New("connection rejected by admission control")
	ErrClosed         = errors.New("broker is closed")
	ErrUnknownCommand = errors.New("unknown control command")
	ErrEmptyCommand   = errors.New("empty control command")
)
