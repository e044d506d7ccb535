package app

import "errors"

var (
	ErrUnboundKey      = errors.New("no interrupt bound to key")
	ErrNoReceiver      = errors.New("no serial receiver configured")
	ErrUnknownResource = errors.New("unknown resource")
	ErrUnknownTask     = errors.New("unknown task")
	ErrBehaviour       = errors.New("bad behaviour")
)
