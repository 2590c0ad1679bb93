package websocket

import "errors"

var (
	ErrMessageBufferFull = errors.New("message buffer is full")
	ErrNoSurface         = errors.New("no hosting view connected to drive the embedded surface")
	ErrAutoJoinRejected  = errors.New("hosting view could not activate the join control")
)
