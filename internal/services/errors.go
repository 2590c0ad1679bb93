package services

import "errors"

var (
	ErrInvalidTransition = errors.New("operation not allowed in the current session state")
	ErrSessionNotEnded   = errors.New("recording is only available once the session has ended")
	ErrJoinNotAllowed    = errors.New("call can only be joined while the session is active or waiting")
	ErrInvalidJoinURL    = errors.New("join url is missing or a placeholder")
	ErrAlreadyJoined     = errors.New("call already joined")
	ErrNotJoined         = errors.New("call is not joined")
	ErrJoinCancelled     = errors.New("join cancelled by leave")
	ErrInvalidDeviceKind = errors.New("invalid device kind")
	ErrViewNotFound      = errors.New("view not found")
	ErrViewClosed        = errors.New("view is closed")
	ErrSessionNotFound   = errors.New("session not found")
)
