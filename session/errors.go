package session

import "errors"

var (
	ErrSessionStart          = errors.New("could not start session")
	ErrUpload                = errors.New("audio upload failed")
	ErrFinalize              = errors.New("finalize failed")
	ErrSessionNotInitialized = errors.New("session not initialized")
	ErrNotRecording          = errors.New("not recording")
	ErrAlreadyRecording      = errors.New("already recording")
	ErrClosed                = errors.New("controller closed")
)
