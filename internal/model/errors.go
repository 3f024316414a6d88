package model

import "errors"

var (
	// ErrWorkdirRequired is returned when a session creation request is missing the working directory.
	ErrWorkdirRequired = errors.New("workdir is required")

	// ErrSessionNotFound is returned when a session identifier does not resolve.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNotActive is returned when a control operation targets a session whose process is not running.
	ErrNotActive = errors.New("session is not active")

	// ErrAlreadyStarted is returned when Start is called twice; a session is single-shot.
	ErrAlreadyStarted = errors.New("session already started")
)
