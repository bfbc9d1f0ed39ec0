package clients

import "errors"

var (
	// ErrStartupFailed wraps the error of the first hook that failed to start.
	ErrStartupFailed = errors.New("client startup failed")

	// ErrAlreadyStarted is returned by Register after Startup.
	ErrAlreadyStarted = errors.New("clients already started")
)
