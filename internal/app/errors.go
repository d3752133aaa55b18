package service

import "errors"

// Sentinel errors.
var (
	ErrNoBlobs              = errors.New("no image blob could be created")
	ErrDuplicatePath        = errors.New("target path is already being uploaded")
	ErrUnknownBackend       = errors.New("unknown upload backend")
	ErrBackendNotConfigured = errors.New("upload backend not configured")
	ErrNotStarted           = errors.New("service not started")
	ErrQueueFull            = errors.New("upload queue rejected job")
)
