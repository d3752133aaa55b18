package repository

import "errors"

// Sentinel kinds for directory listing errors.
var (
	ErrDirNotFound = errors.New("directory not found")
	ErrStore       = errors.New("store operation failed")
)
