package alist

import "errors"

// Sentinel errors.
var (
	ErrLogin = errors.New("alist login failed")
	ErrPut   = errors.New("alist upload failed")
)
