package core

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrBodyTooLarge  = errors.New("encoded body exceeds limit")
)
