package domain

import "errors"

var (
	ErrNotFound         = errors.New("resource not found")
	ErrBadConfig        = errors.New("invalid architecture configuration")
	ErrStoreUnavailable = errors.New("shared store unavailable")
	ErrInternalError    = errors.New("internal server error")
)
