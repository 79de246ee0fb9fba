package engine

import "errors"

var (
	ErrLocationNotFound = errors.New("location not found")
	ErrLocationExists   = errors.New("location already exists")
	ErrLocationFull     = errors.New("location slot full")
	ErrTokenNotFound    = errors.New("token not found")
	ErrInvalidState     = errors.New("invalid token state")
	ErrNoToken          = errors.New("no token available")
	ErrNoSession        = errors.New("no active session")
)
