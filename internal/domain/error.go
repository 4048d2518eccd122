package domain

import "errors"

var (
	// Conversation errors
	ErrValidation  = errors.New("validation failed")
	ErrGeneration  = errors.New("reply generation failed")
	ErrPersistence = errors.New("session persistence failed")

	ErrRateLimited = errors.New("rate limit exceeded")
)
