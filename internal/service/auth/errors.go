package auth

import "errors"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpToken     = errors.New("expired token")
	ErrEmptySecret  = errors.New("jwt secret is empty")
)
