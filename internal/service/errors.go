package service

import "errors"

var (
	ErrInvalidMessage     = errors.New("invalid message")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrInvalidSessionKey  = errors.New("invalid session key")
	ErrInternalServer     = errors.New("internal server error")
)
