package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrMarketClosed    = errors.New("market closed")
	ErrOrderRejected   = errors.New("order rejected")
	ErrInvalidSettings = errors.New("invalid settings")
	ErrInvalidPosition = errors.New("position in inconsistent state")
)
