package service

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrRefreshing   = errors.New("subscription is refreshing")
)
