package service

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrAlreadyExists     = errors.New("already exists")
	ErrNotFound          = errors.New("not found")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrVersionConflict   = errors.New("version conflict")
	ErrNoSession         = errors.New("not signed in")
)
