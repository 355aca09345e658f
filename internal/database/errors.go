package database

import "errors"

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("already exists")
	// ErrDuplicate возвращается вместе с уже сохраненным сообщением
	ErrDuplicate = errors.New("duplicate client message id")
)
