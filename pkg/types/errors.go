package types

import "errors"

var (
	ErrInvalidMessageRole = errors.New("message role must be user or assistant")
	ErrEmptyMessage       = errors.New("message must carry content or an audio URL")
)
