package app

import "errors"

var (
	ErrUnknownMode           = errors.New("unknown mode")
	ErrModeMismatch          = errors.New("mode does not match route")
	ErrEmptyMessage          = errors.New("message is required")
	ErrModeLocked            = errors.New("mode locked")
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrConversationForbidden = errors.New("conversation forbidden")
	ErrEmptyTitle            = errors.New("title is required")
	ErrGeneration            = errors.New("generation failed")
)
