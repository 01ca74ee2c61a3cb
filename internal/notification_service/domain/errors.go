package domain

import "errors"

var (
	// ErrValidation indicates a required field for the chosen message kind is missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrMissingCredential indicates the target provider is not configured.
	ErrMissingCredential = errors.New("provider credentials are not configured")
	// ErrInvalidTransition indicates an unknown status value or a disallowed backward transition.
	ErrInvalidTransition = errors.New("invalid message status transition")
	// ErrMessageRecordNotFound indicates a lookup miss. Webhook processing treats
	// this as a benign no-op; resend and direct API calls treat it as a hard error.
	ErrMessageRecordNotFound = errors.New("message record not found")
)
