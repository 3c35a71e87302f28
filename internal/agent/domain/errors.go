package domain

import "errors"

var (
	// ErrMailNotConnected is returned when a user has no mail tokens on record
	ErrMailNotConnected = errors.New("mail account not connected")
	// ErrClassifierKeyMissing is returned when neither the user nor the server has a classifier key
	ErrClassifierKeyMissing = errors.New("classifier API key not configured")
	// ErrUnknownAction is returned when the classifier proposes an action outside reply/star/ignore
	ErrUnknownAction = errors.New("unknown action")
	// ErrCredentialNotFound is returned when a user has no credential record
	ErrCredentialNotFound = errors.New("credentials not found")
)
