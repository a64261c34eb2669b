package domain

import "errors"

// Domain errors
var (
	// Not found
	ErrPassNotFound     = errors.New("pass not found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrJobNotFound      = errors.New("update job not found")
	ErrBatchNotFound    = errors.New("batch not found")
	ErrDeviceNotFound   = errors.New("device registration not found")

	// Validation
	ErrInvalidTicketID         = errors.New("invalid ticket id")
	ErrInvalidEventID          = errors.New("invalid event id")
	ErrInvalidUserID           = errors.New("invalid user id")
	ErrInvalidPassID           = errors.New("invalid pass id")
	ErrInvalidPlatform         = errors.New("invalid platform")
	ErrInvalidOrganizerID      = errors.New("invalid organizer id")
	ErrInvalidTemplateName     = errors.New("template name is required")
	ErrInvalidUpdateKind       = errors.New("invalid update kind")
	ErrTemplateInvalid         = errors.New("template validation failed")
	ErrRenderDataInvalid       = errors.New("render data validation failed")
	ErrInvalidStatusTransition = errors.New("invalid pass status transition")
	ErrInvalidJobTransition    = errors.New("invalid job status transition")

	// Conflict
	ErrTicketAlreadyHasPass = errors.New("ticket already has a non-revoked pass")
	ErrSerialNumberTaken    = errors.New("serial number already in use")
	ErrTemplateInUse        = errors.New("template is referenced by issued passes")
	ErrTemplateNotEditable  = errors.New("template can only be modified in draft or inactive status")
	ErrJobNotCancellable    = errors.New("job has already started processing")
	ErrPassNotActive        = errors.New("pass is not active")
	ErrPassExpired          = errors.New("pass has expired")

	// Unauthorized
	ErrUnauthorized    = errors.New("unauthorized")
	ErrTokenInvalid    = errors.New("token is invalid")
	ErrTokenExpired    = errors.New("token has expired")
	ErrNotRecipient    = errors.New("accessor is not a share recipient")
	ErrShareRevoked    = errors.New("share has been revoked")
	ErrSharingDisabled = errors.New("sharing is disabled for this pass")

	// Platform generation
	ErrGenerationFailed = errors.New("platform pass generation failed")

	// Update pipeline
	ErrUpdateExhausted = errors.New("update job failed after exhausting retries")

	// Rate limiting
	ErrShareLimitReached = errors.New("share limit reached")
	ErrNotifyRateLimited = errors.New("notification rate limit reached")
)

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrPassNotFound) ||
		errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrJobNotFound) ||
		errors.Is(err, ErrBatchNotFound) ||
		errors.Is(err, ErrDeviceNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidTicketID) ||
		errors.Is(err, ErrInvalidEventID) ||
		errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidPassID) ||
		errors.Is(err, ErrInvalidPlatform) ||
		errors.Is(err, ErrInvalidOrganizerID) ||
		errors.Is(err, ErrInvalidTemplateName) ||
		errors.Is(err, ErrInvalidUpdateKind) ||
		errors.Is(err, ErrTemplateInvalid) ||
		errors.Is(err, ErrRenderDataInvalid)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrTicketAlreadyHasPass) ||
		errors.Is(err, ErrSerialNumberTaken) ||
		errors.Is(err, ErrTemplateInUse) ||
		errors.Is(err, ErrTemplateNotEditable) ||
		errors.Is(err, ErrJobNotCancellable) ||
		errors.Is(err, ErrPassNotActive) ||
		errors.Is(err, ErrPassExpired) ||
		errors.Is(err, ErrInvalidStatusTransition)
}

// IsUnauthorizedError checks if the error is an authorization error
func IsUnauthorizedError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrTokenInvalid) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrNotRecipient) ||
		errors.Is(err, ErrShareRevoked) ||
		errors.Is(err, ErrSharingDisabled)
}

// IsRateLimitedError checks if the error is a rate limit rejection
func IsRateLimitedError(err error) bool {
	return errors.Is(err, ErrShareLimitReached) ||
		errors.Is(err, ErrNotifyRateLimited)
}
