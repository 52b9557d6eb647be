// Package mailerr defines the error taxonomy shared by the mail store
// services. Handlers map these to response codes; repositories translate
// driver errors into them so no raw storage error leaves the store.
package mailerr

import "errors"

var (
	// ErrNotFound covers a missing mailbox, message, label or account, as
	// well as resources owned by a different account. The two cases are
	// deliberately indistinguishable to the caller.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned for duplicate mailbox paths and
	// duplicate label names within an account.
	ErrAlreadyExists = errors.New("already exists")

	// ErrForbidden is returned for attempts to delete or rename a
	// special-use mailbox.
	ErrForbidden = errors.New("forbidden")

	// ErrQuotaExceeded is returned when an operation would push an
	// account's storage usage past its tier ceiling.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrSendLimitExceeded is returned when an account is at or above its
	// daily send cap.
	ErrSendLimitExceeded = errors.New("daily send limit exceeded")

	// ErrAttachmentTooLarge is returned when an attachment exceeds the
	// tier's per-attachment ceiling.
	ErrAttachmentTooLarge = errors.New("attachment too large")

	// ErrUnknownRecipient is returned by recipient resolution when the
	// local part does not map to an account. Callers should bounce, not
	// retry.
	ErrUnknownRecipient = errors.New("unknown recipient")

	// ErrValidation is returned for malformed caller input.
	ErrValidation = errors.New("validation failed")

	// ErrConfiguration indicates an expected system mailbox is missing.
	// This is a provisioning bug, not a user error, and is surfaced
	// distinctly from ErrNotFound.
	ErrConfiguration = errors.New("system mailbox missing")
)

// IsUserError reports whether err is a validation or ownership failure the
// caller can act on without retrying.
func IsUserError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrSendLimitExceeded) ||
		errors.Is(err, ErrAttachmentTooLarge) ||
		errors.Is(err, ErrUnknownRecipient) ||
		errors.Is(err, ErrValidation)
}
