package domain

import "errors"

var (
	// ErrNoPrincipal means the request carried no authenticated identity.
	ErrNoPrincipal = errors.New("no authenticated principal")

	ErrUserNotFound   = errors.New("patient not found")
	ErrDoctorNotFound = errors.New("doctor not found")

	ErrInsufficientCredits = errors.New("insufficient credits to book an appointment")

	// ErrDuplicateUser signals a lost race on first-time user creation.
	// Callers recover by re-fetching the existing row.
	ErrDuplicateUser = errors.New("user already exists")

	// ErrAlreadyAllocated is the benign outcome of the allocation idempotency
	// check racing a concurrent grant for the same user, month and tier.
	ErrAlreadyAllocated = errors.New("credits already allocated this period")
)
