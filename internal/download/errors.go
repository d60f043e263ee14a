package download

import "errors"

// Domain errors. Handlers map these onto HTTP statuses; anything else that
// bubbles up is treated as an internal failure and never shown verbatim.
var (
	ErrSelectionEmpty    = errors.New("file selection is empty")
	ErrLimitExceeded     = errors.New("selection exceeds plan limits")
	ErrInvalidAccessMode = errors.New("unknown access mode")
	ErrInvalidTransition = errors.New("invalid build transition")
	ErrBuildConflict     = errors.New("a build is already in progress")
	ErrNotFound          = errors.New("download not found")
	ErrAccessDenied      = errors.New("access denied")
	ErrExpired           = errors.New("download expired")
	ErrRevoked           = errors.New("download revoked")
	ErrNoArchive         = errors.New("download has no archive build")
)
