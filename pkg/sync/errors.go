package sync

import "errors"

var (
	// ErrInitialization marks a failed one-time population. The repository is unusable.
	ErrInitialization = errors.New("initialization failed")

	// ErrRefresh marks a failed incremental update. It is logged, never returned to callers.
	ErrRefresh = errors.New("refresh failed")

	ErrInvalidArgument        = errors.New("invalid argument")
	ErrUnrecognizedDescriptor = errors.New("unrecognized repository descriptor")
	ErrInternalInconsistency  = errors.New("internal inconsistency")

	// ErrInclusion marks a missing or cyclic include target.
	ErrInclusion = errors.New("inclusion resolution failed")
)
