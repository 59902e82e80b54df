package wire

import "errors"

// Sentinel error kinds from spec.md §7. Callers wrap these with
// fmt.Errorf("...: %w", ErrX) to add context; session drivers use
// errors.Is against these to decide the process exit code.
var (
	ErrInvalidArgs      = errors.New("invalid arguments")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrBindInUse        = errors.New("bind address already in use")
	ErrConnectFailed    = errors.New("connect failed")
	ErrPeerClosed       = errors.New("peer closed connection")
	ErrOpenSourceFailed = errors.New("failed to open source")
	ErrWriteDestFailed  = errors.New("failed to write destination")
	ErrArchiveFailed    = errors.New("archive failed")
	ErrCancelled        = errors.New("transfer cancelled")
)
