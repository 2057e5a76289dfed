package storage

import "example.com/healthconnect/internal/errs"

var (
	// ErrReadOnly is returned by mutating calls inside View.
	ErrReadOnly = errs.New(errs.CodeInternal, "read-only transaction")
)
