package db

import "errors"

// ErrStaleVersion is returned by repositories when a row's version no longer
// matches the version the caller read. Callers re-read and retry.
var ErrStaleVersion = errors.New("stale version")

// UniqueViolation is the PostgreSQL error code for unique constraint failures.
const UniqueViolation = "23505"
