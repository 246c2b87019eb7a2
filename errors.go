package main

import "errors"

// Backup and restore errors follow the recovery action the user must take:
// a wrong password is retried, an unrecognized file is replaced.
var (
	// ErrValidationFailed indicates the document is missing required top-level sections.
	ErrValidationFailed = errors.New("backup document is missing required sections")

	// ErrDecryptionFailed indicates a wrong password or corrupted ciphertext.
	ErrDecryptionFailed = errors.New("wrong password or corrupted backup file")

	// ErrFormatUnrecognized indicates the file matches none of the known backup shapes.
	ErrFormatUnrecognized = errors.New("unrecognized backup file format")

	// ErrChecksumMismatch indicates the stored checksum does not cover the current
	// content. Non-fatal: restores continue for backward compatibility.
	ErrChecksumMismatch = errors.New("backup checksum mismatch")

	// ErrBackupNotFound indicates no backup exists under the requested id.
	ErrBackupNotFound = errors.New("backup not found")
)

// Optimizer errors.
var (
	// ErrRunInProgress indicates a beam search is already outstanding on this optimizer.
	ErrRunInProgress = errors.New("an optimization run is already in progress")
)

// Storage errors.
var (
	// ErrKeyNotFound indicates the store has no document under the requested key.
	ErrKeyNotFound = errors.New("key not found in store")

	// ErrStoreUnavailable indicates the storage backend could not be reached.
	ErrStoreUnavailable = errors.New("storage backend unavailable")
)
