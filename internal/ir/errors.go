package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes harvest errors.
type ErrorCode string

const (
	// ErrCodeConfiguration marks a bad or missing mapping or a malformed
	// transformation rule. The rule is skipped and the harvest continues.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"

	// ErrCodeIntegrity marks an append over an already active slot or a write
	// against a row that is no longer active. The enclosing transaction is
	// rolled back.
	ErrCodeIntegrity ErrorCode = "INTEGRITY"

	// ErrCodeStorage marks a backend I/O failure. The record is reported as
	// failed and the harvest continues with the next record.
	ErrCodeStorage ErrorCode = "STORAGE"

	// ErrCodeMappingMiss marks a field without a configured mapping. It is
	// counted as skipped, never surfaced as a failure.
	ErrCodeMappingMiss ErrorCode = "MAPPING_MISS"
)

// Error is a structured harvest error.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op names the failing operation, e.g. "append value".
	Op string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewIntegrityError creates an Error for a slot collision or stale write.
func NewIntegrityError(op, message string) *Error {
	return &Error{Code: ErrCodeIntegrity, Op: op, Message: message}
}

// NewConfigurationError creates an Error for an unusable rule.
func NewConfigurationError(op, message string, err error) *Error {
	return &Error{Code: ErrCodeConfiguration, Op: op, Message: message, Err: err}
}

// NewStorageError wraps a backend failure.
func NewStorageError(op string, err error) *Error {
	return &Error{Code: ErrCodeStorage, Op: op, Message: "storage failure", Err: err}
}

// NewMappingMiss creates an Error for an unmapped source field.
func NewMappingMiss(source, sourceField, parentField string) *Error {
	return &Error{
		Code:    ErrCodeMappingMiss,
		Op:      "resolve field",
		Message: fmt.Sprintf("no mapping for %s field %q (parent %q)", source, sourceField, parentField),
	}
}

// HasCode reports whether err (or anything it wraps) is an Error with code.
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsIntegrity returns true if the error is an integrity error.
func IsIntegrity(err error) bool { return HasCode(err, ErrCodeIntegrity) }

// IsConfiguration returns true if the error is a configuration error.
func IsConfiguration(err error) bool { return HasCode(err, ErrCodeConfiguration) }

// IsStorage returns true if the error is a storage error.
func IsStorage(err error) bool { return HasCode(err, ErrCodeStorage) }

// IsMappingMiss returns true if the error is a mapping miss.
func IsMappingMiss(err error) bool { return HasCode(err, ErrCodeMappingMiss) }
