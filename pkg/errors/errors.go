/*
 * Copyright 2025 The Greenroom Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package errors

import (
	"errors"
)

// StatusError is an error that carries a status code and a machine-readable
// reason code. Components translate every external failure into one of these
// at their boundary; nothing propagates a raw transport error to a caller.
type StatusError interface {
	error
	Status() StatusCode
	Reason() string
	WithReason(reason string) StatusError
}

// errorWithStatus is the internal implementation of StatusError.
type errorWithStatus struct {
	err    error
	status StatusCode
	reason string
}

// Error returns the error message.
func (e errorWithStatus) Error() string {
	return e.err.Error()
}

// Status returns the error status.
func (e errorWithStatus) Status() StatusCode {
	return e.status
}

// Reason returns the reason code surfaced to clients, such as "lock_conflict".
func (e errorWithStatus) Reason() string {
	return e.reason
}

// Unwrap returns the underlying error for error chain compatibility.
func (e errorWithStatus) Unwrap() error {
	return e.err
}

// WithReason returns a new StatusError with the given reason code.
func (e errorWithStatus) WithReason(reason string) StatusError {
	return errorWithStatus{
		err:    e.err,
		status: e.status,
		reason: reason,
	}
}

func newErrorWithStatus(err error, status StatusCode) StatusError {
	return errorWithStatus{
		err:    err,
		status: status,
	}
}

// InvalidArgument creates a new "invalid argument" error.
func InvalidArgument(message string) StatusError {
	return newErrorWithStatus(errors.New(message), StatusInvalidArgument)
}

// NotFound creates a new "not found" error.
func NotFound(message string) StatusError {
	return newErrorWithStatus(errors.New(message), StatusNotFound)
}

// Forbidden creates a new "forbidden" error. Use this when the caller lacks
// the permission required for the operation, such as not being a collaborator.
func Forbidden(message string) StatusError {
	return newErrorWithStatus(errors.New(message), StatusForbidden)
}

// Conflict creates a new "conflict" error. Use this when a lock or a block
// held by someone else rejects the operation.
func Conflict(message string) StatusError {
	return newErrorWithStatus(errors.New(message), StatusConflict)
}

// Internal creates a new "internal" error for unexpected server-side failures.
func Internal(message string) StatusError {
	return newErrorWithStatus(errors.New(message), StatusInternal)
}

// Unavailable creates a new "unavailable" error. Use this when a coordination
// dependency itself is unreachable.
func Unavailable(message string) StatusError {
	return newErrorWithStatus(errors.New(message), StatusUnavailable)
}

// Unauthenticated creates a new "unauthenticated" error.
func Unauthenticated(message string) StatusError {
	return newErrorWithStatus(errors.New(message), StatusUnauthenticated)
}

// StatusOf extracts the status code from an error, unwrapping as needed.
// It returns 0 when the error carries no status.
func StatusOf(err error) StatusCode {
	if err == nil {
		return 0
	}

	var statusErr StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status()
	}

	return 0
}

// ReasonOf extracts the reason code from an error, unwrapping as needed.
// It returns the empty string when the error carries no reason.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}

	var statusErr StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Reason()
	}

	return ""
}

// IsStatus checks if the given error has the specified status code.
func IsStatus(err error, code StatusCode) bool {
	return StatusOf(err) == code
}
