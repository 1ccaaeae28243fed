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

// Package errors provides structured error management for the server with
// status codes for transport mapping and reason codes for clients.
package errors

import (
	"fmt"
	"net/http"
)

// StatusCode classifies an error for transport mapping. Every error that
// crosses a component boundary carries one of these codes.
type StatusCode int

const (
	// StatusInvalidArgument indicates that the client specified an invalid
	// argument regardless of the state of the system.
	StatusInvalidArgument StatusCode = 3

	// StatusNotFound indicates that a requested entity was not found.
	StatusNotFound StatusCode = 5

	// StatusForbidden indicates that the caller is identified but not
	// permitted to perform the operation.
	StatusForbidden StatusCode = 7

	// StatusConflict indicates that the operation lost to a competing holder
	// of a lock or block. The caller may retry later.
	StatusConflict StatusCode = 9

	// StatusInternal indicates an unexpected server-side failure.
	StatusInternal StatusCode = 13

	// StatusUnavailable indicates that a coordination dependency is
	// unreachable. Distinct from StatusConflict: the caller must not treat
	// it as a lock denial.
	StatusUnavailable StatusCode = 14

	// StatusUnauthenticated indicates that the request carries no valid
	// caller identity.
	StatusUnauthenticated StatusCode = 16
)

// String returns the string representation of the status code.
func (c StatusCode) String() string {
	switch c {
	case StatusInvalidArgument:
		return "invalid_argument"
	case StatusNotFound:
		return "not_found"
	case StatusForbidden:
		return "forbidden"
	case StatusConflict:
		return "conflict"
	case StatusInternal:
		return "internal"
	case StatusUnavailable:
		return "unavailable"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return fmt.Sprintf("code_%d", int(c))
	}
}

// HTTPStatus returns the HTTP status code used when surfacing the error.
func (c StatusCode) HTTPStatus() int {
	switch c {
	case StatusInvalidArgument:
		return http.StatusBadRequest
	case StatusNotFound:
		return http.StatusNotFound
	case StatusForbidden:
		return http.StatusForbidden
	case StatusConflict:
		return http.StatusConflict
	case StatusUnavailable:
		return http.StatusServiceUnavailable
	case StatusUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// IsClientError returns true if the status code represents a client-side error.
func (c StatusCode) IsClientError() bool {
	switch c {
	case StatusInvalidArgument, StatusNotFound, StatusForbidden,
		StatusConflict, StatusUnauthenticated:
		return true
	default:
		return false
	}
}

// IsServerError returns true if the status code represents a server-side error.
func (c StatusCode) IsServerError() bool {
	switch c {
	case StatusInternal, StatusUnavailable:
		return true
	default:
		return false
	}
}
