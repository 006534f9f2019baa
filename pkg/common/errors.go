/*
 Licensed to the Apache Software Foundation (ASF) under one
 or more contributor license agreements.  See the NOTICE file
 distributed with this work for additional information
 regarding copyright ownership.  The ASF licenses this file
 to you under the Apache License, Version 2.0 (the
 "License"); you may not use this file except in compliance
 with the License.  You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package common

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies the errors surfaced on the master and daemon RPC surfaces.
type Code int

const (
	CodeOK Code = iota
	CodeInvalidArgument
	CodeNotFound
	CodeFailedPrecondition
	CodeResourceExhausted
	CodeUnavailable
	CodeCancelled
	CodeInternal
)

func (c Code) String() string {
	return [...]string{"OK", "INVALID_ARGUMENT", "NOT_FOUND", "FAILED_PRECONDITION", "RESOURCE_EXHAUSTED", "UNAVAILABLE", "CANCELLED", "INTERNAL"}[c]
}

// HTTPStatus maps a code onto the status used by the web services.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeOK:
		return http.StatusOK
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeFailedPrecondition:
		return http.StatusConflict
	case CodeResourceExhausted:
		return http.StatusUnprocessableEntity
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeCancelled:
		// the client disconnected or its deadline expired
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// StatusError is an error carrying an RPC code.
type StatusError struct {
	Code    Code
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewStatusError(code Code, format string, args ...interface{}) *StatusError {
	return &StatusError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func InvalidArgument(format string, args ...interface{}) *StatusError {
	return NewStatusError(CodeInvalidArgument, format, args...)
}

func NotFound(format string, args ...interface{}) *StatusError {
	return NewStatusError(CodeNotFound, format, args...)
}

func FailedPrecondition(format string, args ...interface{}) *StatusError {
	return NewStatusError(CodeFailedPrecondition, format, args...)
}

func ResourceExhausted(format string, args ...interface{}) *StatusError {
	return NewStatusError(CodeResourceExhausted, format, args...)
}

func Unavailable(format string, args ...interface{}) *StatusError {
	return NewStatusError(CodeUnavailable, format, args...)
}

func Cancelled(format string, args ...interface{}) *StatusError {
	return NewStatusError(CodeCancelled, format, args...)
}

func Internal(format string, args ...interface{}) *StatusError {
	return NewStatusError(CodeInternal, format, args...)
}

// ParseCode maps a code name back onto the code, INTERNAL when unknown.
func ParseCode(s string) Code {
	for c := CodeOK; c <= CodeInternal; c++ {
		if c.String() == s {
			return c
		}
	}
	return CodeInternal
}

// CodeOf extracts the code from an error, defaulting to INTERNAL for
// errors that carry none.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}
