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
	"testing"

	"gotest.tools/v3/assert"
)

func TestStatusErrorFormatting(t *testing.T) {
	err := NotFound("key %q is not set", "foo")
	assert.Equal(t, err.Error(), `NOT_FOUND: key "foo" is not set`)
	assert.Equal(t, CodeOf(err), CodeNotFound)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeOf(nil), CodeOK)
	assert.Equal(t, CodeOf(errors.New("plain")), CodeInternal)
	assert.Equal(t, CodeOf(InvalidArgument("bad")), CodeInvalidArgument)
	// wrapped status errors keep their code
	wrapped := fmt.Errorf("context: %w", Unavailable("down"))
	assert.Equal(t, CodeOf(wrapped), CodeUnavailable)
}

func TestParseCodeRoundTrip(t *testing.T) {
	for c := CodeOK; c <= CodeInternal; c++ {
		assert.Equal(t, ParseCode(c.String()), c)
	}
	assert.Equal(t, ParseCode("NO_SUCH_CODE"), CodeInternal)
}

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, CodeOK.HTTPStatus(), http.StatusOK)
	assert.Equal(t, CodeInvalidArgument.HTTPStatus(), http.StatusBadRequest)
	assert.Equal(t, CodeNotFound.HTTPStatus(), http.StatusNotFound)
	assert.Equal(t, CodeFailedPrecondition.HTTPStatus(), http.StatusConflict)
	assert.Equal(t, CodeUnavailable.HTTPStatus(), http.StatusServiceUnavailable)
	assert.Equal(t, CodeInternal.HTTPStatus(), http.StatusInternalServerError)
}
