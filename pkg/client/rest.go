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

// Package client holds the HTTP clients for the master and daemon web
// services, used by the CLI and by code running inside containers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mrocklin/skein/pkg/common"
	"github.com/mrocklin/skein/pkg/webservice/dao"
)

// rest is a minimal JSON-over-HTTP caller shared by the clients.
type rest struct {
	base string
	http *http.Client
}

func newREST(address string) *rest {
	return &rest{
		base: "http://" + address,
		// no overall timeout: blocking calls (kv wait, waitForStart) are
		// bounded by the caller's context
		http: &http.Client{Transport: &http.Transport{
			ResponseHeaderTimeout: 0,
			IdleConnTimeout:       90 * time.Second,
		}},
	}
}

func (r *rest) do(ctx context.Context, method string, path string, query url.Values, in interface{}, out interface{}) error {
	var body io.Reader
	switch v := in.(type) {
	case nil:
	case []byte:
		body = bytes.NewReader(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	target := r.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := r.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return common.Cancelled("request cancelled: %v", ctx.Err())
		}
		return common.Unavailable("request to %s failed: %v", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr dao.APIError
		if decErr := json.NewDecoder(resp.Body).Decode(&apiErr); decErr == nil && apiErr.Code != "" {
			return common.NewStatusError(common.ParseCode(apiErr.Code), "%s", apiErr.Message)
		}
		return common.Internal("unexpected status %d from %s", resp.StatusCode, target)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", target, err)
	}
	return nil
}
