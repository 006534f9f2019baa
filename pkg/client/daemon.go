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

package client

import (
	"context"
	"net/http"
	"net/url"
	"os"

	"github.com/mrocklin/skein/pkg/common"
	"github.com/mrocklin/skein/pkg/model"
)

// EnvDaemonAddress locates the daemon for the command line client.
const EnvDaemonAddress = "SKEIN_DAEMON_ADDRESS"

// DaemonClient talks to the client-side daemon.
type DaemonClient struct {
	rest *rest
}

func NewDaemonClient(address string) *DaemonClient {
	return &DaemonClient{rest: newREST(address)}
}

// DaemonFromEnv builds a client from SKEIN_DAEMON_ADDRESS.
func DaemonFromEnv() (*DaemonClient, error) {
	address := os.Getenv(EnvDaemonAddress)
	if address == "" {
		return nil, common.InvalidArgument("%s is not set, is the daemon running?", EnvDaemonAddress)
	}
	return NewDaemonClient(address), nil
}

func (c *DaemonClient) Ping(ctx context.Context) error {
	return c.rest.do(ctx, http.MethodGet, "/ws/v1/ping", nil, nil, nil)
}

// Submit delivers a spec and returns the new application id.
func (c *DaemonClient) Submit(ctx context.Context, spec *model.ApplicationSpec) (string, error) {
	var out map[string]string
	if err := c.rest.do(ctx, http.MethodPost, "/ws/v1/applications", nil, spec, &out); err != nil {
		return "", err
	}
	return out["id"], nil
}

func (c *DaemonClient) Status(ctx context.Context, appID string) (*model.ApplicationReport, error) {
	var report model.ApplicationReport
	if err := c.rest.do(ctx, http.MethodGet, "/ws/v1/applications/"+url.PathEscape(appID), nil, nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *DaemonClient) Applications(ctx context.Context, states []model.ApplicationState) ([]*model.ApplicationReport, error) {
	query := url.Values{}
	for _, state := range states {
		query.Add("state", string(state))
	}
	var reports []*model.ApplicationReport
	if err := c.rest.do(ctx, http.MethodGet, "/ws/v1/applications", query, nil, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

// WaitForStart blocks until the application runs or terminates.
func (c *DaemonClient) WaitForStart(ctx context.Context, appID string) (*model.ApplicationReport, error) {
	var report model.ApplicationReport
	path := "/ws/v1/applications/" + url.PathEscape(appID) + "/waitforstart"
	if err := c.rest.do(ctx, http.MethodGet, path, nil, nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *DaemonClient) Kill(ctx context.Context, appID string) error {
	return c.rest.do(ctx, http.MethodDelete, "/ws/v1/applications/"+url.PathEscape(appID), nil, nil, nil)
}

// MasterFor resolves the master endpoint of a running application.
func (c *DaemonClient) MasterFor(ctx context.Context, appID string) (*MasterClient, error) {
	report, err := c.Status(ctx, appID)
	if err != nil {
		return nil, err
	}
	address := report.Address()
	if address == "" {
		return nil, common.Unavailable("application %s has no registered master endpoint (state %s)", appID, report.State)
	}
	return NewMasterClient(address), nil
}
