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
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/mrocklin/skein/pkg/common"
	"github.com/mrocklin/skein/pkg/model"
	"github.com/mrocklin/skein/pkg/webservice/dao"
)

// EnvAppMasterAddress locates the master from inside a container.
const EnvAppMasterAddress = "SKEIN_APPMASTER_ADDRESS"

// MasterClient talks to one application master.
type MasterClient struct {
	rest *rest
}

func NewMasterClient(address string) *MasterClient {
	return &MasterClient{rest: newREST(address)}
}

// MasterFromEnv builds a client from the container environment.
func MasterFromEnv() (*MasterClient, error) {
	address := os.Getenv(EnvAppMasterAddress)
	if address == "" {
		return nil, common.InvalidArgument("%s is not set, not running inside a skein container?", EnvAppMasterAddress)
	}
	return NewMasterClient(address), nil
}

func (c *MasterClient) Status(ctx context.Context) (*model.ApplicationReport, error) {
	var report model.ApplicationReport
	if err := c.rest.do(ctx, http.MethodGet, "/ws/v1/status", nil, nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *MasterClient) GetSpec(ctx context.Context) (*model.ApplicationSpec, error) {
	var spec model.ApplicationSpec
	if err := c.rest.do(ctx, http.MethodGet, "/ws/v1/spec", nil, nil, &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

func (c *MasterClient) GetService(ctx context.Context, name string) (*model.Service, error) {
	var service model.Service
	if err := c.rest.do(ctx, http.MethodGet, "/ws/v1/services/"+url.PathEscape(name), nil, nil, &service); err != nil {
		return nil, err
	}
	return &service, nil
}

func (c *MasterClient) Scale(ctx context.Context, service string, instances int) error {
	path := fmt.Sprintf("/ws/v1/services/%s/instances", url.PathEscape(service))
	return c.rest.do(ctx, http.MethodPut, path, nil, dao.ScaleRequest{Instances: instances}, nil)
}

func (c *MasterClient) GetContainers(ctx context.Context, states []model.ContainerState, services []string) ([]model.Container, error) {
	query := url.Values{}
	for _, state := range states {
		query.Add("state", string(state))
	}
	for _, service := range services {
		query.Add("service", service)
	}
	var containers []model.Container
	if err := c.rest.do(ctx, http.MethodGet, "/ws/v1/containers", query, nil, &containers); err != nil {
		return nil, err
	}
	return containers, nil
}

func (c *MasterClient) KillContainer(ctx context.Context, service string, instance int) error {
	path := fmt.Sprintf("/ws/v1/containers/%s/%s", url.PathEscape(service), strconv.Itoa(instance))
	return c.rest.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// KVGet fetches a key. With wait set the call blocks server-side until
// the key appears or ctx is done.
func (c *MasterClient) KVGet(ctx context.Context, key string, wait bool) (string, error) {
	query := url.Values{}
	if wait {
		query.Set("wait", "true")
	}
	var kv dao.KeyValueDAO
	if err := c.rest.do(ctx, http.MethodGet, "/ws/v1/kv/"+url.PathEscape(key), query, nil, &kv); err != nil {
		return "", err
	}
	return kv.Value, nil
}

func (c *MasterClient) KVSet(ctx context.Context, key string, value string) error {
	return c.rest.do(ctx, http.MethodPut, "/ws/v1/kv/"+url.PathEscape(key), nil, []byte(value), nil)
}

func (c *MasterClient) KVDelete(ctx context.Context, key string) (bool, error) {
	var out map[string]bool
	if err := c.rest.do(ctx, http.MethodDelete, "/ws/v1/kv/"+url.PathEscape(key), nil, nil, &out); err != nil {
		return false, err
	}
	return out["deleted"], nil
}

func (c *MasterClient) KVList(ctx context.Context) (map[string]string, error) {
	var entries []dao.KeyValueDAO
	if err := c.rest.do(ctx, http.MethodGet, "/ws/v1/kv", nil, nil, &entries); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		out[entry.Key] = entry.Value
	}
	return out, nil
}

func (c *MasterClient) Shutdown(ctx context.Context, finalStatus model.FinalStatus, diagnostics string) error {
	req := dao.ShutdownRequest{FinalStatus: string(finalStatus), Diagnostics: diagnostics}
	return c.rest.do(ctx, http.MethodPost, "/ws/v1/shutdown", nil, req, nil)
}
