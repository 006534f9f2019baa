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

package model

import (
	"fmt"
	"time"
)

// Container is the externally visible state of a single container
// instance, projected out of the application master.
type Container struct {
	ServiceName     string         `json:"service_name" yaml:"service_name"`
	Instance        int            `json:"instance" yaml:"instance"`
	State           ContainerState `json:"state" yaml:"state"`
	YarnContainerID string         `json:"yarn_container_id,omitempty" yaml:"yarn_container_id,omitempty"`
	StartTime       time.Time      `json:"start_time,omitempty" yaml:"start_time,omitempty"`
	FinishTime      time.Time      `json:"finish_time,omitempty" yaml:"finish_time,omitempty"`
}

// ID is the service name and instance identity of the container,
// "<service>_<instance>".
func (c *Container) ID() string {
	return fmt.Sprintf("%s_%d", c.ServiceName, c.Instance)
}

// Runtime is the elapsed time of the container, using now for containers
// that have not finished and zero for containers that have not started.
func (c *Container) Runtime() time.Duration {
	if c.StartTime.IsZero() {
		return 0
	}
	if c.FinishTime.IsZero() {
		return time.Since(c.StartTime)
	}
	return c.FinishTime.Sub(c.StartTime)
}

// ResourceUsageReport aggregates resource usage for an application.
type ResourceUsageReport struct {
	MemorySeconds     int64     `json:"memory_seconds" yaml:"memory_seconds"`
	VcoreSeconds      int64     `json:"vcore_seconds" yaml:"vcore_seconds"`
	NumUsedContainers int32     `json:"num_used_containers" yaml:"num_used_containers"`
	NeededResources   Resources `json:"needed_resources" yaml:"needed_resources"`
	ReservedResources Resources `json:"reserved_resources" yaml:"reserved_resources"`
	UsedResources     Resources `json:"used_resources" yaml:"used_resources"`
}

// ApplicationReport is the status projection consumed by the client-side
// daemon. Host and Port locate the master RPC endpoint once the
// application is running.
type ApplicationReport struct {
	ID          string              `json:"id" yaml:"id"`
	Name        string              `json:"name" yaml:"name"`
	User        string              `json:"user" yaml:"user"`
	Queue       string              `json:"queue" yaml:"queue"`
	Tags        []string            `json:"tags,omitempty" yaml:"tags,omitempty"`
	Host        string              `json:"host" yaml:"host"`
	Port        int                 `json:"port" yaml:"port"`
	TrackingURL string              `json:"tracking_url" yaml:"tracking_url"`
	State       ApplicationState    `json:"state" yaml:"state"`
	FinalStatus FinalStatus         `json:"final_status" yaml:"final_status"`
	Progress    float32             `json:"progress" yaml:"progress"`
	Usage       ResourceUsageReport `json:"usage" yaml:"usage"`
	Diagnostics string              `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
	StartTime   time.Time           `json:"start_time,omitempty" yaml:"start_time,omitempty"`
	FinishTime  time.Time           `json:"finish_time,omitempty" yaml:"finish_time,omitempty"`
}

// Address is the "host:port" of the master RPC endpoint, empty until the
// application master has registered.
func (r *ApplicationReport) Address() string {
	if r.Host == "" || r.Port == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Runtime is the elapsed time of the application.
func (r *ApplicationReport) Runtime() time.Duration {
	if r.StartTime.IsZero() {
		return 0
	}
	if r.FinishTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.FinishTime.Sub(r.StartTime)
}
