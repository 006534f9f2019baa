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

// Package cluster defines the narrow capability surface the application
// master consumes from the resource manager and node managers. The real
// YARN protocols live behind this boundary; tests use the in-memory
// implementation from the mock sub package.
package cluster

import (
	"github.com/mrocklin/skein/pkg/model"
)

// Standard YARN container exit codes used for completion classification.
const (
	ExitSuccess             = 0
	ExitAborted             = -100
	ExitPreempted           = -102
	ExitKilledByAppMaster   = -105
	ExitKilledByResourceMgr = -106
)

// ClassifyExit maps a container exit status onto the terminal container
// state: 0 succeeded, user or cluster initiated kills map to KILLED and
// everything else is a failure.
func ClassifyExit(exitStatus int) model.ContainerState {
	switch exitStatus {
	case ExitSuccess:
		return model.ContainerSucceeded
	case ExitAborted, ExitPreempted, ExitKilledByAppMaster, ExitKilledByResourceMgr:
		return model.ContainerKilled
	default:
		return model.ContainerFailed
	}
}

// Request asks the cluster for one container with the given resources.
type Request struct {
	Resources model.Resources
}

// Allocated is a granted container not yet launched.
type Allocated struct {
	ContainerID string
	Resources   model.Resources
	NodeHost    string
}

// Completed reports a finished container.
type Completed struct {
	ContainerID string
	ExitStatus  int
	Diagnostics string
}

// LaunchContext carries everything needed to start a process in a
// granted container.
type LaunchContext struct {
	Files    map[string]model.File
	Env      map[string]string
	Commands []string
	Tokens   []byte
}

// RegistrationResponse is returned on master registration.
type RegistrationResponse struct {
	Queue         string
	MaxCapability model.Resources
}

// API is the call surface toward the cluster. Implementations must
// tolerate concurrent calls.
type API interface {
	// Register announces the master endpoint and returns cluster limits.
	Register(host string, port int, trackingURL string) (*RegistrationResponse, error)
	// Unregister reports the final status and detaches the master.
	Unregister(finalStatus model.FinalStatus, diagnostics string) error
	// RequestContainers issues allocation requests; grants arrive
	// asynchronously through the event handler.
	RequestContainers(requests []Request) error
	// ReleaseContainer returns a granted but unwanted container.
	ReleaseContainer(containerID string) error
	// LaunchContainer starts a process in a granted container.
	LaunchContainer(containerID string, launch *LaunchContext) error
	// StopContainer stops a launched container; a completion event
	// with a kill exit status follows.
	StopContainer(containerID string) error
}

// EventHandler is the sink for asynchronous cluster events. The master
// implements this.
type EventHandler interface {
	OnContainersAllocated(allocations []Allocated)
	OnContainersCompleted(completions []Completed)
	OnShutdownRequest()
	OnNodesUpdated(numNodes int)
}
