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

// Package mock provides a deterministic in-memory cluster used by tests.
// Allocation and completion sequences are driven
// explicitly by the caller, or immediately on request in auto-allocate
// mode.
package mock

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mrocklin/skein/pkg/cluster"
	"github.com/mrocklin/skein/pkg/common"
	"github.com/mrocklin/skein/pkg/locking"
	"github.com/mrocklin/skein/pkg/log"
	"github.com/mrocklin/skein/pkg/model"
)

type containerSlot struct {
	id        string
	resources model.Resources
	launch    *cluster.LaunchContext
	stopped   bool
	completed bool
}

// Cluster is an in-memory cluster.API implementation.
type Cluster struct {
	locking.Mutex
	handler       cluster.EventHandler
	queue         string
	maxCapability model.Resources
	autoAllocate  bool

	registered   bool
	unregistered bool
	finalStatus  model.FinalStatus
	diagnostics  string

	nextID     int
	pending    []cluster.Request
	containers map[string]*containerSlot
	released   map[string]bool

	// failures maps an operation name to a number of injected transient
	// errors still to return for it.
	failures map[string]int
}

// Option configures the mock cluster.
type Option func(*Cluster)

// WithAutoAllocate grants every request immediately from within
// RequestContainers.
func WithAutoAllocate() Option {
	return func(c *Cluster) { c.autoAllocate = true }
}

// WithMaxCapability sets the largest single-container allocation.
func WithMaxCapability(resources model.Resources) Option {
	return func(c *Cluster) { c.maxCapability = resources }
}

func NewCluster(options ...Option) *Cluster {
	c := &Cluster{
		queue:         "default",
		maxCapability: model.Resources{Memory: 1 << 20, Vcores: 1 << 10},
		containers:    make(map[string]*containerSlot),
		released:      make(map[string]bool),
		failures:      make(map[string]int),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// SetEventHandler installs the event sink. Must be called before Register.
func (c *Cluster) SetEventHandler(handler cluster.EventHandler) {
	c.Lock()
	defer c.Unlock()
	c.handler = handler
}

// InjectFailures makes the next count calls of the named operation
// (register, request, release, launch, stop, unregister) fail with
// UNAVAILABLE.
func (c *Cluster) InjectFailures(op string, count int) {
	c.Lock()
	defer c.Unlock()
	c.failures[op] = count
}

func (c *Cluster) maybeFail(op string) error {
	if c.failures[op] > 0 {
		c.failures[op]--
		return common.Unavailable("injected %s failure", op)
	}
	return nil
}

func (c *Cluster) Register(host string, port int, trackingURL string) (*cluster.RegistrationResponse, error) {
	c.Lock()
	defer c.Unlock()
	if err := c.maybeFail("register"); err != nil {
		return nil, err
	}
	if c.registered {
		return nil, common.FailedPrecondition("master already registered")
	}
	c.registered = true
	log.Logger().Debug("mock cluster: master registered",
		zap.String("host", host),
		zap.Int("port", port),
		zap.String("trackingURL", trackingURL))
	return &cluster.RegistrationResponse{
		Queue:         c.queue,
		MaxCapability: c.maxCapability,
	}, nil
}

func (c *Cluster) Unregister(finalStatus model.FinalStatus, diagnostics string) error {
	c.Lock()
	defer c.Unlock()
	if err := c.maybeFail("unregister"); err != nil {
		return err
	}
	c.unregistered = true
	c.finalStatus = finalStatus
	c.diagnostics = diagnostics
	return nil
}

func (c *Cluster) RequestContainers(requests []cluster.Request) error {
	c.Lock()
	if err := c.maybeFail("request"); err != nil {
		c.Unlock()
		return err
	}
	c.pending = append(c.pending, requests...)
	auto := c.autoAllocate
	c.Unlock()

	if auto {
		c.AllocateNext(len(requests))
	}
	return nil
}

func (c *Cluster) ReleaseContainer(containerID string) error {
	c.Lock()
	defer c.Unlock()
	if err := c.maybeFail("release"); err != nil {
		return err
	}
	c.released[containerID] = true
	return nil
}

func (c *Cluster) LaunchContainer(containerID string, launch *cluster.LaunchContext) error {
	c.Lock()
	defer c.Unlock()
	if err := c.maybeFail("launch"); err != nil {
		return err
	}
	slot, ok := c.containers[containerID]
	if !ok {
		return common.NotFound("container %q was never allocated", containerID)
	}
	slot.launch = launch
	return nil
}

func (c *Cluster) StopContainer(containerID string) error {
	c.Lock()
	if err := c.maybeFail("stop"); err != nil {
		c.Unlock()
		return err
	}
	slot, ok := c.containers[containerID]
	if !ok {
		c.Unlock()
		return common.NotFound("container %q was never allocated", containerID)
	}
	alreadyDone := slot.completed
	slot.stopped = true
	c.Unlock()

	if !alreadyDone {
		c.CompleteContainer(containerID, cluster.ExitKilledByAppMaster, "Stopped by application master")
	}
	return nil
}

// AllocateNext grants up to n pending requests in FIFO order and
// delivers them through the event handler. It returns the allocations.
func (c *Cluster) AllocateNext(n int) []cluster.Allocated {
	c.Lock()
	if n > len(c.pending) {
		n = len(c.pending)
	}
	granted := make([]cluster.Allocated, 0, n)
	for i := 0; i < n; i++ {
		req := c.pending[i]
		c.nextID++
		id := fmt.Sprintf("container_%05d", c.nextID)
		c.containers[id] = &containerSlot{id: id, resources: req.Resources}
		granted = append(granted, cluster.Allocated{
			ContainerID: id,
			Resources:   req.Resources,
			NodeHost:    "node.example.com",
		})
	}
	c.pending = c.pending[n:]
	handler := c.handler
	c.Unlock()

	if handler != nil && len(granted) > 0 {
		handler.OnContainersAllocated(granted)
	}
	return granted
}

// CompleteContainer delivers a completion event for a granted container.
func (c *Cluster) CompleteContainer(containerID string, exitStatus int, diagnostics string) {
	c.Lock()
	slot, ok := c.containers[containerID]
	if ok {
		slot.completed = true
	}
	handler := c.handler
	c.Unlock()
	if !ok || handler == nil {
		return
	}
	handler.OnContainersCompleted([]cluster.Completed{{
		ContainerID: containerID,
		ExitStatus:  exitStatus,
		Diagnostics: diagnostics,
	}})
}

// CompleteAllRunning finishes every launched, uncompleted container with
// the given exit status.
func (c *Cluster) CompleteAllRunning(exitStatus int, diagnostics string) {
	c.Lock()
	var ids []string
	for id, slot := range c.containers {
		if slot.launch != nil && !slot.completed && !slot.stopped {
			ids = append(ids, id)
		}
	}
	c.Unlock()
	for _, id := range ids {
		c.CompleteContainer(id, exitStatus, diagnostics)
	}
}

// RequestShutdown delivers a shutdown request event.
func (c *Cluster) RequestShutdown() {
	c.Lock()
	handler := c.handler
	c.Unlock()
	if handler != nil {
		handler.OnShutdownRequest()
	}
}

// PendingRequests returns the number of unanswered allocation requests.
func (c *Cluster) PendingRequests() int {
	c.Lock()
	defer c.Unlock()
	return len(c.pending)
}

// Launched reports whether the container was launched, and its context.
func (c *Cluster) Launched(containerID string) (*cluster.LaunchContext, bool) {
	c.Lock()
	defer c.Unlock()
	slot, ok := c.containers[containerID]
	if !ok || slot.launch == nil {
		return nil, false
	}
	return slot.launch, true
}

// Stopped reports whether a stop was issued for the container.
func (c *Cluster) Stopped(containerID string) bool {
	c.Lock()
	defer c.Unlock()
	slot, ok := c.containers[containerID]
	return ok && slot.stopped
}

// Released reports whether the container was released unused.
func (c *Cluster) Released(containerID string) bool {
	c.Lock()
	defer c.Unlock()
	return c.released[containerID]
}

// Unregistered returns the recorded final status once the master detached.
func (c *Cluster) Unregistered() (model.FinalStatus, string, bool) {
	c.Lock()
	defer c.Unlock()
	return c.finalStatus, c.diagnostics, c.unregistered
}
