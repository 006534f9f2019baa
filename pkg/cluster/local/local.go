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

// Package local executes containers as host processes. Every allocation
// request is granted immediately and a launch runs the service commands
// under the shell with the injected environment. It stands in for a
// real cluster in single-node runs; file localization is not performed.
package local

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/mrocklin/skein/pkg/cluster"
	"github.com/mrocklin/skein/pkg/common"
	"github.com/mrocklin/skein/pkg/locking"
	"github.com/mrocklin/skein/pkg/log"
	"github.com/mrocklin/skein/pkg/model"
)

type process struct {
	id        string
	resources model.Resources
	cmd       *exec.Cmd
	killed    bool
	done      bool
}

// Cluster runs containers as local child processes.
type Cluster struct {
	locking.Mutex
	handler cluster.EventHandler
	nextID  int
	procs   map[string]*process
}

func NewCluster() *Cluster {
	return &Cluster{procs: make(map[string]*process)}
}

// SetEventHandler installs the event sink. Must be called before Register.
func (c *Cluster) SetEventHandler(handler cluster.EventHandler) {
	c.Lock()
	defer c.Unlock()
	c.handler = handler
}

func (c *Cluster) Register(host string, port int, trackingURL string) (*cluster.RegistrationResponse, error) {
	log.Logger().Info("local cluster: master registered",
		zap.String("host", host),
		zap.Int("port", port))
	return &cluster.RegistrationResponse{
		Queue:         "default",
		MaxCapability: model.Resources{Memory: 1 << 20, Vcores: 1 << 10},
	}, nil
}

func (c *Cluster) Unregister(finalStatus model.FinalStatus, diagnostics string) error {
	log.Logger().Info("local cluster: master unregistered",
		zap.String("finalStatus", string(finalStatus)),
		zap.String("diagnostics", diagnostics))
	return nil
}

func (c *Cluster) RequestContainers(requests []cluster.Request) error {
	c.Lock()
	granted := make([]cluster.Allocated, 0, len(requests))
	for _, req := range requests {
		c.nextID++
		id := fmt.Sprintf("container_%05d", c.nextID)
		c.procs[id] = &process{id: id, resources: req.Resources}
		granted = append(granted, cluster.Allocated{
			ContainerID: id,
			Resources:   req.Resources,
			NodeHost:    "localhost",
		})
	}
	handler := c.handler
	c.Unlock()

	// deliver off the caller's stack like a real allocation callback
	go handler.OnContainersAllocated(granted)
	return nil
}

func (c *Cluster) ReleaseContainer(containerID string) error {
	c.Lock()
	defer c.Unlock()
	delete(c.procs, containerID)
	return nil
}

func (c *Cluster) LaunchContainer(containerID string, launch *cluster.LaunchContext) error {
	c.Lock()
	proc, ok := c.procs[containerID]
	if !ok {
		c.Unlock()
		return common.NotFound("container %q was never allocated", containerID)
	}

	script := strings.Join(launch.Commands, " && ")
	cmd := exec.Command("/bin/sh", "-c", script)
	cmd.Env = os.Environ()
	for k, v := range launch.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		c.Unlock()
		return common.Unavailable("failed to start container process: %v", err)
	}
	proc.cmd = cmd
	c.Unlock()

	go c.reap(proc)
	return nil
}

// reap waits for the process and reports its completion.
func (c *Cluster) reap(proc *process) {
	err := proc.cmd.Wait()
	exitStatus := 0
	diagnostics := ""
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitStatus = exitErr.ExitCode()
		diagnostics = exitErr.String()
	} else if err != nil {
		exitStatus = 1
		diagnostics = err.Error()
	}

	c.Lock()
	proc.done = true
	if proc.killed {
		exitStatus = cluster.ExitKilledByAppMaster
		diagnostics = "stopped by application master"
	}
	handler := c.handler
	c.Unlock()

	handler.OnContainersCompleted([]cluster.Completed{{
		ContainerID: proc.id,
		ExitStatus:  exitStatus,
		Diagnostics: diagnostics,
	}})
}

func (c *Cluster) StopContainer(containerID string) error {
	c.Lock()
	proc, ok := c.procs[containerID]
	if !ok {
		c.Unlock()
		return common.NotFound("container %q was never allocated", containerID)
	}
	proc.killed = true
	cmd := proc.cmd
	done := proc.done
	c.Unlock()

	if cmd != nil && cmd.Process != nil && !done {
		if err := cmd.Process.Kill(); err != nil {
			log.Logger().Debug("failed to kill container process",
				zap.String("containerID", containerID),
				zap.Error(err))
		}
	}
	return nil
}
