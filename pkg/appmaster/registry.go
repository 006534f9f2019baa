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

package appmaster

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mrocklin/skein/pkg/common"
	"github.com/mrocklin/skein/pkg/log"
	"github.com/mrocklin/skein/pkg/model"
)

// serviceRuntime is the mutable per-service state: the desired instance
// count, the monotone instance counter, the container records and the
// scheduler flags. Guarded by the master lock.
type serviceRuntime struct {
	name         string
	spec         *model.Service
	desired      int
	nextInstance int
	containers   []*Container
	// failures is the cumulative FAILED count, compared against
	// spec.MaxRestarts.
	failures int
	// ready is set once every dependency has a readiness key.
	ready bool
	// failed is set when the restart budget is exhausted.
	failed bool
	// lastExitStatus and lastDiagnostics describe the completion that
	// exhausted the budget.
	lastExitStatus  int
	lastDiagnostics string
}

func (s *serviceRuntime) nonTerminal() []*Container {
	var out []*Container
	for _, c := range s.containers {
		if !c.IsTerminal() {
			out = append(out, c)
		}
	}
	return out
}

// waiting returns the WAITING instances in insertion order.
func (s *serviceRuntime) waiting() []*Container {
	var out []*Container
	for _, c := range s.containers {
		if c.CurrentState() == model.ContainerWaiting {
			out = append(out, c)
		}
	}
	return out
}

func (s *serviceRuntime) countInState(state model.ContainerState) int {
	n := 0
	for _, c := range s.containers {
		if c.CurrentState() == state {
			n++
		}
	}
	return n
}

// isComplete reports whether the service has nothing left to run: either
// no instances are desired any more, or every desired instance succeeded
// and no instance is still in flight.
func (s *serviceRuntime) isComplete() bool {
	if len(s.nonTerminal()) > 0 {
		return false
	}
	if s.desired == 0 {
		return true
	}
	return s.countInState(model.ContainerSucceeded) >= s.desired
}

// registry is the authoritative table of container records, indexed per
// service and by granted yarn container id. Mutated only under the
// master lock.
type registry struct {
	services map[string]*serviceRuntime
	byYarnID map[string]*Container
}

func newRegistry(spec *model.ApplicationSpec) *registry {
	r := &registry{
		services: make(map[string]*serviceRuntime, len(spec.Services)),
		byYarnID: make(map[string]*Container),
	}
	for name, service := range spec.Services {
		r.services[name] = &serviceRuntime{
			name:    name,
			spec:    service,
			desired: service.Instances,
		}
	}
	return r
}

func (r *registry) service(name string) (*serviceRuntime, error) {
	s, ok := r.services[name]
	if !ok {
		return nil, common.NotFound("unknown service %q", name)
	}
	return s, nil
}

// newInstance creates a WAITING record with the next instance index.
func (r *registry) newInstance(s *serviceRuntime) *Container {
	c := newContainer(s.name, s.nextInstance)
	s.nextInstance++
	s.containers = append(s.containers, c)
	return c
}

// bindAllocation attaches a granted container to the record, moving it
// WAITING -> REQUESTED.
func (r *registry) bindAllocation(c *Container, yarnContainerID string) error {
	if _, ok := r.byYarnID[yarnContainerID]; ok {
		return common.Internal("container id %q already bound", yarnContainerID)
	}
	if err := c.handleEvent(RequestContainer); err != nil {
		return err
	}
	c.yarnContainerID = yarnContainerID
	r.byYarnID[yarnContainerID] = c
	return nil
}

// onLaunched acknowledges a successful launch, REQUESTED -> RUNNING.
func (r *registry) onLaunched(c *Container) error {
	return c.handleEvent(LaunchContainer)
}

// onCompleted applies a terminal completion. Events targeting an already
// terminal record are logged no-ops.
func (r *registry) onCompleted(c *Container, state model.ContainerState, exitStatus int, diagnostics string) bool {
	if c.IsTerminal() {
		log.Logger().Info("ignoring completion for terminal container",
			zap.String("container", c.ID()),
			zap.String("state", string(c.CurrentState())))
		return false
	}
	if err := c.handleEvent(completionEvent(state)); err != nil {
		log.Logger().Error("rejected container completion transition",
			zap.String("container", c.ID()),
			zap.String("target", string(state)),
			zap.Error(err))
		return false
	}
	c.finishTime = time.Now()
	c.exitStatus = exitStatus
	c.diagnostics = diagnostics
	return true
}

// kill moves any non-terminal record to KILLED. Terminal records are
// left untouched and reported as already done.
func (r *registry) kill(c *Container) bool {
	if c.IsTerminal() {
		log.Logger().Debug("kill of terminal container is a no-op",
			zap.String("container", c.ID()))
		return false
	}
	if err := c.handleEvent(KillContainer); err != nil {
		log.Logger().Error("rejected container kill transition",
			zap.String("container", c.ID()),
			zap.Error(err))
		return false
	}
	c.finishTime = time.Now()
	return true
}

func (r *registry) lookupYarnID(yarnContainerID string) *Container {
	return r.byYarnID[yarnContainerID]
}

func (r *registry) lookupInstance(service string, instance int) (*Container, error) {
	s, err := r.service(service)
	if err != nil {
		return nil, err
	}
	for _, c := range s.containers {
		if c.instance == instance {
			return c, nil
		}
	}
	return nil, common.NotFound("service %q has no container instance %d", service, instance)
}

// snapshot copies out the records matching the filters, sorted by
// service name then instance. Nil filters match everything.
func (r *registry) snapshot(states []model.ContainerState, services []string) ([]model.Container, error) {
	var stateSet map[model.ContainerState]bool
	if len(states) > 0 {
		stateSet = make(map[model.ContainerState]bool, len(states))
		for _, state := range states {
			stateSet[state] = true
		}
	}
	selected := services
	if len(selected) == 0 {
		for name := range r.services {
			selected = append(selected, name)
		}
	} else {
		for _, name := range selected {
			if _, ok := r.services[name]; !ok {
				return nil, common.NotFound("unknown service %q", name)
			}
		}
	}
	sort.Strings(selected)

	var out []model.Container
	for _, name := range selected {
		for _, c := range r.services[name].containers {
			if stateSet != nil && !stateSet[c.CurrentState()] {
				continue
			}
			out = append(out, c.snapshot())
		}
	}
	return out, nil
}

// totals returns the number of records and the number of terminal
// records, across all services.
func (r *registry) totals() (expected int, finished int) {
	for _, s := range r.services {
		expected += len(s.containers)
		for _, c := range s.containers {
			if c.IsTerminal() {
				finished++
			}
		}
	}
	return expected, finished
}
