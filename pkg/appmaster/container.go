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
	"context"
	"fmt"
	"time"

	"github.com/looplab/fsm"

	"github.com/mrocklin/skein/pkg/model"
)

// Container is one instance record of a service. Records are never
// reused: a restart creates a fresh record with the next instance index.
// All fields are guarded by the master lock.
type Container struct {
	serviceName     string
	instance        int
	yarnContainerID string
	startTime       time.Time
	finishTime      time.Time
	exitStatus      int
	diagnostics     string
	stateMachine    *fsm.FSM
}

func newContainer(serviceName string, instance int) *Container {
	return &Container{
		serviceName:  serviceName,
		instance:     instance,
		stateMachine: NewContainerState(),
	}
}

// ID is the "<service>_<instance>" identity of the record.
func (c *Container) ID() string {
	return fmt.Sprintf("%s_%d", c.serviceName, c.instance)
}

func (c *Container) CurrentState() model.ContainerState {
	return model.ContainerState(c.stateMachine.Current())
}

func (c *Container) IsTerminal() bool {
	return c.CurrentState().IsTerminal()
}

// handleEvent fires a state machine event. A same-state event is not an
// error; an illegal transition is.
func (c *Container) handleEvent(event containerEvent) error {
	err := c.stateMachine.Event(context.Background(), event.String(), c)
	if err != nil && err.Error() == noTransition {
		return nil
	}
	return err
}

func (c *Container) snapshot() model.Container {
	return model.Container{
		ServiceName:     c.serviceName,
		Instance:        c.instance,
		State:           c.CurrentState(),
		YarnContainerID: c.yarnContainerID,
		StartTime:       c.startTime,
		FinishTime:      c.finishTime,
	}
}
