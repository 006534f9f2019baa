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
	"testing"

	"gotest.tools/v3/assert"

	"github.com/mrocklin/skein/pkg/model"
)

func TestContainerLifecycle(t *testing.T) {
	c := newContainer("web", 0)
	assert.Equal(t, c.ID(), "web_0")
	assert.Equal(t, c.CurrentState(), model.ContainerWaiting)

	assert.NilError(t, c.handleEvent(RequestContainer))
	assert.Equal(t, c.CurrentState(), model.ContainerRequested)

	assert.NilError(t, c.handleEvent(LaunchContainer))
	assert.Equal(t, c.CurrentState(), model.ContainerRunning)
	assert.Assert(t, !c.startTime.IsZero(), "start time set on entering running")

	assert.NilError(t, c.handleEvent(SucceedContainer))
	assert.Equal(t, c.CurrentState(), model.ContainerSucceeded)
	assert.Assert(t, c.IsTerminal())
}

func TestContainerIllegalTransitions(t *testing.T) {
	// succeed straight from waiting is illegal
	c := newContainer("web", 0)
	err := c.handleEvent(SucceedContainer)
	assert.Assert(t, err != nil, "error expected waiting to succeeded")
	assert.Equal(t, c.CurrentState(), model.ContainerWaiting)

	// launch before request is illegal
	err = c.handleEvent(LaunchContainer)
	assert.Assert(t, err != nil, "error expected waiting to running")

	// no event leaves a terminal state
	assert.NilError(t, c.handleEvent(KillContainer))
	assert.Equal(t, c.CurrentState(), model.ContainerKilled)
	err = c.handleEvent(RequestContainer)
	assert.Assert(t, err != nil, "error expected killed to requested")
	assert.Equal(t, c.CurrentState(), model.ContainerKilled)
}

func TestContainerFailurePaths(t *testing.T) {
	// requested containers can fail before launch
	c := newContainer("w", 3)
	assert.NilError(t, c.handleEvent(RequestContainer))
	assert.NilError(t, c.handleEvent(FailContainer))
	assert.Equal(t, c.CurrentState(), model.ContainerFailed)

	// waiting containers can be killed without any cluster traffic
	c = newContainer("w", 4)
	assert.NilError(t, c.handleEvent(KillContainer))
	assert.Equal(t, c.CurrentState(), model.ContainerKilled)
}

func TestCompletionEventMapping(t *testing.T) {
	assert.Equal(t, completionEvent(model.ContainerSucceeded), SucceedContainer)
	assert.Equal(t, completionEvent(model.ContainerFailed), FailContainer)
	assert.Equal(t, completionEvent(model.ContainerKilled), KillContainer)
}
