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
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/mrocklin/skein/pkg/log"
	"github.com/mrocklin/skein/pkg/model"
)

const noTransition = "no transition"

// ----------------------------------
// container events
// ----------------------------------
type containerEvent int

const (
	RequestContainer containerEvent = iota
	LaunchContainer
	SucceedContainer
	FailContainer
	KillContainer
)

func (ce containerEvent) String() string {
	return [...]string{"requestContainer", "launchContainer", "succeedContainer", "failContainer", "killContainer"}[ce]
}

func completionEvent(state model.ContainerState) containerEvent {
	switch state {
	case model.ContainerSucceeded:
		return SucceedContainer
	case model.ContainerKilled:
		return KillContainer
	default:
		return FailContainer
	}
}

// NewContainerState builds the container state machine. The states are
// the wire-level container states; illegal transitions are rejected by
// the fsm, never coerced.
//
// The first event argument must always be a *Container, a runtime panic
// will occur otherwise.
func NewContainerState() *fsm.FSM {
	return fsm.NewFSM(
		string(model.ContainerWaiting), fsm.Events{
			{
				Name: RequestContainer.String(),
				Src:  []string{string(model.ContainerWaiting)},
				Dst:  string(model.ContainerRequested),
			}, {
				Name: LaunchContainer.String(),
				Src:  []string{string(model.ContainerRequested)},
				Dst:  string(model.ContainerRunning),
			}, {
				// a container may finish before the launch ack is processed
				Name: SucceedContainer.String(),
				Src:  []string{string(model.ContainerRequested), string(model.ContainerRunning)},
				Dst:  string(model.ContainerSucceeded),
			}, {
				Name: FailContainer.String(),
				Src:  []string{string(model.ContainerRequested), string(model.ContainerRunning)},
				Dst:  string(model.ContainerFailed),
			}, {
				Name: KillContainer.String(),
				Src:  []string{string(model.ContainerWaiting), string(model.ContainerRequested), string(model.ContainerRunning)},
				Dst:  string(model.ContainerKilled),
			},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, event *fsm.Event) {
				container := event.Args[0].(*Container) //nolint:errcheck
				log.Logger().Info("Container state transition",
					zap.String("container", container.ID()),
					zap.String("source", event.Src),
					zap.String("destination", event.Dst),
					zap.String("event", event.Event))
			},
			"enter_" + string(model.ContainerRunning): func(_ context.Context, event *fsm.Event) {
				container := event.Args[0].(*Container) //nolint:errcheck
				container.startTime = time.Now()
			},
		},
	)
}
