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
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/mrocklin/skein/pkg/cluster"
	"github.com/mrocklin/skein/pkg/cluster/mock"
	"github.com/mrocklin/skein/pkg/common"
	"github.com/mrocklin/skein/pkg/model"
)

func testService(instances int, maxRestarts int, depends ...string) *model.Service {
	return &model.Service{
		Instances:   instances,
		MaxRestarts: maxRestarts,
		Resources:   model.Resources{Memory: 512, Vcores: 1},
		Commands:    []string{"./run.sh"},
		Depends:     depends,
	}
}

func testSpec(services map[string]*model.Service) *model.ApplicationSpec {
	return &model.ApplicationSpec{
		Name:        "test",
		Queue:       "default",
		MaxAttempts: 1,
		Services:    services,
	}
}

func newTestMaster(t *testing.T, spec *model.ApplicationSpec, options ...mock.Option) (*Master, *mock.Cluster) {
	t.Helper()
	api := mock.NewCluster(options...)
	master, err := NewMaster("application_1526134340_0012", "alice", spec, api)
	assert.NilError(t, err)
	api.SetEventHandler(master)
	return master, api
}

func startMaster(t *testing.T, master *Master) {
	t.Helper()
	assert.NilError(t, master.Start("master.example.com", 8080, "http://master.example.com:8080"))
}

func containersIn(t *testing.T, master *Master, service string, state model.ContainerState) []model.Container {
	t.Helper()
	containers, err := master.GetContainers([]model.ContainerState{state}, []string{service})
	assert.NilError(t, err)
	return containers
}

func waitForState(t *testing.T, master *Master, service string, state model.ContainerState, count int) {
	t.Helper()
	assert.NilError(t, common.WaitFor(time.Millisecond, 2*time.Second, func() bool {
		return len(containersIn(t, master, service, state)) == count
	}))
}

func TestSingleServiceSuccess(t *testing.T) {
	master, api := newTestMaster(t,
		testSpec(map[string]*model.Service{"a": testService(1, 0)}),
		mock.WithAutoAllocate())
	startMaster(t, master)

	running := containersIn(t, master, "a", model.ContainerRunning)
	assert.Equal(t, len(running), 1)
	launch, ok := api.Launched(running[0].YarnContainerID)
	assert.Assert(t, ok)
	assert.Equal(t, launch.Env[EnvService], "a")
	assert.Equal(t, launch.Env[EnvInstance], "0")
	assert.Equal(t, launch.Env[EnvAppMasterAddress], "master.example.com:8080")
	assert.Equal(t, launch.Env[EnvContainerID], running[0].YarnContainerID)

	api.CompleteContainer(running[0].YarnContainerID, 0, "")
	master.Wait()

	report := master.Report()
	assert.Equal(t, report.State, model.AppStateFinished)
	assert.Equal(t, report.FinalStatus, model.FinalSucceeded)
	assert.Equal(t, report.Progress, float32(1))

	finalStatus, _, unregistered := api.Unregistered()
	assert.Assert(t, unregistered)
	assert.Equal(t, finalStatus, model.FinalSucceeded)
}

func TestDependencyRendezvous(t *testing.T) {
	master, _ := newTestMaster(t,
		testSpec(map[string]*model.Service{
			"a": testService(1, 0),
			"b": testService(1, 0, "a"),
		}),
		mock.WithAutoAllocate())
	startMaster(t, master)

	// "a" launches immediately, "b" is dependency blocked
	waitForState(t, master, "a", model.ContainerRunning, 1)
	assert.Equal(t, len(containersIn(t, master, "b", model.ContainerWaiting)), 1)

	// the container of "a" declares readiness through the kv store
	assert.NilError(t, master.KV().Set("a", "ready"))
	waitForState(t, master, "b", model.ContainerRunning, 1)
}

func TestDependencyBlockedServiceRequestsNothing(t *testing.T) {
	master, api := newTestMaster(t,
		testSpec(map[string]*model.Service{
			"a": testService(1, 0),
			"b": testService(2, 0, "a"),
		}))
	startMaster(t, master)

	// only the instance of "a" is asked for
	assert.Equal(t, api.PendingRequests(), 1)
	assert.NilError(t, master.KV().Set("a", "ready"))
	assert.NilError(t, common.WaitFor(time.Millisecond, 2*time.Second, func() bool {
		return api.PendingRequests() == 3
	}))
}

func TestBoundedRestart(t *testing.T) {
	master, api := newTestMaster(t,
		testSpec(map[string]*model.Service{"w": testService(1, 2)}),
		mock.WithAutoAllocate())
	startMaster(t, master)

	// fail the running container three times: two restarts, then the
	// budget is exhausted
	for i := 0; i < 3; i++ {
		waitForState(t, master, "w", model.ContainerRunning, 1)
		running := containersIn(t, master, "w", model.ContainerRunning)
		assert.Equal(t, running[0].Instance, i)
		api.CompleteContainer(running[0].YarnContainerID, 1, "exit 1")
	}
	master.Wait()

	failed := containersIn(t, master, "w", model.ContainerFailed)
	assert.Equal(t, len(failed), 3)
	report := master.Report()
	assert.Equal(t, report.FinalStatus, model.FinalFailed)
	assert.Assert(t, strings.Contains(report.Diagnostics, `"w"`), "diagnostics should name the service: %s", report.Diagnostics)
}

func TestKilledContainerIsNotRestarted(t *testing.T) {
	master, api := newTestMaster(t,
		testSpec(map[string]*model.Service{"a": testService(2, 5)}),
		mock.WithAutoAllocate())
	startMaster(t, master)
	waitForState(t, master, "a", model.ContainerRunning, 2)

	assert.NilError(t, master.KillContainer("a", 1))
	killed := containersIn(t, master, "a", model.ContainerKilled)
	assert.Equal(t, len(killed), 1)
	assert.Assert(t, api.Stopped(killed[0].YarnContainerID))

	// no replacement instance appears and the application keeps running
	time.Sleep(20 * time.Millisecond)
	all, err := master.GetContainers(nil, []string{"a"})
	assert.NilError(t, err)
	assert.Equal(t, len(all), 2)
	assert.Equal(t, master.Report().State, model.AppStateRunning)

	// killing a terminal instance is an idempotent no-op
	assert.NilError(t, master.KillContainer("a", 1))
	assert.NilError(t, master.KillContainer("a", 1))
}

func TestKillContainerUnknown(t *testing.T) {
	master, _ := newTestMaster(t,
		testSpec(map[string]*model.Service{"a": testService(1, 0)}),
		mock.WithAutoAllocate())
	startMaster(t, master)

	err := master.KillContainer("ghost", 0)
	assert.Equal(t, common.CodeOf(err), common.CodeNotFound)
	err = master.KillContainer("a", 17)
	assert.Equal(t, common.CodeOf(err), common.CodeNotFound)
}

func TestScaleUpAndDown(t *testing.T) {
	master, _ := newTestMaster(t,
		testSpec(map[string]*model.Service{"n": testService(2, 0)}),
		mock.WithAutoAllocate())
	startMaster(t, master)
	waitForState(t, master, "n", model.ContainerRunning, 2)

	// scale up creates instances 2 and 3
	assert.NilError(t, master.Scale("n", 4))
	waitForState(t, master, "n", model.ContainerRunning, 4)
	running := containersIn(t, master, "n", model.ContainerRunning)
	instances := map[int]bool{}
	for _, c := range running {
		instances[c.Instance] = true
	}
	assert.Assert(t, instances[2] && instances[3])

	// scale down kills the highest indexed instances first
	assert.NilError(t, master.Scale("n", 1))
	running = containersIn(t, master, "n", model.ContainerRunning)
	assert.Equal(t, len(running), 1)
	assert.Equal(t, running[0].Instance, 0)
	killed := containersIn(t, master, "n", model.ContainerKilled)
	assert.Equal(t, len(killed), 3)
}

func TestScaleToZeroAndBack(t *testing.T) {
	master, _ := newTestMaster(t,
		testSpec(map[string]*model.Service{"n": testService(2, 0)}),
		mock.WithAutoAllocate())
	startMaster(t, master)
	waitForState(t, master, "n", model.ContainerRunning, 2)

	assert.NilError(t, master.Scale("n", 0))
	assert.Equal(t, len(containersIn(t, master, "n", model.ContainerRunning)), 0)
	// a scale mutation alone never terminates the application
	assert.Equal(t, master.Report().State, model.AppStateRunning)

	// scaling back re-creates fresh instances with new indices
	assert.NilError(t, master.Scale("n", 2))
	waitForState(t, master, "n", model.ContainerRunning, 2)
	for _, c := range containersIn(t, master, "n", model.ContainerRunning) {
		assert.Assert(t, c.Instance >= 2, "expected a fresh instance, got %d", c.Instance)
	}
}

func TestScaleValidation(t *testing.T) {
	master, _ := newTestMaster(t,
		testSpec(map[string]*model.Service{"a": testService(1, 0)}),
		mock.WithAutoAllocate())
	startMaster(t, master)

	err := master.Scale("a", -1)
	assert.Equal(t, common.CodeOf(err), common.CodeInvalidArgument)
	err = master.Scale("ghost", 1)
	assert.Equal(t, common.CodeOf(err), common.CodeNotFound)
}

func TestScaleDownDropsWaitingFirst(t *testing.T) {
	// without auto allocation every instance stays WAITING
	master, api := newTestMaster(t,
		testSpec(map[string]*model.Service{"a": testService(3, 0)}))
	startMaster(t, master)
	assert.Equal(t, len(containersIn(t, master, "a", model.ContainerWaiting)), 3)

	assert.NilError(t, master.Scale("a", 1))
	assert.Equal(t, len(containersIn(t, master, "a", model.ContainerWaiting)), 1)
	// no stop traffic was needed for waiting instances
	assert.Equal(t, len(containersIn(t, master, "a", model.ContainerKilled)), 2)

	// the already-issued requests stay outstanding; their grants find no
	// taker beyond the one pending instance and are released
	granted := api.AllocateNext(3)
	assert.Equal(t, len(granted), 3)
	assert.Equal(t, len(containersIn(t, master, "a", model.ContainerRunning)), 1)
	released := 0
	for _, alloc := range granted {
		if api.Released(alloc.ContainerID) {
			released++
		}
	}
	assert.Equal(t, released, 2)
}

func TestGracefulShutdown(t *testing.T) {
	master, api := newTestMaster(t,
		testSpec(map[string]*model.Service{"a": testService(3, 0)}),
		mock.WithAutoAllocate())
	startMaster(t, master)
	waitForState(t, master, "a", model.ContainerRunning, 3)

	assert.NilError(t, master.Shutdown(model.FinalSucceeded, ""))
	master.Wait()

	assert.Equal(t, len(containersIn(t, master, "a", model.ContainerKilled)), 3)
	report := master.Report()
	assert.Equal(t, report.State, model.AppStateFinished)
	assert.Equal(t, report.FinalStatus, model.FinalSucceeded)
	finalStatus, _, unregistered := api.Unregistered()
	assert.Assert(t, unregistered)
	assert.Equal(t, finalStatus, model.FinalSucceeded)
}

func TestShutdownIdempotence(t *testing.T) {
	master, _ := newTestMaster(t,
		testSpec(map[string]*model.Service{"a": testService(1, 0)}),
		mock.WithAutoAllocate())
	startMaster(t, master)

	assert.NilError(t, master.Shutdown(model.FinalSucceeded, ""))
	// same status again is a no-op
	assert.NilError(t, master.Shutdown(model.FinalSucceeded, ""))
	assert.Equal(t, master.Report().FinalStatus, model.FinalSucceeded)
	// a different status is rejected
	err := master.Shutdown(model.FinalFailed, "changed my mind")
	assert.Equal(t, common.CodeOf(err), common.CodeFailedPrecondition)
	assert.Equal(t, master.Report().FinalStatus, model.FinalSucceeded)

	err = master.Shutdown("BOGUS", "")
	assert.Equal(t, common.CodeOf(err), common.CodeInvalidArgument)
}

func TestScaleAfterShutdownRejected(t *testing.T) {
	master, _ := newTestMaster(t,
		testSpec(map[string]*model.Service{"a": testService(1, 0)}),
		mock.WithAutoAllocate())
	startMaster(t, master)
	assert.NilError(t, master.Shutdown(model.FinalKilled, "done"))

	err := master.Scale("a", 5)
	assert.Equal(t, common.CodeOf(err), common.CodeFailedPrecondition)
}

func TestResourceRequestExceedsClusterMax(t *testing.T) {
	master, api := newTestMaster(t,
		testSpec(map[string]*model.Service{"big": testService(1, 0)}),
		mock.WithMaxCapability(model.Resources{Memory: 256, Vcores: 1}))

	err := master.Start("master.example.com", 8080, "")
	assert.Equal(t, common.CodeOf(err), common.CodeResourceExhausted)
	master.Wait()
	assert.Equal(t, master.Report().FinalStatus, model.FinalFailed)
	finalStatus, diagnostics, unregistered := api.Unregistered()
	assert.Assert(t, unregistered)
	assert.Equal(t, finalStatus, model.FinalFailed)
	assert.Assert(t, strings.Contains(diagnostics, "exceeding the cluster maximum"), diagnostics)
}

func TestTransientClusterFailureIsRetried(t *testing.T) {
	master, api := newTestMaster(t,
		testSpec(map[string]*model.Service{"a": testService(1, 0)}),
		mock.WithAutoAllocate())
	api.InjectFailures("request", 2)
	startMaster(t, master)
	waitForState(t, master, "a", model.ContainerRunning, 1)
}

func TestPersistentClusterFailureFailsApplication(t *testing.T) {
	master, api := newTestMaster(t,
		testSpec(map[string]*model.Service{"a": testService(1, 0)}))
	api.InjectFailures("request", 100)
	startMaster(t, master)
	master.Wait()

	report := master.Report()
	assert.Equal(t, report.FinalStatus, model.FinalFailed)
	assert.Assert(t, strings.Contains(report.Diagnostics, "requestContainers"), report.Diagnostics)
}

func TestMultiInstanceServiceSucceedsWhenAllSucceed(t *testing.T) {
	master, api := newTestMaster(t,
		testSpec(map[string]*model.Service{"batch": testService(2, 0)}),
		mock.WithAutoAllocate())
	startMaster(t, master)
	waitForState(t, master, "batch", model.ContainerRunning, 2)

	running := containersIn(t, master, "batch", model.ContainerRunning)
	api.CompleteContainer(running[0].YarnContainerID, 0, "")
	// one of two done: the application keeps running
	assert.Equal(t, master.Report().State, model.AppStateRunning)
	api.CompleteContainer(running[1].YarnContainerID, 0, "")
	master.Wait()
	assert.Equal(t, master.Report().FinalStatus, model.FinalSucceeded)
}

func TestCompletionForTerminalContainerIsNoOp(t *testing.T) {
	master, api := newTestMaster(t,
		testSpec(map[string]*model.Service{"a": testService(1, -1)}),
		mock.WithAutoAllocate())
	startMaster(t, master)
	waitForState(t, master, "a", model.ContainerRunning, 1)
	running := containersIn(t, master, "a", model.ContainerRunning)

	assert.NilError(t, master.KillContainer("a", 0))
	// a late failure event for the killed container must not count as a
	// service failure or trigger a restart
	api.CompleteContainer(running[0].YarnContainerID, 1, "late event")
	time.Sleep(20 * time.Millisecond)
	all, err := master.GetContainers(nil, []string{"a"})
	assert.NilError(t, err)
	assert.Equal(t, len(all), 1)
	assert.Equal(t, string(all[0].State), string(model.ContainerKilled))
}

func TestUnlimitedRestarts(t *testing.T) {
	master, api := newTestMaster(t,
		testSpec(map[string]*model.Service{"w": testService(1, -1)}),
		mock.WithAutoAllocate())
	startMaster(t, master)

	for i := 0; i < 5; i++ {
		waitForState(t, master, "w", model.ContainerRunning, 1)
		running := containersIn(t, master, "w", model.ContainerRunning)
		api.CompleteContainer(running[0].YarnContainerID, 1, "crash")
	}
	waitForState(t, master, "w", model.ContainerRunning, 1)
	assert.Equal(t, master.Report().State, model.AppStateRunning)
	failed := containersIn(t, master, "w", model.ContainerFailed)
	assert.Equal(t, len(failed), 5)
}

func TestShutdownRequestFromCluster(t *testing.T) {
	master, api := newTestMaster(t,
		testSpec(map[string]*model.Service{"a": testService(1, 0)}),
		mock.WithAutoAllocate())
	startMaster(t, master)

	api.RequestShutdown()
	master.Wait()
	assert.Equal(t, master.Report().FinalStatus, model.FinalKilled)
}

func TestClassifiedCompletions(t *testing.T) {
	assert.Equal(t, cluster.ClassifyExit(0), model.ContainerSucceeded)
	assert.Equal(t, cluster.ClassifyExit(1), model.ContainerFailed)
	assert.Equal(t, cluster.ClassifyExit(cluster.ExitPreempted), model.ContainerKilled)
	assert.Equal(t, cluster.ClassifyExit(cluster.ExitKilledByAppMaster), model.ContainerKilled)
}
