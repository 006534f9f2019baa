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

// Package appmaster implements the long-lived in-cluster process that
// owns all mutable application state: the container registry, the
// dependency scheduler, the reconciler toward the cluster interface and
// the restart policy. The spec, registry and scheduler share one
// coarse-grained lock on the Master; the key-value store is a separate
// lock domain.
package appmaster

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mrocklin/skein/pkg/cluster"
	"github.com/mrocklin/skein/pkg/common"
	"github.com/mrocklin/skein/pkg/keyvalue"
	"github.com/mrocklin/skein/pkg/locking"
	"github.com/mrocklin/skein/pkg/log"
	"github.com/mrocklin/skein/pkg/metrics"
	"github.com/mrocklin/skein/pkg/model"
)

// Injected container environment.
const (
	EnvAppMasterAddress = "SKEIN_APPMASTER_ADDRESS"
	EnvService          = "SKEIN_SERVICE"
	EnvInstance         = "SKEIN_INSTANCE"
	EnvContainerID      = "SKEIN_CONTAINER_ID"
)

// Master holds the authoritative state of one application. It is built
// per application and passed by reference to the RPC handlers and the
// cluster event callbacks; there are no package-level singletons so
// tests can run many masters in one process.
type Master struct {
	locking.RWMutex
	appID       string
	user        string
	spec        *model.ApplicationSpec
	registry    *registry
	rec         *reconciler
	kv          *keyvalue.Store
	api         cluster.API
	host        string
	port        int
	trackingURL string

	maxCapability model.Resources
	state         model.ApplicationState
	finalStatus   model.FinalStatus
	diagnostics   string
	startTime     time.Time
	finishTime    time.Time
	shuttingDown  bool
	finished      bool

	// usage accumulators for finished containers
	memorySeconds int64
	vcoreSeconds  int64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMaster validates the spec and builds a master for it. No cluster
// traffic happens before Start.
func NewMaster(appID string, user string, spec *model.ApplicationSpec, api cluster.API) (*Master, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Master{
		appID:       appID,
		user:        user,
		spec:        spec,
		registry:    newRegistry(spec),
		rec:         newReconciler(api),
		kv:          keyvalue.NewStore(),
		api:         api,
		state:       model.AppStateNew,
		finalStatus: model.FinalUndefined,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}, nil
}

// KV exposes the embedded key-value store.
func (m *Master) KV() *keyvalue.Store {
	return m.kv
}

// ApplicationID returns the application id the master serves.
func (m *Master) ApplicationID() string {
	return m.appID
}

// Done is closed once the master has unregistered and stopped.
func (m *Master) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until the master has stopped.
func (m *Master) Wait() {
	<-m.done
}

// Start registers with the cluster, creates the initial WAITING
// instances and begins requesting containers for services whose
// dependencies are already satisfied.
func (m *Master) Start(host string, port int, trackingURL string) error {
	var resp *cluster.RegistrationResponse
	err := m.rec.call(func() error {
		var e error
		resp, e = m.api.Register(host, port, trackingURL)
		return e
	})
	if err != nil {
		m.finish(model.FinalFailed, fmt.Sprintf("cluster operation %q failed: %v", "register", err))
		return common.Unavailable("failed to register with the cluster: %v", err)
	}

	// requests beyond the cluster maximum can never be granted
	for _, name := range m.spec.ServiceNames() {
		res := m.spec.Services[name].Resources
		if res.Memory > resp.MaxCapability.Memory || res.Vcores > resp.MaxCapability.Vcores {
			diag := fmt.Sprintf("service %q requests memory=%d vcores=%d, exceeding the cluster maximum memory=%d vcores=%d",
				name, res.Memory, res.Vcores, resp.MaxCapability.Memory, resp.MaxCapability.Vcores)
			if uerr := m.api.Unregister(model.FinalFailed, diag); uerr != nil {
				log.Logger().Error("failed to unregister", zap.Error(uerr))
			}
			m.finish(model.FinalFailed, diag)
			return common.ResourceExhausted("%s", diag)
		}
	}

	type blockedService struct {
		name    string
		depends []string
	}
	var asks []cluster.Request
	var blocked []blockedService
	m.Lock()
	m.host = host
	m.port = port
	m.trackingURL = trackingURL
	m.maxCapability = resp.MaxCapability
	m.state = model.AppStateRunning
	m.startTime = time.Now()
	for _, name := range m.spec.ServiceNames() {
		s := m.registry.services[name]
		for i := 0; i < s.desired; i++ {
			m.registry.newInstance(s)
		}
		if len(s.spec.Depends) == 0 {
			s.ready = true
			for _, c := range s.waiting() {
				asks = append(asks, m.rec.enqueue(c, s.spec.Resources))
			}
		} else {
			blocked = append(blocked, blockedService{name: name, depends: s.spec.Depends})
		}
	}
	m.updateGaugesLocked()
	m.Unlock()

	for _, entry := range blocked {
		go m.watchDependencies(entry.name, entry.depends)
	}
	log.Logger().Info("application master started",
		zap.String("appID", m.appID),
		zap.String("host", host),
		zap.Int("port", port),
		zap.Int("services", len(m.spec.Services)))
	m.issueRequests(asks)
	return nil
}

// issueRequests sends allocation requests to the cluster, outside the
// master lock. Persistent failure is fatal to the application.
func (m *Master) issueRequests(asks []cluster.Request) {
	if len(asks) == 0 {
		return
	}
	if err := m.rec.call(func() error { return m.api.RequestContainers(asks) }); err != nil {
		m.fatal("requestContainers", err)
	}
}

// issueStops sends stop requests to the cluster, outside the master lock.
func (m *Master) issueStops(yarnContainerIDs []string) {
	for _, id := range yarnContainerIDs {
		id := id
		if err := m.rec.call(func() error { return m.api.StopContainer(id) }); err != nil {
			m.fatal("stopContainer", err)
			return
		}
	}
}

// fatal terminates the application after a cluster operation exhausted
// its retry budget.
func (m *Master) fatal(op string, err error) {
	log.Logger().Error("cluster operation failed after retries",
		zap.String("operation", op),
		zap.Error(err))
	if serr := m.Shutdown(model.FinalFailed, fmt.Sprintf("cluster operation %q failed after retries: %v", op, err)); serr != nil {
		log.Logger().Debug("shutdown after fatal error", zap.Error(serr))
	}
}

// OnContainersAllocated binds grants to the oldest compatible pending
// instances and launches them. Grants with no taker are released.
func (m *Master) OnContainersAllocated(allocations []cluster.Allocated) {
	type launchItem struct {
		container *Container
		id        string
		launch    *cluster.LaunchContext
	}
	var launches []launchItem
	var releases []string

	m.Lock()
	if m.shuttingDown {
		for _, alloc := range allocations {
			releases = append(releases, alloc.ContainerID)
		}
	} else {
		for _, alloc := range allocations {
			c := m.rec.dequeueOldestMatch(alloc.Resources)
			if c == nil {
				log.Logger().Info("releasing allocation with no pending instance",
					zap.String("yarnContainerID", alloc.ContainerID))
				releases = append(releases, alloc.ContainerID)
				continue
			}
			if err := m.registry.bindAllocation(c, alloc.ContainerID); err != nil {
				log.Logger().Error("failed to bind allocation",
					zap.String("container", c.ID()),
					zap.String("yarnContainerID", alloc.ContainerID),
					zap.Error(err))
				releases = append(releases, alloc.ContainerID)
				continue
			}
			launches = append(launches, launchItem{c, alloc.ContainerID, m.launchContextLocked(c)})
		}
		m.updateGaugesLocked()
	}
	m.Unlock()

	for _, id := range releases {
		id := id
		if err := m.rec.call(func() error { return m.api.ReleaseContainer(id) }); err != nil {
			m.fatal("releaseContainer", err)
			return
		}
	}
	for _, item := range launches {
		item := item
		if err := m.rec.call(func() error { return m.api.LaunchContainer(item.id, item.launch) }); err != nil {
			m.fatal("launchContainer", err)
			return
		}
		m.Lock()
		if err := m.registry.onLaunched(item.container); err != nil {
			// killed between bind and launch ack; the stop is in flight
			log.Logger().Debug("launch acknowledged for finished container",
				zap.String("container", item.container.ID()),
				zap.Error(err))
		} else {
			metrics.GetMasterMetrics().IncContainersRunning()
		}
		m.updateGaugesLocked()
		m.Unlock()
	}
}

// launchContextLocked builds the launch context for a bound instance,
// injecting the master address and the container identity.
func (m *Master) launchContextLocked(c *Container) *cluster.LaunchContext {
	s := m.registry.services[c.serviceName]
	env := make(map[string]string, len(s.spec.Env)+4)
	for k, v := range s.spec.Env {
		env[k] = v
	}
	env[EnvAppMasterAddress] = fmt.Sprintf("%s:%d", m.host, m.port)
	env[EnvService] = c.serviceName
	env[EnvInstance] = strconv.Itoa(c.instance)
	env[EnvContainerID] = c.yarnContainerID

	files := make(map[string]model.File, len(s.spec.Files))
	for dest, file := range s.spec.Files {
		files[dest] = file
	}
	return &cluster.LaunchContext{
		Files:    files,
		Env:      env,
		Commands: append([]string(nil), s.spec.Commands...),
	}
}

// OnShutdownRequest handles a cluster-initiated shutdown.
func (m *Master) OnShutdownRequest() {
	if err := m.Shutdown(model.FinalKilled, "shutdown requested by the resource manager"); err != nil {
		log.Logger().Debug("cluster shutdown request ignored", zap.Error(err))
	}
}

// OnNodesUpdated is informational only; placement is the cluster's job.
func (m *Master) OnNodesUpdated(numNodes int) {
	log.Logger().Debug("cluster nodes updated", zap.Int("nodes", numNodes))
}

// Scale sets a new desired instance count for a service. Scale-up
// creates fresh WAITING instances; scale-down removes WAITING instances
// first and then kills the highest-indexed active instances.
func (m *Master) Scale(service string, count int) error {
	if count < 0 {
		return common.InvalidArgument("instance count must be >= 0, got %d", count)
	}
	var asks []cluster.Request
	var stops []string

	m.Lock()
	if m.shuttingDown {
		m.Unlock()
		return common.FailedPrecondition("application is shutting down")
	}
	s, err := m.registry.service(service)
	if err != nil {
		m.Unlock()
		return err
	}
	if s.failed {
		m.Unlock()
		return common.FailedPrecondition("service %q has failed", service)
	}
	current := len(s.nonTerminal())
	switch {
	case count > current:
		for i := current; i < count; i++ {
			c := m.registry.newInstance(s)
			if s.ready {
				asks = append(asks, m.rec.enqueue(c, s.spec.Resources))
			}
		}
	case count < current:
		stops = m.shrinkLocked(s, current-count)
	}
	s.desired = count
	m.updateGaugesLocked()
	m.Unlock()

	log.Logger().Info("service scaled",
		zap.String("service", service),
		zap.Int("instances", count))
	m.issueRequests(asks)
	m.issueStops(stops)
	return nil
}

// shrinkLocked removes excess instances: WAITING ones first without any
// cluster traffic, then active ones highest instance index first.
func (m *Master) shrinkLocked(s *serviceRuntime, excess int) []string {
	var stops []string
	waiting := s.waiting()
	for i := len(waiting) - 1; i >= 0 && excess > 0; i-- {
		c := waiting[i]
		m.rec.remove(c)
		m.registry.kill(c)
		excess--
	}
	if excess == 0 {
		return stops
	}
	active := s.nonTerminal()
	sort.Slice(active, func(i, j int) bool { return active[i].instance > active[j].instance })
	for _, c := range active {
		if excess == 0 {
			break
		}
		running := c.CurrentState() == model.ContainerRunning
		if m.registry.kill(c) {
			if running {
				metrics.GetMasterMetrics().DecContainersRunning()
			}
			if c.yarnContainerID != "" {
				stops = append(stops, c.yarnContainerID)
			}
			excess--
		}
	}
	return stops
}

// KillContainer terminates a single instance. Killing a terminal
// instance is an idempotent no-op. A kill never counts as a service
// failure and the instance is not replaced.
func (m *Master) KillContainer(service string, instance int) error {
	var stops []string
	m.Lock()
	c, err := m.registry.lookupInstance(service, instance)
	if err != nil {
		m.Unlock()
		return err
	}
	if c.IsTerminal() {
		m.Unlock()
		return nil
	}
	running := c.CurrentState() == model.ContainerRunning
	m.rec.remove(c)
	if m.registry.kill(c) {
		if running {
			metrics.GetMasterMetrics().DecContainersRunning()
		}
		if c.yarnContainerID != "" {
			stops = append(stops, c.yarnContainerID)
		}
	}
	m.updateGaugesLocked()
	m.Unlock()

	m.issueStops(stops)
	return nil
}

// Shutdown initiates graceful termination: no further allocations are
// accepted, every non-terminal container is killed, the master
// unregisters and stops. Repeating a shutdown with the same final
// status is a no-op; a different status is rejected.
func (m *Master) Shutdown(finalStatus model.FinalStatus, diagnostics string) error {
	switch finalStatus {
	case model.FinalSucceeded, model.FinalFailed, model.FinalKilled:
	default:
		return common.InvalidArgument("invalid final status %q", finalStatus)
	}

	var stops []string
	m.Lock()
	if m.shuttingDown {
		prev := m.finalStatus
		m.Unlock()
		if prev == finalStatus {
			return nil
		}
		return common.FailedPrecondition("shutdown already in progress with final status %s", prev)
	}
	m.shuttingDown = true
	m.finalStatus = finalStatus
	m.diagnostics = diagnostics
	m.rec.removeAll()
	for _, name := range m.serviceNamesLocked() {
		s := m.registry.services[name]
		for _, c := range s.nonTerminal() {
			running := c.CurrentState() == model.ContainerRunning
			if m.registry.kill(c) {
				if running {
					metrics.GetMasterMetrics().DecContainersRunning()
				}
				if c.yarnContainerID != "" {
					stops = append(stops, c.yarnContainerID)
				}
			}
		}
	}
	m.updateGaugesLocked()
	m.Unlock()

	log.Logger().Info("application master shutting down",
		zap.String("appID", m.appID),
		zap.String("finalStatus", string(finalStatus)),
		zap.String("diagnostics", diagnostics))

	for _, id := range stops {
		id := id
		if err := m.rec.call(func() error { return m.api.StopContainer(id) }); err != nil {
			log.Logger().Error("failed to stop container during shutdown",
				zap.String("yarnContainerID", id),
				zap.Error(err))
		}
	}
	if err := m.rec.call(func() error { return m.api.Unregister(finalStatus, diagnostics) }); err != nil {
		log.Logger().Error("failed to unregister from the cluster", zap.Error(err))
	}
	m.finish(finalStatus, diagnostics)
	return nil
}

// finish marks the master terminal and releases waiters.
func (m *Master) finish(finalStatus model.FinalStatus, diagnostics string) {
	m.Lock()
	if m.finished {
		m.Unlock()
		return
	}
	m.finished = true
	m.shuttingDown = true
	m.state = model.AppStateFinished
	m.finalStatus = finalStatus
	if m.diagnostics == "" {
		m.diagnostics = diagnostics
	}
	m.finishTime = time.Now()
	m.Unlock()
	m.cancel()
	close(m.done)
}

func (m *Master) serviceNamesLocked() []string {
	names := make([]string, 0, len(m.registry.services))
	for name := range m.registry.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Master) updateGaugesLocked() {
	waiting, requested := 0, 0
	for _, s := range m.registry.services {
		waiting += s.countInState(model.ContainerWaiting)
		requested += s.countInState(model.ContainerRequested)
	}
	mm := metrics.GetMasterMetrics()
	mm.SetContainersWaiting(waiting)
	mm.SetContainersRequested(requested)
}

// GetSpec returns the immutable application specification.
func (m *Master) GetSpec() *model.ApplicationSpec {
	return m.spec
}

// GetService returns the specification of one service.
func (m *Master) GetService(name string) (*model.Service, error) {
	service, ok := m.spec.Services[name]
	if !ok {
		return nil, common.NotFound("unknown service %q", name)
	}
	return service, nil
}

// GetContainers returns a filtered snapshot of container records.
func (m *Master) GetContainers(states []model.ContainerState, services []string) ([]model.Container, error) {
	m.RLock()
	defer m.RUnlock()
	return m.registry.snapshot(states, services)
}
