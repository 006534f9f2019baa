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
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mrocklin/skein/pkg/cluster"
	"github.com/mrocklin/skein/pkg/log"
	"github.com/mrocklin/skein/pkg/metrics"
	"github.com/mrocklin/skein/pkg/model"
)

// OnContainersCompleted routes completion events into the registry and
// applies the restart policy:
//
//   - SUCCEEDED: never restarted.
//   - FAILED: restarted while the cumulative failure count stays within
//     max_restarts (-1 is unlimited); exhausting the budget fails the
//     service and with it the application.
//   - KILLED: user intent, never restarted and never counted as failure.
//
// Events for unknown or already-terminal records are logged no-ops.
func (m *Master) OnContainersCompleted(completions []cluster.Completed) {
	var asks []cluster.Request
	transitioned := false

	m.Lock()
	for _, comp := range completions {
		c := m.registry.lookupYarnID(comp.ContainerID)
		if c == nil {
			log.Logger().Debug("completion for unknown container",
				zap.String("yarnContainerID", comp.ContainerID))
			continue
		}
		if c.IsTerminal() {
			log.Logger().Debug("completion for terminal container",
				zap.String("container", c.ID()))
			continue
		}
		wasRunning := c.CurrentState() == model.ContainerRunning
		state := cluster.ClassifyExit(comp.ExitStatus)
		if !m.registry.onCompleted(c, state, comp.ExitStatus, comp.Diagnostics) {
			continue
		}
		transitioned = true
		s := m.registry.services[c.serviceName]
		m.accumulateUsageLocked(c, s.spec.Resources)

		mm := metrics.GetMasterMetrics()
		if wasRunning {
			mm.DecContainersRunning()
		}
		mm.IncContainerCompleted(strings.ToLower(string(state)))

		if state != model.ContainerFailed {
			continue
		}
		s.failures++
		if s.spec.MaxRestarts == -1 || s.failures <= s.spec.MaxRestarts {
			if len(s.nonTerminal()) < s.desired {
				restarted := m.registry.newInstance(s)
				mm.IncContainerRestarts()
				log.Logger().Info("restarting failed container",
					zap.String("container", c.ID()),
					zap.String("replacement", restarted.ID()),
					zap.Int("failures", s.failures))
				if s.ready {
					asks = append(asks, m.rec.enqueue(restarted, s.spec.Resources))
				}
			}
		} else {
			s.failed = true
			s.lastExitStatus = comp.ExitStatus
			s.lastDiagnostics = comp.Diagnostics
			log.Logger().Warn("service restart budget exhausted",
				zap.String("service", s.name),
				zap.Int("maxRestarts", s.spec.MaxRestarts),
				zap.Int("failures", s.failures))
		}
	}
	m.updateGaugesLocked()
	var finalStatus model.FinalStatus
	var diagnostics string
	finish := false
	if transitioned {
		finalStatus, diagnostics, finish = m.terminationLocked()
	}
	m.Unlock()

	m.issueRequests(asks)
	if finish {
		if err := m.Shutdown(finalStatus, diagnostics); err != nil {
			log.Logger().Debug("termination shutdown", zap.Error(err))
		}
	}
}

// terminationLocked decides whether the application is done. A failed
// service fails the application; the application succeeds once every
// service is complete. Scale mutations alone never terminate, only
// natural completions do.
func (m *Master) terminationLocked() (model.FinalStatus, string, bool) {
	if m.shuttingDown {
		return "", "", false
	}
	for _, name := range m.serviceNamesLocked() {
		s := m.registry.services[name]
		if s.failed {
			diag := fmt.Sprintf("service %q failed: restart budget (%d) exhausted; last container exited with status %d",
				name, s.spec.MaxRestarts, s.lastExitStatus)
			if s.lastDiagnostics != "" {
				diag = fmt.Sprintf("%s: %s", diag, s.lastDiagnostics)
			}
			return model.FinalFailed, diag, true
		}
	}
	for _, s := range m.registry.services {
		if !s.isComplete() {
			return "", "", false
		}
	}
	return model.FinalSucceeded, "", true
}
