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
	"time"

	"github.com/mrocklin/skein/pkg/model"
)

// accumulateUsageLocked folds a finished container into the usage
// aggregates.
func (m *Master) accumulateUsageLocked(c *Container, resources model.Resources) {
	if c.startTime.IsZero() {
		return
	}
	seconds := int64(c.finishTime.Sub(c.startTime) / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	m.memorySeconds += resources.Memory * seconds
	m.vcoreSeconds += int64(resources.Vcores) * seconds
}

// Report projects the master state into the application report the
// daemon consumes. Progress is finished container records over all
// records, forced to 1 on termination.
func (m *Master) Report() *model.ApplicationReport {
	m.RLock()
	defer m.RUnlock()

	expected, finished := m.registry.totals()
	var progress float32
	switch {
	case m.state == model.AppStateFinished:
		progress = 1
	case expected > 0:
		progress = float32(finished) / float32(expected)
	}

	var used, needed model.Resources
	running := int32(0)
	memorySeconds, vcoreSeconds := m.memorySeconds, m.vcoreSeconds
	now := time.Now()
	for _, s := range m.registry.services {
		for _, c := range s.containers {
			switch c.CurrentState() {
			case model.ContainerRunning:
				running++
				used.Memory += s.spec.Resources.Memory
				used.Vcores += s.spec.Resources.Vcores
				seconds := int64(now.Sub(c.startTime) / time.Second)
				if seconds > 0 {
					memorySeconds += s.spec.Resources.Memory * seconds
					vcoreSeconds += int64(s.spec.Resources.Vcores) * seconds
				}
			case model.ContainerWaiting, model.ContainerRequested:
				needed.Memory += s.spec.Resources.Memory
				needed.Vcores += s.spec.Resources.Vcores
			}
		}
	}

	return &model.ApplicationReport{
		ID:          m.appID,
		Name:        m.spec.Name,
		User:        m.user,
		Queue:       m.spec.Queue,
		Tags:        m.spec.Tags,
		Host:        m.host,
		Port:        m.port,
		TrackingURL: m.trackingURL,
		State:       m.state,
		FinalStatus: m.finalStatus,
		Progress:    progress,
		Usage: model.ResourceUsageReport{
			MemorySeconds:     memorySeconds,
			VcoreSeconds:      vcoreSeconds,
			NumUsedContainers: running,
			NeededResources:   needed,
			UsedResources:     used,
		},
		Diagnostics: m.diagnostics,
		StartTime:   m.startTime,
		FinishTime:  m.finishTime,
	}
}
