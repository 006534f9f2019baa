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

	"go.uber.org/zap"

	"github.com/mrocklin/skein/pkg/cluster"
	"github.com/mrocklin/skein/pkg/log"
)

// The dependency scheduler: a service becomes launch-eligible once every
// dependency name exists as a key in the key-value store. The readiness
// key for a service is its own name, written by its running containers
// when they declare readiness; eligibility is derived from the store and
// never materialized a second time.

// watchDependencies blocks on each readiness key in turn and flushes the
// service to the reconciler when all are present. Runs on its own
// goroutine per blocked service; the master context cancels it on
// shutdown.
func (m *Master) watchDependencies(service string, depends []string) {
	deps := append([]string(nil), depends...)
	sort.Strings(deps)
	for _, dep := range deps {
		if _, err := m.kv.Get(m.ctx, dep, true); err != nil {
			log.Logger().Debug("dependency watch cancelled",
				zap.String("service", service),
				zap.String("dependency", dep),
				zap.Error(err))
			return
		}
	}
	m.serviceReady(service)
}

// serviceReady marks the service launch-eligible and hands its WAITING
// instances to the reconciler in insertion order. Instances created
// afterwards are requested immediately because the flag stays set.
func (m *Master) serviceReady(service string) {
	var asks []cluster.Request
	m.Lock()
	if m.shuttingDown {
		m.Unlock()
		return
	}
	s, err := m.registry.service(service)
	if err != nil || s.ready {
		m.Unlock()
		return
	}
	s.ready = true
	for _, c := range s.waiting() {
		asks = append(asks, m.rec.enqueue(c, s.spec.Resources))
	}
	m.updateGaugesLocked()
	m.Unlock()

	log.Logger().Info("service dependencies satisfied",
		zap.String("service", service),
		zap.Int("pendingInstances", len(asks)))
	m.issueRequests(asks)
}
