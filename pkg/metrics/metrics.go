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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mrocklin/skein/pkg/log"
)

const (
	// Namespace used by all skein metrics
	Namespace = "skein"
	// MasterSubsystem - subsystem name used by the application master
	MasterSubsystem = "appmaster"
)

// MasterMetrics declares the application master metrics.
type MasterMetrics struct {
	containersRunning   prometheus.Gauge
	containersWaiting   prometheus.Gauge
	containersRequested prometheus.Gauge
	containerCompleted  *prometheus.CounterVec
	containerRestarts   prometheus.Counter
	kvEntries           prometheus.Gauge
	kvOps               *prometheus.CounterVec
}

func initMasterMetrics() *MasterMetrics {
	m := &MasterMetrics{}

	m.containersRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: MasterSubsystem,
			Name:      "containers_running",
			Help:      "Number of containers currently running.",
		})

	m.containersWaiting = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: MasterSubsystem,
			Name:      "containers_waiting",
			Help:      "Number of container instances in the WAITING state, blocked on service dependencies or not yet granted a container.",
		})

	m.containersRequested = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: MasterSubsystem,
			Name:      "containers_requested",
			Help:      "Number of container instances in the REQUESTED state, bound to a granted container and not yet launched.",
		})

	m.containerCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: MasterSubsystem,
			Name:      "containers_completed_total",
			Help:      "Total number of completed containers by final state. State is one of `succeeded`, `failed`, `killed`.",
		}, []string{"state"})

	m.containerRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: MasterSubsystem,
			Name:      "container_restarts_total",
			Help:      "Total number of container restarts after failure.",
		})

	m.kvEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: MasterSubsystem,
			Name:      "keyvalue_entries",
			Help:      "Number of entries in the key-value store.",
		})

	m.kvOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: MasterSubsystem,
			Name:      "keyvalue_ops_total",
			Help:      "Total number of key-value store operations. Op is one of `get`, `set`, `delete`.",
		}, []string{"op"})

	for _, metric := range []prometheus.Collector{
		m.containersRunning, m.containersWaiting, m.containersRequested,
		m.containerCompleted, m.containerRestarts, m.kvEntries, m.kvOps,
	} {
		if err := prometheus.Register(metric); err != nil {
			log.Logger().Warn("failed to register metrics collector", zap.Error(err))
		}
	}
	return m
}

func (m *MasterMetrics) IncContainersRunning() {
	m.containersRunning.Inc()
}

func (m *MasterMetrics) DecContainersRunning() {
	m.containersRunning.Dec()
}

func (m *MasterMetrics) SetContainersWaiting(n int) {
	m.containersWaiting.Set(float64(n))
}

func (m *MasterMetrics) SetContainersRequested(n int) {
	m.containersRequested.Set(float64(n))
}

func (m *MasterMetrics) IncContainerCompleted(state string) {
	m.containerCompleted.With(prometheus.Labels{"state": state}).Inc()
}

func (m *MasterMetrics) IncContainerRestarts() {
	m.containerRestarts.Inc()
}

func (m *MasterMetrics) SetKVEntries(n int) {
	m.kvEntries.Set(float64(n))
}

func (m *MasterMetrics) IncKVOp(op string) {
	m.kvOps.With(prometheus.Labels{"op": op}).Inc()
}
