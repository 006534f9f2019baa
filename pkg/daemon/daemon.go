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

// Package daemon is the client-side proxy between skein users and the
// cluster: it validates and submits application specs, tracks their
// reports and discovers the master endpoint so later calls can reach
// the master RPC directly.
package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mrocklin/skein/pkg/common"
	"github.com/mrocklin/skein/pkg/log"
	"github.com/mrocklin/skein/pkg/model"
)

// ResourceManager is the submission surface the daemon wraps. The real
// implementation speaks the YARN client protocols; tests and local runs
// use the in-process implementation from this package.
type ResourceManager interface {
	Submit(spec *model.ApplicationSpec, user string) (string, error)
	Report(appID string) (*model.ApplicationReport, error)
	List(states []model.ApplicationState) ([]*model.ApplicationReport, error)
	Kill(appID string) error
}

const waitForStartInterval = 100 * time.Millisecond

// Daemon holds the resource manager connection for one user.
type Daemon struct {
	rm   ResourceManager
	user string
}

func NewDaemon(rm ResourceManager, user string) *Daemon {
	return &Daemon{rm: rm, user: user}
}

// Ping verifies the daemon is reachable.
func (d *Daemon) Ping() error {
	return nil
}

// Submit validates the spec and delivers it to the cluster, returning
// the new application id. Validation is atomic: nothing is submitted on
// a rejected spec.
func (d *Daemon) Submit(spec *model.ApplicationSpec) (string, error) {
	if spec == nil {
		return "", common.InvalidArgument("application spec is required")
	}
	if err := spec.Validate(); err != nil {
		return "", err
	}
	appID, err := d.rm.Submit(spec, d.user)
	if err != nil {
		return "", err
	}
	log.Logger().Info("application submitted",
		zap.String("appID", appID),
		zap.String("name", spec.Name),
		zap.String("queue", spec.Queue))
	return appID, nil
}

// Status returns the report for one application.
func (d *Daemon) Status(appID string) (*model.ApplicationReport, error) {
	return d.rm.Report(appID)
}

// Applications lists reports, optionally filtered by state.
func (d *Daemon) Applications(states []model.ApplicationState) ([]*model.ApplicationReport, error) {
	return d.rm.List(states)
}

// WaitForStart blocks until the application is running with a bound
// master endpoint, or reaches a terminal state, or ctx is done.
func (d *Daemon) WaitForStart(ctx context.Context, appID string) (*model.ApplicationReport, error) {
	ticker := time.NewTicker(waitForStartInterval)
	defer ticker.Stop()
	for {
		report, err := d.rm.Report(appID)
		if err != nil {
			return nil, err
		}
		if report.State.IsTerminal() {
			return report, nil
		}
		if report.State == model.AppStateRunning && report.Address() != "" {
			return report, nil
		}
		select {
		case <-ctx.Done():
			return nil, common.Cancelled("wait for application %s cancelled: %v", appID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Kill terminates the application.
func (d *Daemon) Kill(appID string) error {
	return d.rm.Kill(appID)
}
