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

package daemon

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mrocklin/skein/pkg/appmaster"
	"github.com/mrocklin/skein/pkg/cluster"
	"github.com/mrocklin/skein/pkg/common"
	"github.com/mrocklin/skein/pkg/locking"
	"github.com/mrocklin/skein/pkg/log"
	"github.com/mrocklin/skein/pkg/model"
	"github.com/mrocklin/skein/pkg/webservice"
)

// ClusterFactory builds the cluster binding for one application.
type ClusterFactory func() cluster.API

type localApp struct {
	master *appmaster.Master
	web    *webservice.WebService
}

// LocalResourceManager runs every submitted application as an in-process
// master against a cluster binding from the factory. It backs the local
// run mode and the daemon tests; the YARN client protocols replace it in
// a real deployment.
type LocalResourceManager struct {
	locking.Mutex
	factory ClusterFactory
	nextID  int
	epoch   int64
	apps    map[string]*localApp
}

func NewLocalResourceManager(epoch int64, factory ClusterFactory) *LocalResourceManager {
	return &LocalResourceManager{
		factory: factory,
		epoch:   epoch,
		apps:    make(map[string]*localApp),
	}
}

func (rm *LocalResourceManager) Submit(spec *model.ApplicationSpec, user string) (string, error) {
	api := rm.factory()

	rm.Lock()
	rm.nextID++
	appID := fmt.Sprintf("application_%d_%04d", rm.epoch, rm.nextID)
	rm.Unlock()

	master, err := appmaster.NewMaster(appID, user, spec, api)
	if err != nil {
		return "", err
	}
	if sink, ok := api.(interface {
		SetEventHandler(handler cluster.EventHandler)
	}); ok {
		sink.SetEventHandler(master)
	}

	web := webservice.NewWebService(master)
	host, port, err := web.Start("127.0.0.1", 0)
	if err != nil {
		return "", err
	}
	if err = master.Start(host, port, fmt.Sprintf("http://%s:%d/ws/v1/status", host, port)); err != nil {
		web.Stop()
		return "", err
	}

	rm.Lock()
	rm.apps[appID] = &localApp{master: master, web: web}
	rm.Unlock()

	go func() {
		master.Wait()
		web.Stop()
		log.Logger().Info("local application finished", zap.String("appID", appID))
	}()
	return appID, nil
}

func (rm *LocalResourceManager) lookup(appID string) (*localApp, error) {
	rm.Lock()
	defer rm.Unlock()
	app, ok := rm.apps[appID]
	if !ok {
		return nil, common.NotFound("unknown application %q", appID)
	}
	return app, nil
}

func (rm *LocalResourceManager) Report(appID string) (*model.ApplicationReport, error) {
	app, err := rm.lookup(appID)
	if err != nil {
		return nil, err
	}
	return app.master.Report(), nil
}

func (rm *LocalResourceManager) List(states []model.ApplicationState) ([]*model.ApplicationReport, error) {
	var stateSet map[model.ApplicationState]bool
	if len(states) > 0 {
		stateSet = make(map[model.ApplicationState]bool, len(states))
		for _, state := range states {
			stateSet[state] = true
		}
	}
	rm.Lock()
	apps := make([]*localApp, 0, len(rm.apps))
	for _, app := range rm.apps {
		apps = append(apps, app)
	}
	rm.Unlock()

	var out []*model.ApplicationReport
	for _, app := range apps {
		report := app.master.Report()
		if stateSet != nil && !stateSet[report.State] {
			continue
		}
		out = append(out, report)
	}
	return out, nil
}

func (rm *LocalResourceManager) Kill(appID string) error {
	app, err := rm.lookup(appID)
	if err != nil {
		return err
	}
	if err = app.master.Shutdown(model.FinalKilled, "killed by user request"); err != nil {
		// a finished application stays killable, matching cluster behavior
		if common.CodeOf(err) == common.CodeFailedPrecondition {
			return nil
		}
		return err
	}
	return nil
}
