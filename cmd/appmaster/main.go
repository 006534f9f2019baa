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

// The appmaster binary runs one application master. With the local
// cluster binding containers execute as host processes, which is how
// single-node runs and development work; a YARN deployment substitutes
// its own binding behind the same cluster interface.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"syscall"

	"go.uber.org/zap"

	"github.com/mrocklin/skein/pkg/appmaster"
	"github.com/mrocklin/skein/pkg/cluster/local"
	"github.com/mrocklin/skein/pkg/common"
	"github.com/mrocklin/skein/pkg/log"
	"github.com/mrocklin/skein/pkg/model"
	"github.com/mrocklin/skein/pkg/trace"
	"github.com/mrocklin/skein/pkg/webservice"
)

func main() {
	specPath := flag.String("spec", "", "path to the application spec (yaml or json)")
	appID := flag.String("app-id", "", "application id to serve, generated when empty")
	host := flag.String("host", "127.0.0.1", "address to bind the master web service to")
	port := flag.Int("port", 0, "port for the master web service, 0 picks a free port")
	flag.Parse()

	if *specPath == "" {
		fmt.Fprintln(os.Stderr, "the -spec flag is required")
		os.Exit(1)
	}
	if *appID == "" {
		*appID = "application_" + common.GetNewUUID()
	}
	if err := run(*specPath, *appID, *host, *port); err != nil {
		log.Logger().Error("application master failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(specPath string, appID string, host string, port int) error {
	spec, err := model.LoadSpec(specPath, "infer")
	if err != nil {
		return err
	}

	if closer, terr := trace.InitGlobalTracer("skein-appmaster"); terr != nil {
		log.Logger().Warn("tracing disabled", zap.Error(terr))
	} else {
		defer func() { _ = closer.Close() }()
	}

	userName := "unknown"
	if u, uerr := user.Current(); uerr == nil {
		userName = u.Username
	}

	api := local.NewCluster()
	master, err := appmaster.NewMaster(appID, userName, spec, api)
	if err != nil {
		return err
	}
	api.SetEventHandler(master)

	web := webservice.NewWebService(master)
	boundHost, boundPort, err := web.Start(host, port)
	if err != nil {
		return err
	}
	defer web.Stop()

	trackingURL := fmt.Sprintf("http://%s:%d/ws/v1/status", boundHost, boundPort)
	if err = master.Start(boundHost, boundPort, trackingURL); err != nil {
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		log.Logger().Info("signal received, shutting down", zap.String("signal", sig.String()))
		if serr := master.Shutdown(model.FinalKilled, "terminated by signal"); serr != nil {
			log.Logger().Debug("signal shutdown", zap.Error(serr))
		}
	}()

	master.Wait()
	report := master.Report()
	log.Logger().Info("application finished",
		zap.String("appID", appID),
		zap.String("finalStatus", string(report.FinalStatus)),
		zap.String("diagnostics", report.Diagnostics))
	if report.FinalStatus != model.FinalSucceeded {
		return fmt.Errorf("application finished with status %s", report.FinalStatus)
	}
	return nil
}
