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

// The skeind binary runs the client-side daemon. With the local cluster
// binding every submitted application runs in-process with its
// containers as host processes; the skein CLI talks to this daemon via
// SKEIN_DAEMON_ADDRESS.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mrocklin/skein/pkg/cluster"
	"github.com/mrocklin/skein/pkg/cluster/local"
	"github.com/mrocklin/skein/pkg/daemon"
	"github.com/mrocklin/skein/pkg/log"
)

func main() {
	host := flag.String("host", "127.0.0.1", "address to bind the daemon web service to")
	port := flag.Int("port", 11092, "port for the daemon web service")
	flag.Parse()

	userName := "unknown"
	if u, err := user.Current(); err == nil {
		userName = u.Username
	}

	rm := daemon.NewLocalResourceManager(time.Now().Unix(), func() cluster.API {
		return local.NewCluster()
	})
	d := daemon.NewDaemon(rm, userName)
	web := daemon.NewWebService(d)

	boundHost, boundPort, err := web.Start(*host, *port)
	if err != nil {
		log.Logger().Error("failed to start daemon", zap.Error(err))
		os.Exit(1)
	}
	fmt.Printf("%s:%d\n", boundHost, boundPort)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signals
	log.Logger().Info("signal received, stopping daemon", zap.String("signal", sig.String()))
	web.Stop()
}
