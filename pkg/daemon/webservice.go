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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/mrocklin/skein/pkg/common"
	"github.com/mrocklin/skein/pkg/log"
	"github.com/mrocklin/skein/pkg/model"
	"github.com/mrocklin/skein/pkg/webservice/dao"
)

// WebService exposes the daemon over HTTP for the command line client.
type WebService struct {
	daemon     *Daemon
	httpServer *http.Server
	listener   net.Listener
}

func NewWebService(daemon *Daemon) *WebService {
	return &WebService{daemon: daemon}
}

func (ws *WebService) newRouter() *httprouter.Router {
	router := httprouter.New()
	router.Handle(http.MethodGet, "/ws/v1/ping", ws.ping)
	router.Handle(http.MethodPost, "/ws/v1/applications", ws.submit)
	router.Handle(http.MethodGet, "/ws/v1/applications", ws.list)
	router.Handle(http.MethodGet, "/ws/v1/applications/:id", ws.status)
	router.Handle(http.MethodGet, "/ws/v1/applications/:id/waitforstart", ws.waitForStart)
	router.Handle(http.MethodDelete, "/ws/v1/applications/:id", ws.kill)
	return router
}

func writeJSON(w http.ResponseWriter, value interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		log.Logger().Error("failed to encode response", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := common.CodeOf(err)
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code.HTTPStatus())
	if encErr := json.NewEncoder(w).Encode(dao.NewAPIError(code.String(), err.Error())); encErr != nil {
		log.Logger().Error("failed to encode error response", zap.Error(encErr))
	}
}

func (ws *WebService) ping(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, map[string]bool{"ok": ws.daemon.Ping() == nil})
}

func (ws *WebService) submit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, common.InvalidArgument("failed to read request: %v", err))
		return
	}
	spec := &model.ApplicationSpec{}
	if err = json.Unmarshal(body, spec); err != nil {
		writeError(w, common.InvalidArgument("failed to parse application spec: %v", err))
		return
	}
	appID, err := ws.daemon.Submit(spec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"id": appID})
}

func (ws *WebService) list(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var states []model.ApplicationState
	for _, raw := range r.URL.Query()["state"] {
		state, err := model.ParseApplicationState(raw)
		if err != nil {
			writeError(w, common.InvalidArgument("%v", err))
			return
		}
		states = append(states, state)
	}
	reports, err := ws.daemon.Applications(states)
	if err != nil {
		writeError(w, err)
		return
	}
	if reports == nil {
		reports = []*model.ApplicationReport{}
	}
	writeJSON(w, reports)
}

func (ws *WebService) status(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	report, err := ws.daemon.Status(ps.ByName("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, report)
}

func (ws *WebService) waitForStart(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	report, err := ws.daemon.WaitForStart(r.Context(), ps.ByName("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, report)
}

func (ws *WebService) kill(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := ws.daemon.Kill(ps.ByName("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"killed": true})
}

// Start binds the listener and serves until Stop.
func (ws *WebService) Start(host string, port int) (string, int, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return "", 0, err
	}
	ws.listener = listener
	ws.httpServer = &http.Server{Handler: ws.newRouter(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if serveErr := ws.httpServer.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			log.Logger().Error("daemon web service exited", zap.Error(serveErr))
		}
	}()
	addr := listener.Addr().(*net.TCPAddr)
	log.Logger().Info("daemon web service started",
		zap.String("host", host),
		zap.Int("port", addr.Port))
	return host, addr.Port, nil
}

// Stop shuts the server down.
func (ws *WebService) Stop() {
	if ws.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ws.httpServer.Shutdown(ctx); err != nil {
		log.Logger().Error("failed to stop daemon web service", zap.Error(err))
	}
}
