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

// Package webservice serves the master RPC surface: the key-value store,
// the spec/service/container projections, scale and kill mutations,
// shutdown and the application status report, as JSON over HTTP, with
// prometheus metrics on the same listener.
package webservice

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"

	"github.com/mrocklin/skein/pkg/appmaster"
	"github.com/mrocklin/skein/pkg/common"
	"github.com/mrocklin/skein/pkg/log"
	"github.com/mrocklin/skein/pkg/webservice/dao"
)

// WebService serves the master API for one application master.
type WebService struct {
	master     *appmaster.Master
	httpServer *http.Server
	listener   net.Listener
}

func NewWebService(master *appmaster.Master) *WebService {
	return &WebService{master: master}
}

func (m *WebService) newRouter() *httprouter.Router {
	router := httprouter.New()
	for _, webRoute := range m.routes() {
		router.Handle(webRoute.Method, webRoute.Pattern, loggingHandler(webRoute.HandlerFunc, webRoute.Name))
	}
	return router
}

func loggingHandler(inner httprouter.Handle, name string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		start := time.Now()
		span := opentracing.GlobalTracer().StartSpan(name)
		defer span.Finish()
		inner(w, r, ps)
		log.Logger().Debug(fmt.Sprintf("%s\t%s\t%s\t%s",
			r.Method, r.RequestURI, name, time.Since(start)))
	}
}

func writeHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}

func writeJSON(w http.ResponseWriter, value interface{}) {
	writeHeaders(w)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		log.Logger().Error("failed to encode response", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := common.CodeOf(err)
	writeHeaders(w)
	w.WriteHeader(code.HTTPStatus())
	if encErr := json.NewEncoder(w).Encode(dao.NewAPIError(code.String(), err.Error())); encErr != nil {
		log.Logger().Error("failed to encode error response", zap.Error(encErr))
	}
}

// Start binds the listener and serves until Stop. Passing port 0 picks
// a free port; the bound address is returned.
func (m *WebService) Start(host string, port int) (string, int, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return "", 0, err
	}
	m.listener = listener
	m.httpServer = &http.Server{Handler: m.newRouter(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if serveErr := m.httpServer.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			log.Logger().Error("web service exited", zap.Error(serveErr))
		}
	}()

	addr := listener.Addr().(*net.TCPAddr)
	log.Logger().Info("master web service started",
		zap.String("host", host),
		zap.Int("port", addr.Port))
	return host, addr.Port, nil
}

// Stop closes the listener and waits up to five seconds for in-flight
// requests to finish; requests still blocked after that are not cancelled.
func (m *WebService) Stop() {
	if m.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.httpServer.Shutdown(ctx); err != nil {
		log.Logger().Error("failed to stop web service", zap.Error(err))
	}
}
