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

package webservice

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type route struct {
	Name        string
	Method      string
	Pattern     string
	HandlerFunc httprouter.Handle
}

func (m *WebService) routes() []route {
	return []route{
		{
			"Status",
			http.MethodGet,
			"/ws/v1/status",
			m.getStatus,
		},
		{
			"ApplicationSpec",
			http.MethodGet,
			"/ws/v1/spec",
			m.getApplicationSpec,
		},
		{
			"Service",
			http.MethodGet,
			"/ws/v1/services/:service",
			m.getService,
		},
		{
			"Scale",
			http.MethodPut,
			"/ws/v1/services/:service/instances",
			m.scaleService,
		},
		{
			"Containers",
			http.MethodGet,
			"/ws/v1/containers",
			m.getContainers,
		},
		{
			"KillContainer",
			http.MethodDelete,
			"/ws/v1/containers/:service/:instance",
			m.killContainer,
		},
		{
			"KeyValueList",
			http.MethodGet,
			"/ws/v1/kv",
			m.getAllKeys,
		},
		{
			"KeyValueGet",
			http.MethodGet,
			"/ws/v1/kv/:key",
			m.getKey,
		},
		{
			"KeyValueSet",
			http.MethodPut,
			"/ws/v1/kv/:key",
			m.setKey,
		},
		{
			"KeyValueDelete",
			http.MethodDelete,
			"/ws/v1/kv/:key",
			m.deleteKey,
		},
		{
			"Shutdown",
			http.MethodPost,
			"/ws/v1/shutdown",
			m.shutdown,
		},
		{
			"Metrics",
			http.MethodGet,
			"/ws/v1/metrics",
			func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
				promhttp.Handler().ServeHTTP(w, r)
			},
		},
	}
}
