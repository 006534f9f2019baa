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
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"github.com/mrocklin/skein/pkg/common"
	"github.com/mrocklin/skein/pkg/model"
	"github.com/mrocklin/skein/pkg/webservice/dao"
)

func (m *WebService) getStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, m.master.Report())
}

func (m *WebService) getApplicationSpec(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, m.master.GetSpec())
}

func (m *WebService) getService(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	service, err := m.master.GetService(ps.ByName("service"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, service)
}

func (m *WebService) scaleService(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req dao.ScaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, common.InvalidArgument("invalid scale request body: %v", err))
		return
	}
	if err := m.master.Scale(ps.ByName("service"), req.Instances); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, req)
}

func (m *WebService) getContainers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()
	var states []model.ContainerState
	for _, raw := range query["state"] {
		state, err := model.ParseContainerState(raw)
		if err != nil {
			writeError(w, common.InvalidArgument("%v", err))
			return
		}
		states = append(states, state)
	}
	containers, err := m.master.GetContainers(states, query["service"])
	if err != nil {
		writeError(w, err)
		return
	}
	if containers == nil {
		containers = []model.Container{}
	}
	writeJSON(w, containers)
}

func (m *WebService) killContainer(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	instance, err := strconv.Atoi(ps.ByName("instance"))
	if err != nil {
		writeError(w, common.InvalidArgument("invalid container instance %q", ps.ByName("instance")))
		return
	}
	if err = m.master.KillContainer(ps.ByName("service"), instance); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"killed": true})
}

func (m *WebService) getAllKeys(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	snapshot := m.master.KV().Snapshot()
	out := make([]dao.KeyValueDAO, 0, len(snapshot))
	for key, value := range snapshot {
		out = append(out, dao.KeyValueDAO{Key: key, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	writeJSON(w, out)
}

func (m *WebService) getKey(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	wait := false
	if raw := r.URL.Query().Get("wait"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, common.InvalidArgument("invalid wait parameter %q", raw))
			return
		}
		wait = parsed
	}
	// the request context cancels the wait when the client disconnects
	// or its deadline expires
	value, err := m.master.KV().Get(r.Context(), ps.ByName("key"), wait)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, dao.KeyValueDAO{Key: ps.ByName("key"), Value: value})
}

func (m *WebService) setKey(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	value, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, common.InvalidArgument("failed to read value: %v", err))
		return
	}
	if err = m.master.KV().Set(ps.ByName("key"), string(value)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, dao.KeyValueDAO{Key: ps.ByName("key"), Value: string(value)})
}

func (m *WebService) deleteKey(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	existed, err := m.master.KV().Delete(ps.ByName("key"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"deleted": existed})
}

func (m *WebService) shutdown(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req dao.ShutdownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, common.InvalidArgument("invalid shutdown request body: %v", err))
		return
	}
	finalStatus, err := model.ParseFinalStatus(req.FinalStatus)
	if err != nil {
		writeError(w, common.InvalidArgument("%v", err))
		return
	}
	if err := m.master.Shutdown(finalStatus, req.Diagnostics); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, req)
}
