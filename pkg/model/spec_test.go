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

package model

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gotest.tools/v3/assert"

	"github.com/mrocklin/skein/pkg/common"
)

const simpleSpecYAML = `
name: echo
queue: batch
services:
  server:
    instances: 2
    resources:
      memory: 1024
      vcores: 1
    files:
      data.tgz:
        source: hdfs:///data/archive.tgz
      config.yaml:
        source: file:///etc/app/config.yaml
        visibility: private
    env:
      PORT: "8080"
    commands:
      - ./start-server.sh
  worker:
    resources:
      memory: 2048
      vcores: 2
    max_restarts: 3
    depends:
      - server
    commands:
      - ./prepare.sh
      - ./run-worker.sh
`

func TestParseSpec(t *testing.T) {
	spec, err := ParseSpec([]byte(simpleSpecYAML), "yaml")
	assert.NilError(t, err)
	assert.Equal(t, spec.Name, "echo")
	assert.Equal(t, spec.Queue, "batch")
	assert.Equal(t, spec.MaxAttempts, 1)
	assert.Equal(t, len(spec.Services), 2)

	server := spec.Services["server"]
	assert.Equal(t, server.Instances, 2)
	assert.Equal(t, server.MaxRestarts, 0)
	assert.Equal(t, server.Resources, Resources{Memory: 1024, Vcores: 1})
	assert.Equal(t, server.Env["PORT"], "8080")

	worker := spec.Services["worker"]
	assert.Equal(t, worker.Instances, 1, "instances should default to 1")
	assert.Equal(t, worker.MaxRestarts, 3)
	assert.Equal(t, len(worker.Commands), 2)
	assert.Equal(t, worker.Depends[0], "server")
}

func TestParseSpecDefaults(t *testing.T) {
	spec, err := ParseSpec([]byte(`
services:
  only:
    resources:
      memory: 512
      vcores: 1
    commands:
      - sleep infinity
`), "yaml")
	assert.NilError(t, err)
	assert.Equal(t, spec.Name, "skein")
	assert.Equal(t, spec.Queue, "default")
	assert.Equal(t, spec.MaxAttempts, 1)
	assert.Equal(t, spec.Services["only"].Instances, 1)
}

func TestExplicitZeroInstances(t *testing.T) {
	spec, err := ParseSpec([]byte(`
services:
  idle:
    instances: 0
    resources:
      memory: 512
      vcores: 1
    commands:
      - true
`), "yaml")
	assert.NilError(t, err)
	assert.Equal(t, spec.Services["idle"].Instances, 0)
}

func TestFileTypeInference(t *testing.T) {
	spec, err := ParseSpec([]byte(simpleSpecYAML), "yaml")
	assert.NilError(t, err)
	files := spec.Services["server"].Files
	assert.Equal(t, files["data.tgz"].Type, FileTypeArchive)
	assert.Equal(t, files["data.tgz"].Visibility, VisibilityApplication)
	assert.Equal(t, files["config.yaml"].Type, FileTypeFile)
	assert.Equal(t, files["config.yaml"].Visibility, VisibilityPrivate)
}

func validSpec() *ApplicationSpec {
	return &ApplicationSpec{
		Name:        "test",
		Queue:       "default",
		MaxAttempts: 1,
		Services: map[string]*Service{
			"a": {
				Instances: 1,
				Resources: Resources{Memory: 128, Vcores: 1},
				Commands:  []string{"true"},
			},
		},
	}
}

func TestSpecValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ApplicationSpec)
		message string
	}{
		{
			name:    "empty application name",
			mutate:  func(s *ApplicationSpec) { s.Name = "" },
			message: "application name must be non-empty",
		},
		{
			name:    "no services",
			mutate:  func(s *ApplicationSpec) { s.Services = nil },
			message: "at least one service",
		},
		{
			name:    "bad max attempts",
			mutate:  func(s *ApplicationSpec) { s.MaxAttempts = 0 },
			message: "max_attempts must be >= 1",
		},
		{
			name:    "no commands",
			mutate:  func(s *ApplicationSpec) { s.Services["a"].Commands = nil },
			message: "at least one command",
		},
		{
			name:    "zero memory",
			mutate:  func(s *ApplicationSpec) { s.Services["a"].Resources.Memory = 0 },
			message: "memory must be >= 1",
		},
		{
			name:    "zero vcores",
			mutate:  func(s *ApplicationSpec) { s.Services["a"].Resources.Vcores = 0 },
			message: "vcores must be >= 1",
		},
		{
			name:    "negative instances",
			mutate:  func(s *ApplicationSpec) { s.Services["a"].Instances = -1 },
			message: "instances must be >= 0",
		},
		{
			name:    "bad max restarts",
			mutate:  func(s *ApplicationSpec) { s.Services["a"].MaxRestarts = -2 },
			message: "max_restarts must be >= -1",
		},
		{
			name:    "unknown dependency",
			mutate:  func(s *ApplicationSpec) { s.Services["a"].Depends = []string{"ghost"} },
			message: `unknown service dependencies for service "a": ghost`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			spec := validSpec()
			tc.mutate(spec)
			err := spec.Validate()
			assert.ErrorContains(t, err, tc.message)
			assert.Equal(t, common.CodeOf(err), common.CodeInvalidArgument)
		})
	}
}

func TestDependencyCycleRejected(t *testing.T) {
	spec := validSpec()
	spec.Services["a"].Depends = []string{"b"}
	spec.Services["b"] = &Service{
		Instances: 1,
		Resources: Resources{Memory: 128, Vcores: 1},
		Commands:  []string{"true"},
		Depends:   []string{"a"},
	}
	err := spec.Validate()
	assert.ErrorContains(t, err, "dependency cycle detected between services")
}

func TestCheckNoCycles(t *testing.T) {
	// a -> b -> c is fine
	assert.NilError(t, checkNoCycles(map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": nil,
	}))
	// diamond is fine
	assert.NilError(t, checkNoCycles(map[string][]string{
		"a": {"b", "c"},
		"b": {"d"},
		"c": {"d"},
		"d": nil,
	}))
	// self loop
	err := checkNoCycles(map[string][]string{"a": {"a"}})
	assert.ErrorContains(t, err, "dependency cycle")
	// longer cycle
	err = checkNoCycles(map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	})
	assert.ErrorContains(t, err, "dependency cycle")
}

func TestSpecFileRoundTrip(t *testing.T) {
	spec, err := ParseSpec([]byte(simpleSpecYAML), "yaml")
	assert.NilError(t, err)

	for _, name := range []string{"spec.yaml", "spec.json"} {
		path := filepath.Join(t.TempDir(), name)
		assert.NilError(t, spec.WriteFile(path, "infer"))
		loaded, err := LoadSpec(path, "infer")
		assert.NilError(t, err)
		assert.Assert(t, cmp.Diff(spec, loaded) == "", "round trip through %s: %s", name, cmp.Diff(spec, loaded))
	}
}

func TestInferFormat(t *testing.T) {
	format, err := inferFormat("app.yaml", "infer")
	assert.NilError(t, err)
	assert.Equal(t, format, "yaml")
	format, err = inferFormat("app.json", "")
	assert.NilError(t, err)
	assert.Equal(t, format, "json")
	_, err = inferFormat("app.conf", "infer")
	assert.ErrorContains(t, err, "can't infer format")
	_, err = inferFormat("app.yaml", "toml")
	assert.ErrorContains(t, err, "unsupported file format")
}

func TestServiceNamesSorted(t *testing.T) {
	spec, err := ParseSpec([]byte(simpleSpecYAML), "yaml")
	assert.NilError(t, err)
	assert.DeepEqual(t, spec.ServiceNames(), []string{"server", "worker"})
	assert.Equal(t, spec.TotalInstances(), 3)
}
