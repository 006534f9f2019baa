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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mrocklin/skein/pkg/common"
)

// Resources describes the resource request for a single container.
type Resources struct {
	// Memory to request in MiB. Requests smaller than the cluster minimum
	// allocation receive the minimum allocation.
	Memory int64 `yaml:"memory" json:"memory"`
	// Vcores is the number of virtual cores to request. Depending on the
	// cluster configuration one vcore may map to a full or a fractional
	// physical core.
	Vcores int32 `yaml:"vcores" json:"vcores"`
}

func (r Resources) validate(isRequest bool) error {
	var min int64
	if isRequest {
		min = 1
	}
	if r.Memory < min {
		return common.InvalidArgument("memory must be >= %d, got %d", min, r.Memory)
	}
	if int64(r.Vcores) < min {
		return common.InvalidArgument("vcores must be >= %d, got %d", min, r.Vcores)
	}
	return nil
}

// File is a file or archive to localize into a service's containers.
type File struct {
	Source string `yaml:"source" json:"source"`
	// Type of the file, inferred from the source extension when omitted
	// (.zip, .tar.gz and .tgz sources become archives).
	Type       FileType       `yaml:"type,omitempty" json:"type,omitempty"`
	Visibility FileVisibility `yaml:"visibility,omitempty" json:"visibility,omitempty"`
	// Size and Timestamp of the source, passed through as given; zero
	// values are not filled in from the file system.
	Size      int64 `yaml:"size,omitempty" json:"size,omitempty"`
	Timestamp int64 `yaml:"timestamp,omitempty" json:"timestamp,omitempty"`
}

func inferFileType(source string) FileType {
	for _, ext := range []string{".zip", ".tar.gz", ".tgz"} {
		if strings.HasSuffix(source, ext) {
			return FileTypeArchive
		}
	}
	return FileTypeFile
}

func (f *File) normalize() {
	f.Type = FileType(strings.ToUpper(string(f.Type)))
	f.Visibility = FileVisibility(strings.ToUpper(string(f.Visibility)))
	if f.Type == "" {
		f.Type = inferFileType(f.Source)
	}
	if f.Visibility == "" {
		f.Visibility = VisibilityApplication
	}
}

func (f *File) validate() error {
	if f.Source == "" {
		return common.InvalidArgument("file source must be non-empty")
	}
	switch f.Type {
	case FileTypeFile, FileTypeArchive:
	default:
		return common.InvalidArgument("invalid file type %q", f.Type)
	}
	switch f.Visibility {
	case VisibilityApplication, VisibilityPublic, VisibilityPrivate:
	default:
		return common.InvalidArgument("invalid file visibility %q", f.Visibility)
	}
	if f.Size < 0 {
		return common.InvalidArgument("file size must be >= 0")
	}
	if f.Timestamp < 0 {
		return common.InvalidArgument("file timestamp must be >= 0")
	}
	return nil
}

// Service describes one named service of an application.
type Service struct {
	// Instances to create on startup.
	Instances int `yaml:"instances" json:"instances"`
	// MaxRestarts caps restarts across all containers of the service, not
	// per container. -1 allows unlimited restarts.
	MaxRestarts int       `yaml:"max_restarts" json:"max_restarts"`
	Resources   Resources `yaml:"resources" json:"resources"`
	// Files maps destination relative paths to their sources.
	Files map[string]File   `yaml:"files,omitempty" json:"files,omitempty"`
	Env   map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	// Commands run in order, subsequent commands only if the prior ones
	// succeeded. At least one is required.
	Commands []string `yaml:"commands" json:"commands"`
	// Depends lists services that must declare readiness before this one
	// is started.
	Depends []string `yaml:"depends,omitempty" json:"depends,omitempty"`
}

type plainService struct {
	Instances   *int              `yaml:"instances" json:"instances"`
	MaxRestarts *int              `yaml:"max_restarts" json:"max_restarts"`
	Resources   Resources         `yaml:"resources" json:"resources"`
	Files       map[string]File   `yaml:"files" json:"files"`
	Env         map[string]string `yaml:"env" json:"env"`
	Commands    []string          `yaml:"commands" json:"commands"`
	Depends     []string          `yaml:"depends" json:"depends"`
}

func (s *Service) fromPlain(p *plainService) {
	// instances defaults to 1, an explicit 0 is valid
	s.Instances = 1
	if p.Instances != nil {
		s.Instances = *p.Instances
	}
	s.MaxRestarts = 0
	if p.MaxRestarts != nil {
		s.MaxRestarts = *p.MaxRestarts
	}
	s.Resources = p.Resources
	s.Files = p.Files
	s.Env = p.Env
	s.Commands = p.Commands
	s.Depends = p.Depends
}

func (s *Service) UnmarshalYAML(value *yaml.Node) error {
	var p plainService
	if err := value.Decode(&p); err != nil {
		return err
	}
	s.fromPlain(&p)
	return nil
}

func (s *Service) UnmarshalJSON(b []byte) error {
	var p plainService
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	s.fromPlain(&p)
	return nil
}

func (s *Service) validate(name string) error {
	if s.Instances < 0 {
		return common.InvalidArgument("service %q: instances must be >= 0", name)
	}
	if s.MaxRestarts < -1 {
		return common.InvalidArgument("service %q: max_restarts must be >= -1", name)
	}
	if err := s.Resources.validate(true); err != nil {
		return common.InvalidArgument("service %q: %s", name, err.(*common.StatusError).Message)
	}
	if len(s.Commands) == 0 {
		return common.InvalidArgument("service %q: there must be at least one command", name)
	}
	for dest := range s.Files {
		if dest == "" {
			return common.InvalidArgument("service %q: file destination must be non-empty", name)
		}
		f := s.Files[dest]
		f.normalize()
		if err := f.validate(); err != nil {
			return common.InvalidArgument("service %q, file %q: %s", name, dest, err.(*common.StatusError).Message)
		}
		s.Files[dest] = f
	}
	return nil
}

// ApplicationSpec is the complete, immutable description of an application.
type ApplicationSpec struct {
	Name        string              `yaml:"name" json:"name"`
	Queue       string              `yaml:"queue" json:"queue"`
	Tags        []string            `yaml:"tags,omitempty" json:"tags,omitempty"`
	MaxAttempts int                 `yaml:"max_attempts" json:"max_attempts"`
	Services    map[string]*Service `yaml:"services" json:"services"`
}

type plainSpec struct {
	Name        string              `yaml:"name" json:"name"`
	Queue       string              `yaml:"queue" json:"queue"`
	Tags        []string            `yaml:"tags" json:"tags"`
	MaxAttempts *int                `yaml:"max_attempts" json:"max_attempts"`
	Services    map[string]*Service `yaml:"services" json:"services"`
}

func (a *ApplicationSpec) fromPlain(p *plainSpec) {
	a.Name = p.Name
	if a.Name == "" {
		a.Name = "skein"
	}
	a.Queue = p.Queue
	if a.Queue == "" {
		a.Queue = "default"
	}
	a.Tags = p.Tags
	a.MaxAttempts = 1
	if p.MaxAttempts != nil {
		a.MaxAttempts = *p.MaxAttempts
	}
	a.Services = p.Services
}

func (a *ApplicationSpec) UnmarshalYAML(value *yaml.Node) error {
	var p plainSpec
	if err := value.Decode(&p); err != nil {
		return err
	}
	a.fromPlain(&p)
	return nil
}

func (a *ApplicationSpec) UnmarshalJSON(b []byte) error {
	var p plainSpec
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	a.fromPlain(&p)
	return nil
}

// Validate checks the whole specification and fills in inferred file
// fields. Validation is total: a spec either passes completely or is
// rejected before any container is requested.
func (a *ApplicationSpec) Validate() error {
	if a.Name == "" {
		return common.InvalidArgument("application name must be non-empty")
	}
	if a.MaxAttempts < 1 {
		return common.InvalidArgument("max_attempts must be >= 1, got %d", a.MaxAttempts)
	}
	if len(a.Services) == 0 {
		return common.InvalidArgument("there must be at least one service")
	}
	for name, service := range a.Services {
		if name == "" {
			return common.InvalidArgument("service names must be non-empty")
		}
		if service == nil {
			return common.InvalidArgument("service %q has no definition", name)
		}
		if err := service.validate(name); err != nil {
			return err
		}
		var missing []string
		for _, dep := range service.Depends {
			if _, ok := a.Services[dep]; !ok {
				missing = append(missing, dep)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return common.InvalidArgument("unknown service dependencies for service %q: %s",
				name, strings.Join(missing, ", "))
		}
	}

	dependencies := make(map[string][]string, len(a.Services))
	for name, service := range a.Services {
		dependencies[name] = service.Depends
	}
	return checkNoCycles(dependencies)
}

// checkNoCycles walks the dependency graph iteratively, keeping the
// current node on the stack until all descendants are visited. A back
// edge to a node still on the stack is a cycle.
func checkNoCycles(dependencies map[string][]string) error {
	completed := make(map[string]bool)
	seen := make(map[string]bool)

	keys := make([]string, 0, len(dependencies))
	for key := range dependencies {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if completed[key] {
			continue
		}
		nodes := []string{key}
		for len(nodes) > 0 {
			cur := nodes[len(nodes)-1]
			if completed[cur] {
				nodes = nodes[:len(nodes)-1]
				continue
			}
			seen[cur] = true

			var next []string
			for _, nxt := range dependencies[cur] {
				if completed[nxt] {
					continue
				}
				if seen[nxt] {
					cycle := []string{nxt}
					for nodes[len(nodes)-1] != nxt {
						cycle = append(cycle, nodes[len(nodes)-1])
						nodes = nodes[:len(nodes)-1]
					}
					cycle = append(cycle, nxt)
					// reverse for reporting in dependency order
					for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
						cycle[i], cycle[j] = cycle[j], cycle[i]
					}
					return common.InvalidArgument("dependency cycle detected between services: %s",
						strings.Join(cycle, "->"))
				}
				next = append(next, nxt)
			}

			if len(next) > 0 {
				nodes = append(nodes, next...)
			} else {
				completed[cur] = true
				delete(seen, cur)
				nodes = nodes[:len(nodes)-1]
			}
		}
	}
	return nil
}

func inferFormat(path string, format string) (string, error) {
	if format != "" && format != "infer" {
		if format != "json" && format != "yaml" {
			return "", common.InvalidArgument("unsupported file format %q", format)
		}
		return format, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json", nil
	case ".yaml", ".yml":
		return "yaml", nil
	}
	return "", common.InvalidArgument("can't infer format from file path %q, please specify manually", path)
}

// LoadSpec reads and validates an application specification from a yaml
// or json file. The format is inferred from the file extension unless
// given explicitly.
func LoadSpec(path string, format string) (*ApplicationSpec, error) {
	format, err := inferFormat(path, format)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSpec(data, format)
}

// ParseSpec parses and validates a specification from raw bytes.
func ParseSpec(data []byte, format string) (*ApplicationSpec, error) {
	spec := &ApplicationSpec{}
	var err error
	if format == "json" {
		err = json.Unmarshal(data, spec)
	} else {
		err = yaml.Unmarshal(data, spec)
	}
	if err != nil {
		return nil, common.InvalidArgument("failed to parse application spec: %v", err)
	}
	if err = spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// WriteFile writes the specification to a yaml or json file, format
// inferred from the extension unless given explicitly.
func (a *ApplicationSpec) WriteFile(path string, format string) error {
	format, err := inferFormat(path, format)
	if err != nil {
		return err
	}
	var data []byte
	if format == "json" {
		data, err = json.MarshalIndent(a, "", "  ")
	} else {
		data, err = yaml.Marshal(a)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ServiceNames returns the service names in sorted order.
func (a *ApplicationSpec) ServiceNames() []string {
	names := make([]string, 0, len(a.Services))
	for name := range a.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TotalInstances sums the initial instance counts over all services.
func (a *ApplicationSpec) TotalInstances() int {
	total := 0
	for _, service := range a.Services {
		total += service.Instances
	}
	return total
}

func (a *ApplicationSpec) String() string {
	return fmt.Sprintf("ApplicationSpec{name: %s, queue: %s, services: %d}",
		a.Name, a.Queue, len(a.Services))
}
