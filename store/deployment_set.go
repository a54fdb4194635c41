// Package store owns the on-disk deployment.json document and the
// in-memory, insertion-ordered set of Deployments loaded from it.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/deployhub/deployhub-core/schema"
)

// DeploymentSet is an ordered set of schema.Deployment keyed by Name.
// Duplicate adds are silent no-ops (first write wins), matching
// spec.md §4.2. All mutating access is serialized by mu; readers may take
// the same lock or call Snapshot for a consistent point-in-time copy.
type DeploymentSet struct {
	mu    sync.RWMutex
	order []string
	byName map[string]schema.Deployment
}

// NewDeploymentSet returns an empty set.
func NewDeploymentSet() *DeploymentSet {
	return &DeploymentSet{byName: make(map[string]schema.Deployment)}
}

// Add inserts d if no deployment with the same name exists yet. Silent
// no-op on a duplicate name, per spec.md §4.2.
func (s *DeploymentSet) Add(d schema.Deployment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[d.Name]; exists {
		return
	}
	s.order = append(s.order, d.Name)
	s.byName[d.Name] = d
}

// Discard removes the deployment named name. Silent no-op if absent.
func (s *DeploymentSet) Discard(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[name]; !exists {
		return
	}
	delete(s.byName, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Get returns the deployment named name and whether it was present.
func (s *DeploymentSet) Get(name string) (schema.Deployment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.byName[name]
	return d, ok
}

// Contains reports whether name is present.
func (s *DeploymentSet) Contains(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Len returns the number of deployments in the set.
func (s *DeploymentSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Snapshot returns all deployments in insertion order. The result is a
// copy safe to range over without holding any lock.
func (s *DeploymentSet) Snapshot() []schema.Deployment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]schema.Deployment, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name])
	}
	return out
}

// Read loads a DeploymentSet from path, expanding missing scalar fields
// to their schema defaults. A missing file yields an empty set, not an
// error (first run before any deployment has been created).
func Read(path string) (*DeploymentSet, error) {
	set := NewDeploymentSet()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, fmt.Errorf("store: reading %s: %w", path, err)
	}

	var raw []schema.Deployment
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("store: parsing %s: %w", path, err)
	}

	for _, d := range raw {
		set.Add(d.WithDefaults())
	}
	return set, nil
}

// Write rewrites path as a whole-file replacement: a plain JSON array of
// plain deployment objects, in insertion order, no schema metadata.
func Write(path string, set *DeploymentSet) error {
	deployments := set.Snapshot()
	if deployments == nil {
		deployments = []schema.Deployment{}
	}

	data, err := json.MarshalIndent(deployments, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encoding %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("store: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("store: replacing %s: %w", path, err)
	}
	return nil
}
