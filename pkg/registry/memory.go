// Copyright 2023 The pubmint Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package registry

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store with the same semantics as
// PostgresStore, for tests and single-process development. A single mutex
// stands in for the database transaction; promotion remains atomic.
type MemoryStore struct {
	mu           sync.Mutex
	publishers   map[uuid.UUID]Publisher
	projects     map[uuid.UUID]Project
	projectNames map[string]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		publishers:   make(map[uuid.UUID]Publisher),
		projects:     make(map[uuid.UUID]Project),
		projectNames: make(map[string]uuid.UUID),
	}
}

func (s *MemoryStore) CreatePublisher(_ context.Context, pub *Publisher) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pub.ID == uuid.Nil {
		pub.ID = uuid.New()
	}
	if pub.CreatedAt.IsZero() {
		pub.CreatedAt = time.Now().UTC()
	}
	spec, err := pub.MarshalSpec()
	if err != nil {
		return err
	}
	for _, existing := range s.publishers {
		if existing.Kind != pub.Kind || existing.LookupKey() != pub.LookupKey() || existing.ProjectName != pub.ProjectName {
			continue
		}
		existingSpec, err := existing.MarshalSpec()
		if err != nil {
			return err
		}
		if bytes.Equal(spec, existingSpec) {
			return ErrDuplicatePublisher
		}
	}
	s.publishers[pub.ID] = *pub
	return nil
}

func (s *MemoryStore) GetPublisher(_ context.Context, id uuid.UUID) (Publisher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pub, ok := s.publishers[id]
	if !ok {
		return Publisher{}, ErrNotFound
	}
	return pub, nil
}

func (s *MemoryStore) DeletePublisher(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.publishers[id]; !ok {
		return ErrNotFound
	}
	delete(s.publishers, id)
	return nil
}

func (s *MemoryStore) ListPublishers(_ context.Context) ([]Publisher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Publisher, 0, len(s.publishers))
	for _, pub := range s.publishers {
		out = append(out, pub)
	}
	sortPublishers(out)
	return out, nil
}

func (s *MemoryStore) PublishersByLookup(_ context.Context, kind Kind, state State, lookupKey string) ([]Publisher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Publisher
	for _, pub := range s.publishers {
		if pub.Kind == kind && pub.State == state && pub.LookupKey() == lookupKey {
			out = append(out, pub)
		}
	}
	sortPublishers(out)
	return out, nil
}

func (s *MemoryStore) Promote(_ context.Context, publisherID uuid.UUID, project Project) (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pub, ok := s.publishers[publisherID]
	if !ok || pub.State != StatePending {
		return Project{}, ErrNotPending
	}
	if _, taken := s.projectNames[project.NormalizedName]; taken {
		return Project{}, ErrNameConflict
	}

	s.projects[project.ID] = project
	s.projectNames[project.NormalizedName] = project.ID
	pub.State = StateActive
	pub.ProjectID = project.ID
	s.publishers[publisherID] = pub
	return project, nil
}

func (s *MemoryStore) GetProject(_ context.Context, id uuid.UUID) (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, ok := s.projects[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	return project, nil
}

func (s *MemoryStore) ListProjects(_ context.Context) ([]Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Project, 0, len(s.projects))
	for _, project := range s.projects {
		out = append(out, project)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NormalizedName < out[j].NormalizedName })
	return out, nil
}

func (s *MemoryStore) AddProject(_ context.Context, project Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.projectNames[project.NormalizedName]; taken {
		return ErrNameConflict
	}
	s.projects[project.ID] = project
	s.projectNames[project.NormalizedName] = project.ID
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() {}

func sortPublishers(pubs []Publisher) {
	sort.Slice(pubs, func(i, j int) bool {
		if !pubs[i].CreatedAt.Equal(pubs[j].CreatedAt) {
			return pubs[i].CreatedAt.Before(pubs[j].CreatedAt)
		}
		return bytes.Compare(pubs[i].ID[:], pubs[j].ID[:]) < 0
	})
}
