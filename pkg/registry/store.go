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
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a publisher or project does not exist.
	ErrNotFound = errors.New("registry: not found")

	// ErrNameConflict is returned by Promote when the target project name is
	// already taken. The conflict is per record; other promotions in the
	// same exchange proceed independently.
	ErrNameConflict = errors.New("registry: project name already exists")

	// ErrNotPending is returned by Promote when the publisher is missing or
	// no longer pending, e.g. a concurrent exchange promoted it first.
	ErrNotPending = errors.New("registry: publisher is not pending")

	// ErrDuplicatePublisher is returned when an identical publisher
	// registration already exists.
	ErrDuplicatePublisher = errors.New("registry: publisher already registered")
)

// Store persists publishers and projects. Exchanges only read, except for
// Promote: the single pending->active mutation this system performs.
type Store interface {
	// CreatePublisher registers a record, assigning ID and CreatedAt when
	// unset. The record must already pass Validate.
	CreatePublisher(ctx context.Context, pub *Publisher) error
	GetPublisher(ctx context.Context, id uuid.UUID) (Publisher, error)
	DeletePublisher(ctx context.Context, id uuid.UUID) error
	ListPublishers(ctx context.Context) ([]Publisher, error)

	// PublishersByLookup returns candidate records for matching, narrowed
	// by kind, state and the stable lookup key.
	PublishersByLookup(ctx context.Context, kind Kind, state State, lookupKey string) ([]Publisher, error)

	// Promote creates project and flips the pending publisher to active,
	// bound to the new project's ID, in one transaction. A taken project
	// name yields ErrNameConflict with no partial state left behind.
	Promote(ctx context.Context, publisherID uuid.UUID, project Project) (Project, error)

	// AddProject registers an existing project, so active publishers can be
	// bound to projects that predate their registration.
	AddProject(ctx context.Context, project Project) error
	GetProject(ctx context.Context, id uuid.UUID) (Project, error)
	ListProjects(ctx context.Context) ([]Project, error)

	Ping(ctx context.Context) error
	Close()
}
