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
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Project is a registry project. Projects are referenced by publishers via
// their stable ID, never by name alone: names can be freed and re-taken,
// IDs cannot.
type Project struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	// NormalizedName is the canonical form of Name; uniqueness is enforced
	// on it so "My.Package" and "my-package" cannot coexist.
	NormalizedName string `json:"normalized_name"`
	// CreatedBy records the verified identity whose exchange created the
	// project, for projects born from a pending publisher.
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	nameMatcher = regexp.MustCompile(`\A(?:[a-zA-Z0-9]|[a-zA-Z0-9][a-zA-Z0-9\.\-_]*[a-zA-Z0-9])\z`)
	// Runs of dot, dash and underscore all collapse to a single dash.
	normalizer = regexp.MustCompile(`[-_.]+`)
)

// NormalizeName canonicalizes a project name: lowercased, with runs of
// separator characters collapsed to single dashes.
func NormalizeName(name string) string {
	return strings.ToLower(normalizer.ReplaceAllString(name, "-"))
}

// ValidProjectName reports whether name is an acceptable project name:
// alphanumeric with interior dots, dashes and underscores.
func ValidProjectName(name string) bool {
	return nameMatcher.MatchString(name)
}

// NewProject builds a project record for name, attributed to the identity
// createdBy.
func NewProject(name, createdBy string) Project {
	return Project{
		ID:             uuid.New(),
		Name:           name,
		NormalizedName: NormalizeName(name),
		CreatedBy:      createdBy,
		CreatedAt:      time.Now().UTC(),
	}
}
