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

import "testing"

func TestNormalizeName(t *testing.T) {
	tests := map[string]struct {
		name string
		want string
	}{
		`lowercases`:                 {name: `Requests`, want: `requests`},
		`dots become dashes`:         {name: `zope.interface`, want: `zope-interface`},
		`underscores become dashes`:  {name: `typing_extensions`, want: `typing-extensions`},
		`runs collapse`:              {name: `a.-_b`, want: `a-b`},
		`mixed separators and case`:  {name: `My__Package..Name`, want: `my-package-name`},
		`already normalized`:         {name: `flask`, want: `flask`},
		`digits pass through`:        {name: `pytest2`, want: `pytest2`},
		`equivalent spellings agree`: {name: `Zope.Interface`, want: `zope-interface`},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			if got := NormalizeName(test.name); got != test.want {
				t.Errorf("NormalizeName(%q) = %q, want %q", test.name, got, test.want)
			}
		})
	}
}

func TestValidProjectName(t *testing.T) {
	tests := map[string]struct {
		name string
		want bool
	}{
		`simple`:                   {name: `requests`, want: true},
		`single character`:         {name: `a`, want: true},
		`interior separators`:      {name: `zope.interface`, want: true},
		`mixed case`:               {name: `Django`, want: true},
		`empty`:                    {name: ``, want: false},
		`leading dash`:             {name: `-requests`, want: false},
		`trailing underscore`:      {name: `requests_`, want: false},
		`whitespace`:               {name: `my package`, want: false},
		`slash`:                    {name: `a/b`, want: false},
		`unicode`:                  {name: `pythön`, want: false},
		`separators only`:          {name: `-`, want: false},
		`leading dot`:              {name: `.hidden`, want: false},
		`interior run of symbols`:  {name: `a-._b`, want: true},
		`ends with alphanumeric 2`: {name: `b2`, want: true},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			if got := ValidProjectName(test.name); got != test.want {
				t.Errorf("ValidProjectName(%q) = %v, want %v", test.name, got, test.want)
			}
		})
	}
}

func TestNewProject(t *testing.T) {
	project := NewProject("My.Package", "repo:octo-org/widget:ref:refs/heads/main")
	if project.ID.String() == "" {
		t.Error("expected project ID to be set")
	}
	if project.Name != "My.Package" {
		t.Errorf("unexpected name %q", project.Name)
	}
	if project.NormalizedName != "my-package" {
		t.Errorf("unexpected normalized name %q", project.NormalizedName)
	}
	if project.CreatedAt.IsZero() {
		t.Error("expected creation time to be set")
	}
}
