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

package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pubmint/pubmint/pkg/log"
	"github.com/pubmint/pubmint/pkg/registry"
)

// adminAuth guards the management API with a static bearer token. The
// compare is constant time; an empty configured token disables the API
// entirely rather than accepting empty bearers.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			writeJSON(w, http.StatusForbidden, errorResponse{Message: managementDisabled})
			return
		}
		presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if presented == r.Header.Get("Authorization") ||
			subtle.ConstantTimeCompare([]byte(presented), []byte(s.adminToken)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Message: unauthorized})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) createPublisher(w http.ResponseWriter, r *http.Request) {
	var pub registry.Publisher
	if err := json.NewDecoder(r.Body).Decode(&pub); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: invalidRequestBody})
		return
	}
	if err := pub.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
		return
	}

	if err := s.store.CreatePublisher(r.Context(), &pub); err != nil {
		if errors.Is(err, registry.ErrDuplicatePublisher) {
			writeJSON(w, http.StatusConflict, errorResponse{Message: err.Error()})
			return
		}
		log.ContextLogger(r.Context()).Errorw("creating publisher", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: internalError})
		return
	}

	log.ContextLogger(r.Context()).Infow("registered publisher",
		"publisher", pub.String(), "id", pub.ID.String(), "state", string(pub.State))
	writeJSON(w, http.StatusCreated, pub)
}

func (s *Server) listPublishers(w http.ResponseWriter, r *http.Request) {
	pubs, err := s.store.ListPublishers(r.Context())
	if err != nil {
		log.ContextLogger(r.Context()).Errorw("listing publishers", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: internalError})
		return
	}
	writeJSON(w, http.StatusOK, pubs)
}

func (s *Server) getPublisher(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid publisher id"})
		return
	}
	pub, err := s.store.GetPublisher(r.Context(), id)
	if errors.Is(err, registry.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "no such publisher"})
		return
	}
	if err != nil {
		log.ContextLogger(r.Context()).Errorw("getting publisher", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: internalError})
		return
	}
	writeJSON(w, http.StatusOK, pub)
}

func (s *Server) deletePublisher(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid publisher id"})
		return
	}
	err = s.store.DeletePublisher(r.Context(), id)
	if errors.Is(err, registry.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "no such publisher"})
		return
	}
	if err != nil {
		log.ContextLogger(r.Context()).Errorw("deleting publisher", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: internalError})
		return
	}
	log.ContextLogger(r.Context()).Infow("deleted publisher", "id", id.String())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: invalidRequestBody})
		return
	}
	if !registry.ValidProjectName(req.Name) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid project name"})
		return
	}

	project := registry.NewProject(req.Name, "")
	if err := s.store.AddProject(r.Context(), project); err != nil {
		if errors.Is(err, registry.ErrNameConflict) {
			writeJSON(w, http.StatusConflict, errorResponse{Message: err.Error()})
			return
		}
		log.ContextLogger(r.Context()).Errorw("creating project", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: internalError})
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		log.ContextLogger(r.Context()).Errorw("listing projects", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: internalError})
		return
	}
	writeJSON(w, http.StatusOK, projects)
}
