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
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pubmint/pubmint/pkg/log"
)

// uniqueViolation is the SQLSTATE raised when an insert trips a unique
// index. Name uniqueness during promotion rides on it.
const uniqueViolation = "23505"

// PostgresStore is the production Store, backed by a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and verifies the connection.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping: %w", err)
	}
	log.Logger.Infow("postgres ready", "dsn", RedactDSN(dsn))
	return &PostgresStore{pool: pool}, nil
}

// RedactDSN strips credentials from a connection string for logging.
func RedactDSN(dsn string) string {
	if i := strings.Index(dsn, "@"); i > 0 {
		return "***@" + dsn[i+1:]
	}
	return dsn
}

// EnsureSchema creates the required tables and indexes if they do not
// already exist. Safe to call repeatedly (idempotent).
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS projects (
  id uuid PRIMARY KEY,
  name text NOT NULL,
  normalized_name text NOT NULL,
  created_by text NOT NULL DEFAULT '',
  created_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS projects_normalized_name_idx ON projects (normalized_name);

CREATE TABLE IF NOT EXISTS publishers (
  id uuid PRIMARY KEY,
  kind text NOT NULL,
  state text NOT NULL,
  lookup_key text NOT NULL,
  project_id uuid REFERENCES projects(id),
  project_name text NOT NULL,
  spec jsonb NOT NULL,
  created_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS publishers_match_idx ON publishers (kind, state, lookup_key);
CREATE UNIQUE INDEX IF NOT EXISTS publishers_dedupe_idx ON publishers (kind, lookup_key, project_name, spec);
`)
	return err
}

func (s *PostgresStore) CreatePublisher(ctx context.Context, pub *Publisher) error {
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
	var projectID any
	if pub.ProjectID != uuid.Nil {
		projectID = pub.ProjectID
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO publishers (id, kind, state, lookup_key, project_id, project_name, spec, created_at)
	  VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		pub.ID, pub.Kind, pub.State, pub.LookupKey(), projectID, pub.ProjectName, spec, pub.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicatePublisher
		}
		return fmt.Errorf("insert publisher: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPublisher(ctx context.Context, id uuid.UUID) (Publisher, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, kind, state, project_id, project_name, spec, created_at
	  FROM publishers WHERE id = $1`, id)
	return scanPublisher(row)
}

func (s *PostgresStore) DeletePublisher(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM publishers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete publisher: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListPublishers(ctx context.Context) ([]Publisher, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, kind, state, project_id, project_name, spec, created_at
	  FROM publishers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list publishers: %w", err)
	}
	defer rows.Close()
	return collectPublishers(rows)
}

func (s *PostgresStore) PublishersByLookup(ctx context.Context, kind Kind, state State, lookupKey string) ([]Publisher, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, kind, state, project_id, project_name, spec, created_at
	  FROM publishers WHERE kind = $1 AND state = $2 AND lookup_key = $3 ORDER BY created_at, id`,
		kind, state, lookupKey)
	if err != nil {
		return nil, fmt.Errorf("query publishers: %w", err)
	}
	defer rows.Close()
	return collectPublishers(rows)
}

// Promote runs the pending->active transition in a single transaction: the
// project row is inserted, then the publisher row flips to active bound to
// it. Either both changes land or neither does.
func (s *PostgresStore) Promote(ctx context.Context, publisherID uuid.UUID, project Project) (Project, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Project{}, fmt.Errorf("begin promote: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `INSERT INTO projects (id, name, normalized_name, created_by, created_at)
	  VALUES ($1,$2,$3,$4,$5)`,
		project.ID, project.Name, project.NormalizedName, project.CreatedBy, project.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Project{}, ErrNameConflict
		}
		return Project{}, fmt.Errorf("insert project: %w", err)
	}

	tag, err := tx.Exec(ctx, `UPDATE publishers SET state = $1, project_id = $2
	  WHERE id = $3 AND state = $4`,
		StateActive, project.ID, publisherID, StatePending)
	if err != nil {
		return Project{}, fmt.Errorf("promote publisher: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Project{}, ErrNotPending
	}

	if err := tx.Commit(ctx); err != nil {
		return Project{}, fmt.Errorf("commit promote: %w", err)
	}
	return project, nil
}

func (s *PostgresStore) AddProject(ctx context.Context, project Project) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO projects (id, name, normalized_name, created_by, created_at)
	  VALUES ($1,$2,$3,$4,$5)`,
		project.ID, project.Name, project.NormalizedName, project.CreatedBy, project.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrNameConflict
		}
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, id uuid.UUID) (Project, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, name, normalized_name, created_by, created_at
	  FROM projects WHERE id = $1`, id)
	var p Project
	if err := row.Scan(&p.ID, &p.Name, &p.NormalizedName, &p.CreatedBy, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, ErrNotFound
		}
		return Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, normalized_name, created_by, created_at
	  FROM projects ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.NormalizedName, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func scanPublisher(row pgx.Row) (Publisher, error) {
	var (
		p         Publisher
		projectID *uuid.UUID
		spec      []byte
	)
	if err := row.Scan(&p.ID, &p.Kind, &p.State, &projectID, &p.ProjectName, &spec, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Publisher{}, ErrNotFound
		}
		return Publisher{}, fmt.Errorf("scan publisher: %w", err)
	}
	if projectID != nil {
		p.ProjectID = *projectID
	}
	if err := p.UnmarshalSpec(spec); err != nil {
		return Publisher{}, err
	}
	return p, nil
}

func collectPublishers(rows pgx.Rows) ([]Publisher, error) {
	var out []Publisher
	for rows.Next() {
		p, err := scanPublisher(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
