package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pinwise/pinwise-go/pkg/catalog"
	"github.com/pinwise/pinwise-go/pkg/project"
	"github.com/pinwise/pinwise-go/pkg/version"
)

// ProjectSummary is a listing row of SQLStore.
type ProjectSummary struct {
	ID        string
	Name      string
	Valid     bool
	Instances int
	UpdatedAt time.Time
}

// SQLStore provides SQLite persistence for many projects.
type SQLStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLStore opens (and creates if needed) the database at dbPath.
func NewSQLStore(dbPath string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	s := &SQLStore{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// migrate creates the database schema.
func (s *SQLStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT,
		valid INTEGER NOT NULL DEFAULT 1,
		format TEXT NOT NULL,
		updated_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS instances (
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		id TEXT NOT NULL,
		spec TEXT NOT NULL,
		state TEXT NOT NULL,
		claims_json TEXT,
		diagnostics_json TEXT,
		PRIMARY KEY (project_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_instances_spec ON instances(spec);
	CREATE INDEX IF NOT EXISTS idx_projects_updated_at ON projects(updated_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Save writes p, replacing any earlier version with the same id.
func (s *SQLStore) Save(p *project.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err = tx.Exec(`
		INSERT INTO projects (id, name, valid, format, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			valid = excluded.valid,
			format = excluded.format,
			updated_at = excluded.updated_at
	`, p.ID, p.Name, p.Valid, version.SnapshotFormat, updated)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM instances WHERE project_id = ?`, p.ID); err != nil {
		return err
	}
	for i, inst := range p.Instances {
		claims, err := json.Marshal(inst.Claims)
		if err != nil {
			return err
		}
		diags, err := json.Marshal(inst.Diagnostics)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
			INSERT INTO instances (project_id, position, id, spec, state, claims_json, diagnostics_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, p.ID, i, inst.ID, inst.SpecID, string(inst.State), string(claims), string(diags))
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Load retrieves a project by id and rebinds its specs against c.
// Returns nil, nil if there is no such project.
func (s *SQLStore) Load(id string, c *catalog.Catalog) (*project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := &project.Project{}
	var name sql.NullString
	var updatedAt sql.NullTime
	var format string

	err := s.db.QueryRow(`
		SELECT id, name, valid, format, updated_at FROM projects WHERE id = ?
	`, id).Scan(&p.ID, &name, &p.Valid, &format, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := version.CanRead(format); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompatibleSnapshot, err)
	}
	if name.Valid {
		p.Name = name.String
	}
	if updatedAt.Valid {
		p.UpdatedAt = updatedAt.Time
	}

	rows, err := s.db.Query(`
		SELECT id, spec, state, claims_json, diagnostics_json
		FROM instances WHERE project_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		inst := &project.Instance{}
		var state string
		var claims, diags sql.NullString
		if err := rows.Scan(&inst.ID, &inst.SpecID, &state, &claims, &diags); err != nil {
			return nil, err
		}
		inst.State = project.LifecycleState(state)
		if claims.Valid {
			if err := json.Unmarshal([]byte(claims.String), &inst.Claims); err != nil {
				return nil, fmt.Errorf("instance %s claims: %w", inst.ID, err)
			}
		}
		if diags.Valid {
			if err := json.Unmarshal([]byte(diags.String), &inst.Diagnostics); err != nil {
				return nil, fmt.Errorf("instance %s diagnostics: %w", inst.ID, err)
			}
		}
		p.Instances = append(p.Instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := p.Rebind(c); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns project summaries, most recently updated first.
func (s *SQLStore) List(limit, offset int) ([]ProjectSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT p.id, p.name, p.valid, p.updated_at, COUNT(i.id)
		FROM projects p LEFT JOIN instances i ON i.project_id = p.id
		GROUP BY p.id
		ORDER BY p.updated_at DESC, p.id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProjectSummary
	for rows.Next() {
		var ps ProjectSummary
		var name sql.NullString
		var updatedAt sql.NullTime
		if err := rows.Scan(&ps.ID, &name, &ps.Valid, &updatedAt, &ps.Instances); err != nil {
			return nil, err
		}
		if name.Valid {
			ps.Name = name.String
		}
		if updatedAt.Valid {
			ps.UpdatedAt = updatedAt.Time
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

// Delete removes a project and its instances.
func (s *SQLStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Foreign keys are per connection; do not rely on the cascade.
	if _, err := tx.Exec(`DELETE FROM instances WHERE project_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	return tx.Commit()
}
