package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Seasonsling/clarion/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
// The plan document is stored as one JSON blob per project; every save is a
// whole-document replace, so concurrent saves are last-write-wins.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes all DB access through Go's connection pool.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// marshalDoc serializes the phase tree for storage.
func marshalDoc(p *models.Project) (string, error) {
	doc, err := json.Marshal(struct {
		Phases []*models.Phase `json:"phases"`
	}{Phases: p.Phases})
	if err != nil {
		return "", fmt.Errorf("marshal plan document: %w", err)
	}
	return string(doc), nil
}

func unmarshalDoc(doc string, p *models.Project) error {
	var payload struct {
		Phases []*models.Phase `json:"phases"`
	}
	if err := json.Unmarshal([]byte(doc), &payload); err != nil {
		return fmt.Errorf("unmarshal plan document: %w", err)
	}
	p.Phases = payload.Phases
	return nil
}

func (s *SQLiteStore) CreateProject(ctx context.Context, p *models.Project) error {
	if p.ID == "" {
		p.ID = newULID()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	doc, err := marshalDoc(p)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO projects (id, name, owner_id, doc, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.OwnerID, doc, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("project already exists: %s", p.ID)
		}
		return fmt.Errorf("create project: %w", err)
	}

	if err := syncMembers(ctx, tx, p); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	p := &models.Project{}
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, doc, created_at, updated_at FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.OwnerID, &doc, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	if err := unmarshalDoc(doc, p); err != nil {
		return nil, err
	}
	if err := s.loadMembers(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context, userID string) ([]*models.Project, error) {
	var rows *sql.Rows
	var err error
	if userID != "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, name, owner_id, doc, created_at, updated_at FROM projects
			WHERE owner_id = ?
			   OR id IN (SELECT project_id FROM project_members WHERE user_id = ?)
			ORDER BY name`, userID, userID)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, name, owner_id, doc, created_at, updated_at FROM projects ORDER BY name`)
	}
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	// Drain and close the result set before loading members. The pool is
	// capped at one connection, so a nested query while rows are open would
	// wait on a connection that only rows.Close releases.
	var projects []*models.Project
	for rows.Next() {
		p := &models.Project{}
		var doc string
		if err := rows.Scan(&p.ID, &p.Name, &p.OwnerID, &doc, &p.CreatedAt, &p.UpdatedAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan project: %w", err)
		}
		if err := unmarshalDoc(doc, p); err != nil {
			_ = rows.Close()
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("list projects: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	for _, p := range projects {
		if err := s.loadMembers(ctx, p); err != nil {
			return nil, err
		}
	}
	return projects, nil
}

func (s *SQLiteStore) UpdateProject(ctx context.Context, p *models.Project) error {
	p.UpdatedAt = time.Now().UTC()

	doc, err := marshalDoc(p)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx,
		`UPDATE projects SET name=?, doc=?, updated_at=? WHERE id=?`,
		p.Name, doc, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("project not found: %s", p.ID)
	}

	if err := syncMembers(ctx, tx, p); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("project not found: %s", id)
	}
	return nil
}

// syncMembers replaces the membership rows for a project. Delete-all then
// reinsert keeps the table an exact mirror of the document's member list.
func syncMembers(ctx context.Context, tx *sql.Tx, p *models.Project) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM project_members WHERE project_id = ?", p.ID); err != nil {
		return fmt.Errorf("clear project members: %w", err)
	}
	for _, m := range p.Members {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO project_members (project_id, user_id, role) VALUES (?, ?, ?)",
			p.ID, m.UserID, string(m.Role),
		); err != nil {
			return fmt.Errorf("insert project member: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) loadMembers(ctx context.Context, p *models.Project) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id, role FROM project_members WHERE project_id = ? ORDER BY user_id", p.ID)
	if err != nil {
		return fmt.Errorf("load project members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	p.Members = nil
	for rows.Next() {
		var m models.Member
		var role string
		if err := rows.Scan(&m.UserID, &role); err != nil {
			return fmt.Errorf("scan project member: %w", err)
		}
		m.Role = models.Role(role)
		p.Members = append(p.Members, m)
	}
	return rows.Err()
}
