// Package store keeps parsed matrices in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spicery/nexus-reader/pkg/matrix"
)

// ErrNotFound is returned when no matrix has the requested ID.
var ErrNotFound = errors.New("matrix not found")

// Summary describes a stored matrix without its cells.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	Datatype  string    `json:"datatype"`
	NTax      int       `json:"ntax"`
	NChar     int       `json:"nchar"`
	CreatedAt time.Time `json:"created_at"`
}

// Store saves and loads matrices.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS matrices (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		datatype TEXT NOT NULL,
		symbols TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS taxa (
		matrix_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		taxon_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		PRIMARY KEY (matrix_id, position),
		FOREIGN KEY (matrix_id) REFERENCES matrices(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS characters (
		matrix_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		character_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		eliminated INTEGER NOT NULL DEFAULT 0,
		ordered INTEGER NOT NULL DEFAULT 0,
		states TEXT,
		PRIMARY KEY (matrix_id, position),
		FOREIGN KEY (matrix_id) REFERENCES matrices(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS cells (
		matrix_id TEXT NOT NULL,
		taxon_id INTEGER NOT NULL,
		character_id INTEGER NOT NULL,
		state TEXT NOT NULL,
		kind TEXT NOT NULL,
		PRIMARY KEY (matrix_id, taxon_id, character_id),
		FOREIGN KEY (matrix_id) REFERENCES matrices(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_matrices_created ON matrices(created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveMatrix stores m under a new ID, which is also set on m. source names
// the file the matrix came from.
func (s *Store) SaveMatrix(ctx context.Context, m *matrix.Matrix, source string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := uuid.New().String()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO matrices (id, title, source, datatype, symbols, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, m.Title, source, m.Datatype, m.Symbols, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to insert matrix: %w", err)
	}

	for i, t := range m.Taxa {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO taxa (matrix_id, position, taxon_id, name) VALUES (?, ?, ?, ?)
		`, id, i, t.ID, t.Name)
		if err != nil {
			return "", fmt.Errorf("failed to insert taxon '%s': %w", t.Name, err)
		}
	}

	for i, c := range m.Characters {
		var statesJSON []byte
		if len(c.States) > 0 {
			statesJSON, _ = json.Marshal(c.States)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO characters (matrix_id, position, character_id, name, eliminated, ordered, states)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, i, c.ID, c.Name, c.Eliminated, c.Ordered, statesJSON)
		if err != nil {
			return "", fmt.Errorf("failed to insert character '%s': %w", c.Name, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cells (matrix_id, taxon_id, character_id, state, kind) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()
	for _, k := range m.SortedKeys() {
		c := m.Cells[k]
		if _, err := stmt.ExecContext(ctx, id, k.TaxonID, k.CharacterID, c.State, c.Kind.String()); err != nil {
			return "", fmt.Errorf("failed to insert cell: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	m.ID = id
	return id, nil
}

// LoadMatrix reads back a stored matrix. It returns ErrNotFound for an
// unknown ID.
func (s *Store) LoadMatrix(ctx context.Context, id string) (*matrix.Matrix, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := &matrix.Matrix{ID: id, Cells: make(map[matrix.CellKey]matrix.Cell)}
	err := s.db.QueryRowContext(ctx, `
		SELECT title, datatype, symbols FROM matrices WHERE id = ?
	`, id).Scan(&m.Title, &m.Datatype, &m.Symbols)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get matrix: %w", err)
	}

	if err := s.loadTaxa(ctx, m); err != nil {
		return nil, err
	}
	if err := s.loadCharacters(ctx, m); err != nil {
		return nil, err
	}
	if err := s.loadCells(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) loadTaxa(ctx context.Context, m *matrix.Matrix) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT taxon_id, name FROM taxa WHERE matrix_id = ? ORDER BY position
	`, m.ID)
	if err != nil {
		return fmt.Errorf("failed to query taxa: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t := matrix.Taxon{Enabled: true}
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return fmt.Errorf("failed to scan taxon: %w", err)
		}
		m.Taxa = append(m.Taxa, t)
	}
	return rows.Err()
}

func (s *Store) loadCharacters(ctx context.Context, m *matrix.Matrix) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT character_id, name, eliminated, ordered, states
		FROM characters WHERE matrix_id = ? ORDER BY position
	`, m.ID)
	if err != nil {
		return fmt.Errorf("failed to query characters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c := matrix.Character{Enabled: true}
		var statesJSON sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &c.Eliminated, &c.Ordered, &statesJSON); err != nil {
			return fmt.Errorf("failed to scan character: %w", err)
		}
		if statesJSON.Valid {
			if err := json.Unmarshal([]byte(statesJSON.String), &c.States); err != nil {
				return fmt.Errorf("failed to decode states of character '%s': %w", c.Name, err)
			}
		}
		m.Characters = append(m.Characters, c)
	}
	return rows.Err()
}

func (s *Store) loadCells(ctx context.Context, m *matrix.Matrix) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT taxon_id, character_id, state, kind FROM cells WHERE matrix_id = ?
	`, m.ID)
	if err != nil {
		return fmt.Errorf("failed to query cells: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k matrix.CellKey
		var c matrix.Cell
		var kind string
		if err := rows.Scan(&k.TaxonID, &k.CharacterID, &c.State, &kind); err != nil {
			return fmt.Errorf("failed to scan cell: %w", err)
		}
		if c.Kind, err = matrix.ParseCellKind(kind); err != nil {
			return err
		}
		m.Cells[k] = c
	}
	return rows.Err()
}

// ListMatrices returns every stored matrix, newest first.
func (s *Store) ListMatrices(ctx context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.title, m.source, m.datatype, m.created_at,
			(SELECT COUNT(*) FROM taxa t WHERE t.matrix_id = m.id),
			(SELECT COUNT(*) FROM characters c WHERE c.matrix_id = m.id AND c.eliminated = 0)
		FROM matrices m
		ORDER BY m.created_at DESC, m.rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list matrices: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.Source, &sum.Datatype, &sum.CreatedAt, &sum.NTax, &sum.NChar); err != nil {
			return nil, fmt.Errorf("failed to scan matrix: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteMatrix removes a matrix with its taxa, characters and cells.
func (s *Store) DeleteMatrix(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM matrices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete matrix: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
