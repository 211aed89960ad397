package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"gatekeeper/internal/models"
)

// PlateRepository implements repository.PlateRepository on SQLite.
type PlateRepository struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// New opens (creating if necessary) the gate database and migrates the
// schema.
func New(dbPath string) (*PlateRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	repo := &PlateRepository{conn: conn}

	if err := repo.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

// migrate creates the plates and movement_log tables if they don't exist.
func (r *PlateRepository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS plates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		plate_number TEXT UNIQUE NOT NULL,
		added_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS movement_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		plate_number TEXT NOT NULL,
		action TEXT NOT NULL,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_plates_number ON plates(plate_number);
	CREATE INDEX IF NOT EXISTS idx_movement_log_plate ON movement_log(plate_number);
	`

	_, err := r.conn.Exec(schema)
	return err
}

// IsAuthorized performs the point lookup for a normalized plate.
func (r *PlateRepository) IsAuthorized(plate string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int
	err := r.conn.QueryRow(`SELECT COUNT(*) FROM plates WHERE plate_number = ?`, plate).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check plate: %w", err)
	}
	return count > 0, nil
}

// LogMovement appends one movement log row for a decision.
func (r *PlateRepository) LogMovement(plate, action string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.conn.Exec(`
		INSERT INTO movement_log (plate_number, action)
		VALUES (?, ?)
	`, plate, action)
	if err != nil {
		return fmt.Errorf("failed to log movement: %w", err)
	}
	return nil
}

// AddPlate authorizes a plate. Adding an existing plate is not an error.
func (r *PlateRepository) AddPlate(plate string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.conn.Exec(`INSERT OR IGNORE INTO plates (plate_number) VALUES (?)`, plate)
	if err != nil {
		return fmt.Errorf("failed to add plate: %w", err)
	}
	return nil
}

// ListPlates returns all authorized plates.
func (r *PlateRepository) ListPlates() ([]models.Plate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.conn.Query(`SELECT id, plate_number, added_date FROM plates ORDER BY plate_number`)
	if err != nil {
		return nil, fmt.Errorf("failed to query plates: %w", err)
	}
	defer rows.Close()

	var plates []models.Plate
	for rows.Next() {
		var p models.Plate
		if err := rows.Scan(&p.ID, &p.PlateNumber, &p.AddedDate); err != nil {
			return nil, fmt.Errorf("failed to scan plate: %w", err)
		}
		plates = append(plates, p)
	}
	return plates, rows.Err()
}

// Close closes the database connection.
func (r *PlateRepository) Close() error {
	return r.conn.Close()
}
