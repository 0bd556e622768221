// Package storage persists test session results so runs can be compared
// over time and browsed by the report server.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tmiw/radae-ota/pkg/analysis"
	"github.com/tmiw/radae-ota/pkg/logging"
)

// SessionRecord is one stored test session.
type SessionRecord struct {
	ID          int64     `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	Mode        string    `json:"mode"` // txrx or rxonly
	FrequencyHz int64     `json:"frequency_hz"`
	PowerMode   string    `json:"power_mode"` // peak or rms
	Setpoint    float64   `json:"setpoint"`

	TxPath      string `json:"tx_path"`
	CapturePath string `json:"capture_path"`
	DecodedPath string `json:"decoded_path"`
	MetricsPath string `json:"metrics_path"`

	CNoDBHz     float64 `json:"cno_db_hz"`
	SyncRatio   float64 `json:"sync_ratio"`
	MeanSNRdB   float64 `json:"mean_snr_db"`
	FrameCount  int     `json:"frame_count"`
	Termination string  `json:"termination"`
}

// SessionStore handles persistent storage of session results in SQLite.
type SessionStore struct {
	db          *sql.DB
	dbPath      string
	maxSessions int
}

// NewSessionStore creates a session store with a SQLite backend.
func NewSessionStore(dbPath string, maxSessions int) (*SessionStore, error) {
	store := &SessionStore{
		dbPath:      dbPath,
		maxSessions: maxSessions,
	}
	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}
	return store, nil
}

func (ss *SessionStore) initialize() error {
	if ss.dbPath == "" {
		ss.dbPath = "./ota_sessions.db"
	}
	if dir := filepath.Dir(ss.dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	connectionString := ss.dbPath + "?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=on"
	db, err := sql.Open("sqlite3", connectionString)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	ss.db = db

	if err := ss.createTables(); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	logging.Infof("storage", "Session store initialized: %s (max %d sessions)", ss.dbPath, ss.maxSessions)
	return nil
}

func (ss *SessionStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		mode TEXT NOT NULL CHECK (mode IN ('txrx', 'rxonly')),
		frequency_hz INTEGER NOT NULL DEFAULT 0,
		power_mode TEXT NOT NULL DEFAULT 'peak',
		setpoint REAL NOT NULL DEFAULT 0,
		tx_path TEXT NOT NULL DEFAULT '',
		capture_path TEXT NOT NULL DEFAULT '',
		decoded_path TEXT NOT NULL DEFAULT '',
		metrics_path TEXT NOT NULL DEFAULT '',
		cno_db_hz REAL NOT NULL DEFAULT 0,
		sync_ratio REAL NOT NULL DEFAULT 0,
		mean_snr_db REAL NOT NULL DEFAULT 0,
		frame_count INTEGER NOT NULL DEFAULT 0,
		termination TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS frame_metrics (
		session_id INTEGER NOT NULL,
		frame INTEGER NOT NULL,
		sync INTEGER NOT NULL DEFAULT 0,
		snr_db REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (session_id, frame),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at DESC);
	`
	_, err := ss.db.Exec(schema)
	return err
}

// SaveSession stores a session record plus its per-frame metrics, returning
// the new session ID. Old sessions beyond the configured maximum are
// pruned.
func (ss *SessionStore) SaveSession(rec *SessionRecord, metrics []analysis.FrameMetric) (int64, error) {
	tx, err := ss.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO sessions (started_at, mode, frequency_hz, power_mode, setpoint,
			tx_path, capture_path, decoded_path, metrics_path,
			cno_db_hz, sync_ratio, mean_snr_db, frame_count, termination)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.StartedAt, rec.Mode, rec.FrequencyHz, rec.PowerMode, rec.Setpoint,
		rec.TxPath, rec.CapturePath, rec.DecodedPath, rec.MetricsPath,
		rec.CNoDBHz, rec.SyncRatio, rec.MeanSNRdB, len(metrics), rec.Termination)
	if err != nil {
		return 0, fmt.Errorf("failed to insert session: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get session ID: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO frame_metrics (session_id, frame, sync, snr_db) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare metrics insert: %w", err)
	}
	defer stmt.Close()
	for _, m := range metrics {
		sync := 0
		if m.Sync {
			sync = 1
		}
		if _, err := stmt.Exec(id, m.Frame, sync, m.SNRdB); err != nil {
			return 0, fmt.Errorf("failed to insert frame metric: %w", err)
		}
	}

	if ss.maxSessions > 0 {
		if _, err := tx.Exec(`
			DELETE FROM sessions WHERE id NOT IN (
				SELECT id FROM sessions ORDER BY started_at DESC, id DESC LIMIT ?
			)`, ss.maxSessions); err != nil {
			return 0, fmt.Errorf("failed to prune old sessions: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit session: %w", err)
	}

	rec.ID = id
	rec.FrameCount = len(metrics)
	logging.Infof("storage", "Stored session %d (%s, %d frames)", id, rec.Mode, len(metrics))
	return id, nil
}

const sessionColumns = `id, started_at, mode, frequency_hz, power_mode, setpoint,
	tx_path, capture_path, decoded_path, metrics_path,
	cno_db_hz, sync_ratio, mean_snr_db, frame_count, termination`

func scanSession(row interface{ Scan(...interface{}) error }) (*SessionRecord, error) {
	var rec SessionRecord
	err := row.Scan(&rec.ID, &rec.StartedAt, &rec.Mode, &rec.FrequencyHz, &rec.PowerMode,
		&rec.Setpoint, &rec.TxPath, &rec.CapturePath, &rec.DecodedPath, &rec.MetricsPath,
		&rec.CNoDBHz, &rec.SyncRatio, &rec.MeanSNRdB, &rec.FrameCount, &rec.Termination)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetSession fetches one session by ID.
func (ss *SessionStore) GetSession(id int64) (*SessionRecord, error) {
	row := ss.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	rec, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return rec, nil
}

// ListSessions returns the most recent sessions, newest first.
func (ss *SessionStore) ListSessions(limit int) ([]*SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := ss.db.Query(`SELECT `+sessionColumns+` FROM sessions
		ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, rec)
	}
	return sessions, rows.Err()
}

// LatestSessionID returns the newest session ID, or 0 when empty.
func (ss *SessionStore) LatestSessionID() (int64, error) {
	var id sql.NullInt64
	if err := ss.db.QueryRow(`SELECT MAX(id) FROM sessions`).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to query latest session: %w", err)
	}
	return id.Int64, nil
}

// GetFrameMetrics fetches the stored per-frame series for a session.
func (ss *SessionStore) GetFrameMetrics(sessionID int64) ([]analysis.FrameMetric, error) {
	rows, err := ss.db.Query(`SELECT frame, sync, snr_db FROM frame_metrics
		WHERE session_id = ? ORDER BY frame`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query frame metrics: %w", err)
	}
	defer rows.Close()

	var metrics []analysis.FrameMetric
	for rows.Next() {
		var m analysis.FrameMetric
		var sync int
		if err := rows.Scan(&m.Frame, &sync, &m.SNRdB); err != nil {
			return nil, fmt.Errorf("failed to scan frame metric: %w", err)
		}
		m.Sync = sync != 0
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// Close closes the database.
func (ss *SessionStore) Close() error {
	if ss.db != nil {
		return ss.db.Close()
	}
	return nil
}
