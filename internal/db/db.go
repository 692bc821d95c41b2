// Package db is the upload journal: a SQLite record of upload outcomes
// (kind, status, sizes, timing) that never stores row or sample values.
package db

import (
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/signal.viewer/internal/monitoring"
	"github.com/banshee-data/signal.viewer/internal/timeutil"
)

// Upload kinds.
const (
	KindCSV  = "csv"
	KindWFDB = "wfdb"
	KindDemo = "demo"
)

// DefaultRecentLimit is used by RecentUploads when limit is not positive.
const DefaultRecentLimit = 50

// MaxRecentLimit caps RecentUploads.
const MaxRecentLimit = 1000

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
}

type DB struct {
	*sql.DB
	path   string
	logger *slog.Logger
	clock  timeutil.Clock
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger used for migrations and admin handlers.
func WithLogger(l *slog.Logger) Option {
	return func(db *DB) { db.logger = monitoring.OrDiscard(l) }
}

// WithClock sets the clock that stamps uploads recorded without a time.
func WithClock(c timeutil.Clock) Option {
	return func(db *DB) { db.clock = c }
}

// OpenDB opens the journal without touching the schema.
func OpenDB(path string, opts ...Option) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	db := &DB{DB: sqlDB, path: path, logger: monitoring.Discard(), clock: timeutil.RealClock{}}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// NewDB opens the journal and applies any pending migrations.
func NewDB(path string, opts ...Option) (*DB, error) {
	db, err := OpenDB(path, opts...)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// UploadEvent is one journal row.
type UploadEvent struct {
	UploadID   string    `json:"upload_id"`
	Kind       string    `json:"kind"`
	Filename   string    `json:"filename"`
	Status     int       `json:"status"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Rows       int       `json:"rows"`
	NumSignals int       `json:"num_signals"`
	NumSamples int       `json:"num_samples"`
	Synthetic  bool      `json:"synthetic"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

func (e *UploadEvent) String() string {
	return fmt.Sprintf("%s %s %q status=%d rows=%d signals=%d samples=%d synthetic=%v %dms",
		e.UploadID, e.Kind, e.Filename, e.Status, e.Rows, e.NumSignals, e.NumSamples, e.Synthetic, e.DurationMS)
}

// RecordUpload stores e, filling in UploadID and CreatedAt when unset, and
// returns the stored event.
func (db *DB) RecordUpload(e UploadEvent) (UploadEvent, error) {
	if e.UploadID == "" {
		e.UploadID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = db.clock.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC().Truncate(time.Millisecond)

	_, err := db.Exec(`
		INSERT INTO uploads (
			upload_id, kind, filename, status, error_kind, rows,
			num_signals, num_samples, synthetic, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UploadID, e.Kind, e.Filename, e.Status, e.ErrorKind, e.Rows,
		e.NumSignals, e.NumSamples, e.Synthetic, e.DurationMS, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return e, fmt.Errorf("failed to record upload %s: %w", e.UploadID, err)
	}
	return e, nil
}

// RecentUploads returns up to limit uploads, newest first.
func (db *DB) RecentUploads(limit int) ([]UploadEvent, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	rows, err := db.Query(`
		SELECT upload_id, kind, filename, status, error_kind, rows,
		       num_signals, num_samples, synthetic, duration_ms, created_at
		  FROM uploads
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	events := []UploadEvent{}
	for rows.Next() {
		var e UploadEvent
		var createdMS int64
		if err := rows.Scan(&e.UploadID, &e.Kind, &e.Filename, &e.Status, &e.ErrorKind, &e.Rows,
			&e.NumSignals, &e.NumSamples, &e.Synthetic, &e.DurationMS, &createdMS); err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		e.CreatedAt = time.UnixMilli(createdMS).UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// UploadCounts returns the number of journalled uploads per kind.
func (db *DB) UploadCounts() (map[string]int, error) {
	rows, err := db.Query(`SELECT kind, COUNT(*) FROM uploads GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count uploads: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

// AttachAdminRoutes mounts the tsweb debugger on mux with a tailsql browser
// over the journal, a JSON summary and a backup download.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Upload journal",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("uploads", "Recent uploads and per-kind counts (JSON)", http.HandlerFunc(db.handleUploadStats))
	debug.Handle("backup", "Create and download a backup of the journal now", http.HandlerFunc(db.handleBackup))
	return nil
}

func (db *DB) handleUploadStats(w http.ResponseWriter, r *http.Request) {
	limit := DefaultRecentLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	recent, err := db.RecentUploads(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	counts, err := db.UploadCounts()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"counts": counts,
		"recent": recent,
	}); err != nil {
		db.logger.Error("failed to encode upload stats", "error", err)
	}
}

func (db *DB) handleBackup(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("backup-%d.db", db.clock.Now().Unix())
	backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("journal-%s-%s", uuid.NewString(), name))
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			db.logger.Warn("failed to remove backup file", "path", backupPath, "error", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Encoding", "gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		db.logger.Error("failed to stream backup", "error", err)
	}
}
