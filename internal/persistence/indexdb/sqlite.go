// Package indexdb is an optional read-model index of accepted
// mutations and persisted snapshots. It never sits on the mutation
// path: writes go through a buffered channel into a single writer
// goroutine, and a saturated queue drops entries.
package indexdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"moltcraft.dev/internal/world"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqAudit reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	audit    world.AuditEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	Ts     int64
	Path   string
	Blocks int
}

func Open(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	x := &SQLiteIndex{
		db: db,
		ch: make(chan req, 1024),
	}
	x.wg.Add(1)
	go x.writer()
	return x, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			session_id TEXT NOT NULL,
			action TEXT NOT NULL,
			x INTEGER,
			y INTEGER,
			z INTEGER,
			color TEXT,
			block_type TEXT,
			name TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit(ts)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			path TEXT NOT NULL,
			blocks INTEGER NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// WriteAudit implements world.AuditLogger. It never blocks the world
// loop; a full queue loses the entry.
func (x *SQLiteIndex) WriteAudit(entry world.AuditEntry) error {
	if x == nil || x.closed.Load() {
		return nil
	}
	select {
	case x.ch <- req{kind: reqAudit, audit: entry}:
	default:
	}
	return nil
}

// RecordSnapshot notes one successful world-file write.
func (x *SQLiteIndex) RecordSnapshot(path string, blocks int) {
	if x == nil || x.closed.Load() {
		return
	}
	select {
	case x.ch <- req{kind: reqSnapshot, snapshot: snapshotRow{
		Ts:     time.Now().UnixMilli(),
		Path:   path,
		Blocks: blocks,
	}}:
	default:
	}
}

func (x *SQLiteIndex) writer() {
	defer x.wg.Done()
	for r := range x.ch {
		switch r.kind {
		case reqAudit:
			e := r.audit
			_, _ = x.db.Exec(
				`INSERT INTO audit (ts, session_id, action, x, y, z, color, block_type, name)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				e.Ts, e.SessionID, e.Action, e.X, e.Y, e.Z, e.Color, e.BlockType, e.Name,
			)
		case reqSnapshot:
			s := r.snapshot
			_, _ = x.db.Exec(
				`INSERT INTO snapshots (ts, path, blocks) VALUES (?, ?, ?)`,
				s.Ts, s.Path, s.Blocks,
			)
		}
	}
}

func (x *SQLiteIndex) Close() error {
	if x == nil {
		return nil
	}
	x.once.Do(func() {
		x.closed.Store(true)
		close(x.ch)
	})
	x.wg.Wait()
	return x.db.Close()
}
