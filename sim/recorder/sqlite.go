// Package recorder writes simulation events to a SQLite database.
package recorder

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/trafficsim/qsim/sim/events"
)

// DefaultBatchSize is the number of buffered events that triggers a write.
const DefaultBatchSize = 10000

// ErrClosed is returned when writing to a closed recorder.
var ErrClosed = errors.New("recorder closed")

type row struct {
	seq     int64
	time    float64
	kind    string
	person  string
	vehicle string
	link    string
	attrs   string
}

// SQLiteRecorder is an events.Handler that buffers events and writes them in
// batches to the events table. Every processing cycle is stored as one run,
// identified by a fresh xid.
type SQLiteRecorder struct {
	*sql.DB

	mu         sync.Mutex
	statement  *sql.Stmt
	runID      string
	runWritten bool
	seq        int64
	buffer     []row
	batchSize  int
	closed     bool
}

// Open creates the database at path, which must not exist yet, and prepares
// its tables.
func Open(path string) (*SQLiteRecorder, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("file %s already exists", path)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return NewWithDB(db)
}

// NewWithDB creates a recorder on an existing database.
func NewWithDB(db *sql.DB) (*SQLiteRecorder, error) {
	r := &SQLiteRecorder{DB: db, batchSize: DefaultBatchSize}
	if err := r.createTables(); err != nil {
		return nil, err
	}
	stmt, err := db.Prepare(`INSERT INTO events VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("preparing insert: %w", err)
	}
	r.statement = stmt
	r.Reset()
	return r, nil
}

// SetBatchSize changes the flush threshold; values below 1 mean 1.
func (r *SQLiteRecorder) SetBatchSize(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batchSize = max(1, n)
}

func (r *SQLiteRecorder) createTables() error {
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS runs
		(
			run_id     VARCHAR(20) PRIMARY KEY,
			started_at VARCHAR(40) NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events
		(
			run_id  VARCHAR(20)  NOT NULL,
			seq     INTEGER      NOT NULL,
			time    FLOAT        NOT NULL,
			kind    VARCHAR(32)  NOT NULL,
			person  VARCHAR(200) NULL,
			vehicle VARCHAR(200) NULL,
			link    VARCHAR(200) NULL,
			attrs   TEXT         NULL
		);`,
		`CREATE INDEX IF NOT EXISTS events_run_seq_index ON events (run_id, seq);`,
		`CREATE INDEX IF NOT EXISTS events_kind_index ON events (kind);`,
		`CREATE INDEX IF NOT EXISTS events_link_index ON events (link);`,
	} {
		if _, err := r.Exec(stmt); err != nil {
			return fmt.Errorf("creating tables: %w", err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) String() string { return "sqlite-recorder" }

// RunID returns the id of the current run.
func (r *SQLiteRecorder) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}

// Reset starts a new run. Unflushed events of the previous run are dropped.
func (r *SQLiteRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buffer) > 0 {
		logrus.Warnf("recorder: dropping %d unflushed events of run %s", len(r.buffer), r.runID)
	}
	r.runID = xid.New().String()
	r.runWritten = false
	r.seq = 0
	r.buffer = r.buffer[:0]
}

// HandleEvent buffers e and writes the batch once it is full.
func (r *SQLiteRecorder) HandleEvent(e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	// attributes are stored as [key, value] pairs in event order
	var attrs string
	if a := e.Attributes(); len(a) > 0 {
		pairs := make([][2]string, len(a))
		for i, kv := range a {
			pairs[i] = [2]string{kv.Key, kv.Value}
		}
		b, err := json.Marshal(pairs)
		if err != nil {
			return fmt.Errorf("encoding attributes: %w", err)
		}
		attrs = string(b)
	}
	r.seq++
	r.buffer = append(r.buffer, row{
		seq: r.seq, time: e.Time(), kind: e.Kind().String(),
		person: e.PersonID(), vehicle: e.VehicleID(), link: e.LinkID(), attrs: attrs,
	})
	if len(r.buffer) >= r.batchSize {
		return r.flushLocked()
	}
	return nil
}

// Flush writes all the buffered events to the database.
func (r *SQLiteRecorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	return r.flushLocked()
}

func (r *SQLiteRecorder) flushLocked() (err error) {
	if len(r.buffer) == 0 && r.runWritten {
		return nil
	}
	tx, err := r.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if !r.runWritten {
		if _, err := tx.Exec(`INSERT INTO runs VALUES (?, ?)`, r.runID, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("inserting run %s: %w", r.runID, err)
		}
	}
	stmt := tx.Stmt(r.statement)
	for _, ev := range r.buffer {
		if _, err := stmt.Exec(r.runID, ev.seq, ev.time, ev.kind,
			nullable(ev.person), nullable(ev.vehicle), nullable(ev.link), nullable(ev.attrs)); err != nil {
			return fmt.Errorf("inserting event %d: %w", ev.seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing events: %w", err)
	}
	logrus.Debugf("recorder: wrote %d events of run %s", len(r.buffer), r.runID)
	r.runWritten = true
	r.buffer = r.buffer[:0]
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Close flushes pending events and closes the database. Safe to call twice.
func (r *SQLiteRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	ferr := r.flushLocked()
	r.closed = true
	serr := r.statement.Close()
	return errors.Join(ferr, serr, r.DB.Close())
}
