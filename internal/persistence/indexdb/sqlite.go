package indexdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"tradepost.gg/internal/trade"
)

// SQLiteIndex is a queryable read model of trade activity. Writes go
// through a buffered channel into a single writer goroutine so a slow disk
// never stalls a trade; entries are dropped (and counted) when the buffer
// is full.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan trade.AuditEntry
	wg   sync.WaitGroup
	once sync.Once

	closed    atomic.Bool
	dropTotal atomic.Uint64
	enqueued  atomic.Uint64
	written   atomic.Uint64
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
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan trade.AuditEntry, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS trade_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			kind TEXT NOT NULL,
			session_id TEXT,
			agent_a TEXT NOT NULL,
			agent_b TEXT,
			detail TEXT,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trade_events_session ON trade_events(session_id);`,
		`CREATE INDEX IF NOT EXISTS idx_trade_events_agent ON trade_events(agent_a, at);`,
		`CREATE TABLE IF NOT EXISTS trades (
			session_id TEXT PRIMARY KEY,
			completed_at TEXT NOT NULL,
			agent_a TEXT NOT NULL,
			agent_b TEXT NOT NULL,
			gave_a_json TEXT NOT NULL,
			gave_b_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_completed_at ON trades(completed_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Record implements trade.Recorder.
func (s *SQLiteIndex) Record(e trade.AuditEntry) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- e:
		s.enqueued.Add(1)
	default:
		// Indexer fell behind; the JSONL trade log remains the source of truth.
		s.dropTotal.Add(1)
	}
}

// DropTotal reports how many entries were discarded because the writer
// queue was full.
func (s *SQLiteIndex) DropTotal() uint64 {
	return s.dropTotal.Load()
}

func (s *SQLiteIndex) loop() {
	insertEvent, _ := s.db.Prepare(`INSERT INTO trade_events(at,kind,session_id,agent_a,agent_b,detail,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertTrade, _ := s.db.Prepare(`INSERT OR REPLACE INTO trades(session_id,completed_at,agent_a,agent_b,gave_a_json,gave_b_json) VALUES(?,?,?,?,?,?)`)
	defer func() {
		if insertEvent != nil {
			_ = insertEvent.Close()
		}
		if insertTrade != nil {
			_ = insertTrade.Close()
		}
	}()

	for e := range s.ch {
		at := e.Time.UTC().Format(time.RFC3339Nano)
		raw, _ := json.Marshal(e)
		if insertEvent != nil {
			_, _ = insertEvent.Exec(at, e.Kind, e.SessionID, e.AgentA, e.AgentB, e.Detail, string(raw))
		}
		if e.Kind == "COMPLETED" && insertTrade != nil {
			gaveA, _ := json.Marshal(e.GaveA)
			gaveB, _ := json.Marshal(e.GaveB)
			_, _ = insertTrade.Exec(e.SessionID, at, e.AgentA, e.AgentB, string(gaveA), string(gaveB))
		}
		s.written.Add(1)
	}
}

// CompletedTrade is one row of the trades table.
type CompletedTrade struct {
	SessionID   string
	CompletedAt string
	AgentA      string
	AgentB      string
	GaveAJSON   string
	GaveBJSON   string
}

// CompletedTrades returns the most recent completed trades, newest first.
func (s *SQLiteIndex) CompletedTrades(limit int) ([]CompletedTrade, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT session_id, completed_at, agent_a, agent_b, gave_a_json, gave_b_json
		FROM trades ORDER BY completed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CompletedTrade
	for rows.Next() {
		var t CompletedTrade
		if err := rows.Scan(&t.SessionID, &t.CompletedAt, &t.AgentA, &t.AgentB, &t.GaveAJSON, &t.GaveBJSON); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// EventCount returns the number of indexed trade events of one kind.
func (s *SQLiteIndex) EventCount(kind string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM trade_events WHERE kind = ?`, kind).Scan(&n)
	return n, err
}

// Flush blocks until every queued entry has been written. Test helper.
func (s *SQLiteIndex) Flush() {
	for s.written.Load() < s.enqueued.Load() {
		time.Sleep(5 * time.Millisecond)
	}
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}
