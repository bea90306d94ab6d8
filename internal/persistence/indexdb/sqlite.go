// Package indexdb maintains a queryable SQLite index of a run: ticks,
// pairings, trades, market clears and snapshots. The JSONL logs remain the
// source of truth; the index is written asynchronously and may drop rows
// under backpressure.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"tradegrid.ai/internal/persistence/snapshot"
	"tradegrid.ai/internal/protocol"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	tick     protocol.TickMsg
	snapshot snapshotRow
}

type snapshotRow struct {
	RunID     string
	Tick      uint64
	Path      string
	Digest    string
	Agents    int
	Resources int
	Markets   int
}

// QueueStats reports writer backpressure.
type QueueStats struct {
	QueueDepth        int
	QueueCapacity     int
	DropTickTotal     uint64
	DropSnapshotTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
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
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
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
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			config_digest TEXT NOT NULL,
			config_json TEXT NOT NULL,
			started_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			digest TEXT NOT NULL,
			events INTEGER NOT NULL,
			trades INTEGER NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS pairings (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			agent_a INTEGER NOT NULL,
			agent_b INTEGER NOT NULL,
			reason TEXT NOT NULL,
			PRIMARY KEY (run_id, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pairings_agent ON pairings(run_id, agent_a, tick);`,
		`CREATE TABLE IF NOT EXISTS trades (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			buyer_id INTEGER NOT NULL,
			seller_id INTEGER NOT NULL,
			pair_type TEXT NOT NULL,
			quantity TEXT NOT NULL,
			payment TEXT NOT NULL,
			price TEXT NOT NULL,
			buyer_gain REAL NOT NULL,
			seller_gain REAL NOT NULL,
			source TEXT NOT NULL,
			protocol TEXT,
			PRIMARY KEY (run_id, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_buyer ON trades(run_id, buyer_id, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_seller ON trades(run_id, seller_id, tick);`,
		`CREATE TABLE IF NOT EXISTS market_clears (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			market_id INTEGER NOT NULL,
			commodity TEXT NOT NULL,
			numeraire TEXT NOT NULL,
			price TEXT NOT NULL,
			quantity TEXT NOT NULL,
			participants INTEGER NOT NULL,
			converged INTEGER NOT NULL,
			iterations INTEGER NOT NULL,
			PRIMARY KEY (run_id, tick, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			digest TEXT NOT NULL,
			agents INTEGER NOT NULL,
			resources INTEGER NOT NULL,
			markets INTEGER NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
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

// Stats returns queue depth and drop counters.
func (s *SQLiteIndex) Stats() QueueStats {
	return QueueStats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry protocol.TickMsg) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		RunID:     snap.Header.RunID,
		Tick:      snap.Header.Tick,
		Path:      path,
		Digest:    snap.Header.Digest,
		Agents:    len(snap.Agents),
		Resources: len(snap.Resources),
		Markets:   len(snap.Markets),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// UpsertRun records the run and the configuration it applies. It writes
// synchronously so the row exists before any tick is indexed.
func (s *SQLiteIndex) UpsertRun(runID string, seed int64, config any) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(config)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO runs(run_id,seed,config_digest,config_json,started_at) VALUES(?,?,?,?,?)`,
		runID, seed, hex.EncodeToString(sum[:]), string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(run_id,tick,digest,events,trades) VALUES(?,?,?,?,?)`)
	insertPairing, _ := s.db.Prepare(`INSERT OR REPLACE INTO pairings(run_id,tick,seq,kind,agent_a,agent_b,reason) VALUES(?,?,?,?,?,?,?)`)
	insertTrade, _ := s.db.Prepare(`INSERT OR REPLACE INTO trades(run_id,tick,seq,buyer_id,seller_id,pair_type,quantity,payment,price,buyer_gain,seller_gain,source,protocol) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertClear, _ := s.db.Prepare(`INSERT OR REPLACE INTO market_clears(run_id,tick,seq,market_id,commodity,numeraire,price,quantity,participants,converged,iterations) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(run_id,tick,path,digest,agents,resources,markets) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertPairing, insertTrade, insertClear, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			t := r.tick
			trades := 0
			for _, e := range t.Events {
				if e.Type == protocol.EventTrade {
					trades++
				}
			}
			if !exec(insertTick, t.RunID, int64(t.Tick), t.Digest, len(t.Events), trades) {
				continue
			}
		events:
			for seq, e := range t.Events {
				ok := true
				switch e.Type {
				case protocol.EventPairFormed, protocol.EventPairDissolved:
					if len(e.Agents) == 2 {
						ok = exec(insertPairing, t.RunID, int64(t.Tick), seq, e.Type, e.Agents[0], e.Agents[1], e.Reason)
					}
				case protocol.EventTrade:
					if tr := e.Trade; tr != nil {
						ok = exec(insertTrade, t.RunID, int64(t.Tick), seq, tr.BuyerID, tr.SellerID, tr.PairType,
							tr.Quantity, tr.Payment, tr.Price, tr.BuyerGain, tr.SellerGain, tr.Source, tr.Protocol)
					}
				case protocol.EventMarketClear:
					if m := e.Market; m != nil {
						ok = exec(insertClear, t.RunID, int64(t.Tick), seq, m.MarketID, m.Commodity, m.Numeraire,
							m.Price, m.Quantity, m.Participants, boolInt(m.Converged), m.Iterations)
					}
				}
				if !ok {
					break events
				}
			}

		case reqSnapshot:
			sn := r.snapshot
			if !exec(insertSnapshot, sn.RunID, int64(sn.Tick), sn.Path, sn.Digest, sn.Agents, sn.Resources, sn.Markets) {
				continue
			}
		}
		flushIfNeeded()
	}

	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
