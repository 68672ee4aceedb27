package receipts

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zkreceipt/receipt-service/internal/log"
	"github.com/zkreceipt/receipt-service/internal/metrics"
)

var logger = log.Module("receipts")

const schema = `
CREATE TABLE IF NOT EXISTS receipts (
	id             TEXT PRIMARY KEY,
	model_id       TEXT NOT NULL,
	model_name     TEXT NOT NULL,
	status         TEXT NOT NULL,
	created_at     INTEGER NOT NULL,
	completed_at   INTEGER,
	model_hash     TEXT NOT NULL,
	input_hash     TEXT NOT NULL,
	output_hash    TEXT NOT NULL,
	output_json    TEXT,
	proof_hash     TEXT NOT NULL DEFAULT '',
	proof_size     INTEGER NOT NULL DEFAULT 0,
	prove_time_ms  INTEGER NOT NULL DEFAULT 0,
	verify_time_ms INTEGER NOT NULL DEFAULT 0,
	error          TEXT
);
CREATE INDEX IF NOT EXISTS idx_receipts_status ON receipts(status);
CREATE INDEX IF NOT EXISTS idx_receipts_model_id ON receipts(model_id);
`

// sqliteStore is the durable tier: a single SQLite connection opened in
// WAL mode, matching original_source/src/receipt.rs::SqliteStore. Writes
// are serialized through a single open connection (SetMaxOpenConns(1))
// rather than database/sql's default pool, since SQLite allows only one
// writer at a time and the original implementation relies on
// spawn_blocking against one shared connection for the same reason.
type sqliteStore struct {
	db *sql.DB
}

func newSQLiteStore(path string) (*sqliteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("receipts: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("receipts: set wal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("receipts: set synchronous mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("receipts: create schema: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) insert(r *Receipt) error {
	outputJSON, err := marshalOutput(r.Output)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO receipts (
			id, model_id, model_name, status, created_at, completed_at,
			model_hash, input_hash, output_hash, output_json,
			proof_hash, proof_size, prove_time_ms, verify_time_ms, error
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.ModelID, r.ModelName, string(r.Status), r.CreatedAt, r.CompletedAt,
		r.ModelHash, r.InputHash, r.OutputHash, outputJSON,
		r.ProofHash, r.ProofSize, r.ProveTimeMs, r.VerifyTimeMs, r.Error,
	)
	return err
}

func (s *sqliteStore) update(r *Receipt) error {
	outputJSON, err := marshalOutput(r.Output)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		UPDATE receipts SET
			status=?, completed_at=?, output_json=?,
			proof_hash=?, proof_size=?, prove_time_ms=?, verify_time_ms=?, error=?
		WHERE id=?`,
		string(r.Status), r.CompletedAt, outputJSON,
		r.ProofHash, r.ProofSize, r.ProveTimeMs, r.VerifyTimeMs, r.Error,
		r.ID,
	)
	return err
}

func (s *sqliteStore) get(id string) (*Receipt, error) {
	row := s.db.QueryRow(`
		SELECT id, model_id, model_name, status, created_at, completed_at,
			model_hash, input_hash, output_hash, output_json,
			proof_hash, proof_size, prove_time_ms, verify_time_ms, error
		FROM receipts WHERE id = ?`, id)
	return scanReceipt(row)
}

func (s *sqliteStore) recent(limit int) ([]*Receipt, error) {
	rows, err := s.db.Query(`
		SELECT id, model_id, model_name, status, created_at, completed_at,
			model_hash, input_hash, output_hash, output_json,
			proof_hash, proof_size, prove_time_ms, verify_time_ms, error
		FROM receipts ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// stats computes the durable aggregate spec.md §4.5 requires: overall
// status counts, average prove time over completed (verified or failed)
// receipts, average verify time over verified receipts, and a per-model
// breakdown of receipt count and average prove time.
func (s *sqliteStore) stats() (Stats, error) {
	var st Stats
	row := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'proving'),
			COUNT(*) FILTER (WHERE status = 'verified'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COALESCE(AVG(prove_time_ms) FILTER (WHERE status IN ('verified', 'failed')), 0),
			COALESCE(AVG(verify_time_ms) FILTER (WHERE status = 'verified'), 0)
		FROM receipts`)
	if err := row.Scan(&st.Total, &st.Proving, &st.Verified, &st.Failed, &st.AvgProveTimeMs, &st.AvgVerifyTimeMs); err != nil {
		return Stats{}, err
	}

	rows, err := s.db.Query(`
		SELECT model_id, COUNT(*), COALESCE(AVG(prove_time_ms) FILTER (WHERE status IN ('verified', 'failed')), 0)
		FROM receipts GROUP BY model_id ORDER BY model_id`)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var ms ModelStats
		if err := rows.Scan(&ms.ModelID, &ms.Count, &ms.AvgProveTimeMs); err != nil {
			return Stats{}, err
		}
		st.ByModel = append(st.ByModel, ms)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// scanner abstracts over *sql.Row and *sql.Rows, both of which support Scan.
type scanner interface {
	Scan(dest ...any) error
}

func scanReceipt(sc scanner) (*Receipt, error) {
	var r Receipt
	var status string
	var outputJSON sql.NullString
	var completedAt sql.NullInt64
	var errStr sql.NullString

	err := sc.Scan(
		&r.ID, &r.ModelID, &r.ModelName, &status, &r.CreatedAt, &completedAt,
		&r.ModelHash, &r.InputHash, &r.OutputHash, &outputJSON,
		&r.ProofHash, &r.ProofSize, &r.ProveTimeMs, &r.VerifyTimeMs, &errStr,
	)
	if err != nil {
		return nil, err
	}
	r.Status = ParseStatus(status)
	if completedAt.Valid {
		v := completedAt.Int64
		r.CompletedAt = &v
	}
	if errStr.Valid {
		r.Error = errStr.String
	}
	if outputJSON.Valid && outputJSON.String != "" {
		var out Output
		if err := json.Unmarshal([]byte(outputJSON.String), &out); err != nil {
			return nil, fmt.Errorf("receipts: decode output: %w", err)
		}
		r.Output = &out
	}
	return &r, nil
}

func marshalOutput(o *Output) (any, error) {
	if o == nil {
		return nil, nil
	}
	b, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// hotEntry wraps a cached receipt with its insertion time, reused for
// age-based cleanup the same way
// wyf-ACCEPT-eth2030/pkg/proofs.ProofCache tracks insertedAt per entry.
type hotEntry struct {
	receipt    *Receipt
	insertedAt time.Time
}

// Store is the dual-tier receipt store: an in-memory hot cache checked
// first, falling back to and repopulated from the durable SQLite tier.
// Every mutation is written through to SQLite before being considered
// complete, following original_source/src/receipt.rs::ReceiptStore.
type Store struct {
	mu  sync.RWMutex
	hot map[string]*hotEntry
	db  *sqliteStore

	inserts *metrics.Counter
	hits    *metrics.Counter
	misses  *metrics.Counter
}

// Open creates or opens the SQLite database at path and returns a Store
// with an empty hot cache.
func Open(path string) (*Store, error) {
	db, err := newSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	return &Store{
		hot:     make(map[string]*hotEntry),
		db:      db,
		inserts: metrics.DefaultRegistry.Counter("receipt_store_inserts_total"),
		hits:    metrics.DefaultRegistry.Counter("receipt_store_cache_hits_total"),
		misses:  metrics.DefaultRegistry.Counter("receipt_store_cache_misses_total"),
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.db.Close()
}

// Insert writes a new receipt to both tiers. Per spec.md's "exactly
// twice" rule, this is the first of exactly two writes a receipt ever
// receives (the second being the single terminal Update call).
func (s *Store) Insert(r *Receipt) error {
	if err := s.db.insert(r); err != nil {
		return fmt.Errorf("receipts: durable insert: %w", err)
	}
	s.mu.Lock()
	s.hot[r.ID] = &hotEntry{receipt: r, insertedAt: time.Now()}
	s.mu.Unlock()
	s.inserts.Inc()
	return nil
}

// Get returns the receipt by id, checking the hot cache first and
// falling back to — then repopulating from — the durable tier.
func (s *Store) Get(id string) (*Receipt, error) {
	s.mu.RLock()
	entry, ok := s.hot[id]
	s.mu.RUnlock()
	if ok {
		s.hits.Inc()
		return entry.receipt, nil
	}
	s.misses.Inc()

	r, err := s.db.get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.hot[id] = &hotEntry{receipt: r, insertedAt: time.Now()}
	s.mu.Unlock()
	return r, nil
}

// Update applies mutate to the receipt's in-memory copy, then writes the
// mutated receipt to the durable tier. Per spec.md's "at-most-once
// background proving, exactly-twice write" invariant, this must be
// called at most once per receipt (by the background prover, on either
// the Verified or Failed terminal path).
//
// If CleanupCache has already evicted the hot entry by the time the
// background prover finishes, the hot miss falls back to the durable
// row: reading it in, applying mutate, and reinstating the hot entry,
// so a terminal write is never silently dropped.
func (s *Store) Update(id string, mutate func(*Receipt)) error {
	s.mu.Lock()
	entry, ok := s.hot[id]
	if ok {
		mutate(entry.receipt)
		r := entry.receipt
		s.mu.Unlock()

		if err := s.db.update(r); err != nil {
			return fmt.Errorf("receipts: durable update: %w", err)
		}
		return nil
	}
	s.mu.Unlock()

	r, err := s.db.get(id)
	if err != nil {
		return fmt.Errorf("receipts: update of unknown receipt %q: %w", id, err)
	}
	mutate(r)

	s.mu.Lock()
	s.hot[id] = &hotEntry{receipt: r, insertedAt: time.Now()}
	s.mu.Unlock()

	if err := s.db.update(r); err != nil {
		return fmt.Errorf("receipts: durable update: %w", err)
	}
	return nil
}

// Recent returns up to limit receipt summaries, most recent first,
// clamped to MaxRecentLimit per spec.md.
const MaxRecentLimit = 50

func (s *Store) Recent(limit int) ([]Summary, error) {
	if limit <= 0 || limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	rs, err := s.db.recent(limit)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, len(rs))
	for i, r := range rs {
		out[i] = r.ToSummary()
	}
	return out, nil
}

// Stats returns aggregate counts across all receipts in the durable tier.
func (s *Store) Stats() (Stats, error) {
	return s.db.stats()
}

// CleanupCache evicts hot-cache entries older than maxAge, matching
// original_source/src/receipt.rs::ReceiptStore::cleanup_cache. This does
// not touch the durable tier: a receipt evicted from the hot cache is
// still retrievable via Get, which repopulates it from SQLite.
func (s *Store) CleanupCache(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.hot {
		if entry.insertedAt.Before(cutoff) {
			delete(s.hot, id)
			removed++
		}
	}
	if removed > 0 {
		logger.Info("evicted stale hot cache entries", "count", removed)
	}
	return removed
}
