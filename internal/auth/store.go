package auth

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, grounded on kubilitics-ai/internal/db/sqlite.go
)

// MaxKeysPerUser is the "2-key-per-user limit" the dashboard enforces so
// rotation is always possible without a window of zero valid keys.
const MaxKeysPerUser = 2

const schemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_meta (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS api_keys (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL DEFAULT '',
    hash          TEXT NOT NULL,
    created_at    DATETIME NOT NULL,
    last_used_at  DATETIME,
    revoked_at    DATETIME
);
CREATE INDEX IF NOT EXISTS idx_api_keys_revoked_at ON api_keys(revoked_at);
`

// Store is the mutable singleton key store §3 describes: a bcrypt-hashed
// key table in an embedded SQLite database, an in-process LRU cache of
// recent verification outcomes, and a read-write lock guarding the
// snapshot readers use on the admission hot path.
type Store struct {
	db    *sql.DB
	cache *validationCache

	mu       sync.RWMutex
	snapshot []*ApiKey // copy-on-write; readers take this without touching db
}

// Open opens (or creates) the key store database at path, applying the
// one-row schema_meta version guard (used in place of PRAGMA
// user_version), then loads the initial snapshot.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open key store %q: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if err := guardSchemaVersion(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, cache: newValidationCache(1000)}
	if err := s.reload(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("loading key snapshot: %w", err)
	}
	return s, nil
}

func guardSchemaVersion(db *sql.DB) error {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_meta`).Scan(&count); err != nil {
		return fmt.Errorf("reading schema_meta: %w", err)
	}
	if count == 0 {
		_, err := db.Exec(`INSERT INTO schema_meta(version) VALUES(?)`, schemaVersion)
		return err
	}
	var version int
	if err := db.QueryRow(`SELECT version FROM schema_meta LIMIT 1`).Scan(&version); err != nil {
		return err
	}
	if version != schemaVersion {
		return fmt.Errorf("key store schema version %d does not match expected %d", version, schemaVersion)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// reload refreshes the in-memory snapshot from the database under the
// write lock.
func (s *Store) reload() error {
	rows, err := s.db.Query(`SELECT id, name, hash, created_at, last_used_at, revoked_at FROM api_keys`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var keys []*ApiKey
	for rows.Next() {
		k := &ApiKey{}
		var lastUsed, revoked sql.NullTime
		if err := rows.Scan(&k.ID, &k.Name, &k.Hash, &k.CreatedAt, &lastUsed, &revoked); err != nil {
			return err
		}
		if lastUsed.Valid {
			k.LastUsedAt = &lastUsed.Time
		}
		if revoked.Valid {
			k.RevokedAt = &revoked.Time
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.snapshot = keys
	s.mu.Unlock()
	return nil
}

// Empty reports whether no key has ever been created, the condition
// under which §4.6's bootstrap exception permits one unauthenticated
// POST to the key-creation endpoint.
func (s *Store) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshot) == 0
}

// CountActive returns the number of non-revoked keys, used to enforce
// MaxKeysPerUser.
func (s *Store) CountActive() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, k := range s.snapshot {
		if !k.Revoked() {
			n++
		}
	}
	return n
}

// Create issues a new key, enforcing MaxKeysPerUser, and returns the
// plaintext exactly once.
func (s *Store) Create(ctx context.Context, name string) (plaintext string, rec *ApiKey, err error) {
	if s.CountActive() >= MaxKeysPerUser {
		return "", nil, fmt.Errorf("key limit reached: at most %d active keys permitted", MaxKeysPerUser)
	}

	plaintext, rec, err = GenerateKey(name)
	if err != nil {
		return "", nil, err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO api_keys(id, name, hash, created_at) VALUES(?,?,?,?)`,
		rec.ID, rec.Name, rec.Hash, rec.CreatedAt.UTC())
	if err != nil {
		return "", nil, fmt.Errorf("inserting key: %w", err)
	}

	if err := s.reload(); err != nil {
		return "", nil, err
	}
	return plaintext, rec, nil
}

// List returns the current keys with their secrets irrecoverable,
// i.e. only the masked form, for the dashboard's GET /dashboard/api/keys.
func (s *Store) List() []*ApiKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ApiKey, len(s.snapshot))
	copy(out, s.snapshot)
	return out
}

// Revoke marks id revoked. Revocation invalidates the validation cache
// synchronously so a just-revoked key cannot continue to verify from a
// stale cache entry (the "atomic rotation with synchronous cache
// invalidation" requirement).
func (s *Store) Revoke(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `UPDATE api_keys SET revoked_at=? WHERE id=? AND revoked_at IS NULL`, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("key %q not found or already revoked", id)
	}
	s.cache.invalidateID(id)
	return s.reload()
}

// Rotate atomically revokes old and issues a replacement key, so there
// is never a moment with zero valid keys for a caller holding old.
func (s *Store) Rotate(ctx context.Context, oldID, name string) (plaintext string, rec *ApiKey, err error) {
	plaintext, rec, err = GenerateKey(name)
	if err != nil {
		return "", nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE api_keys SET revoked_at=? WHERE id=? AND revoked_at IS NULL`, time.Now().UTC(), oldID); err != nil {
		return "", nil, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO api_keys(id, name, hash, created_at) VALUES(?,?,?,?)`,
		rec.ID, rec.Name, rec.Hash, rec.CreatedAt.UTC()); err != nil {
		return "", nil, err
	}
	if err := tx.Commit(); err != nil {
		return "", nil, err
	}

	s.cache.invalidateID(oldID)
	if err := s.reload(); err != nil {
		return "", nil, err
	}
	return plaintext, rec, nil
}

// Verify checks a presented plaintext key against the store (§4.6:
// "constant-time bcrypt-style password-hash comparison"). A recent
// verdict for the same id and secret is served from the LRU cache rather than
// repeating the (deliberately slow) bcrypt comparison.
func (s *Store) Verify(ctx context.Context, plaintext string) (*ApiKey, bool) {
	id, secret, ok := parsePlaintext(plaintext)
	if !ok {
		return nil, false
	}

	rec := s.find(id)
	if rec == nil || rec.Revoked() {
		return nil, false
	}

	cacheKey := id + ":" + secret
	if valid, found := s.cache.get(cacheKey); found {
		if valid {
			s.touchLastUsed(ctx, id)
		}
		return rec, valid
	}

	valid := verifySecret(rec.Hash, secret)
	s.cache.put(cacheKey, valid)
	if valid {
		s.touchLastUsed(ctx, id)
	}
	return rec, valid
}

func (s *Store) find(id string) *ApiKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.snapshot {
		if k.ID == id {
			return k
		}
	}
	return nil
}

// touchLastUsedDebounce bounds how often a verify on the proxy hot path
// writes last_used_at to SQLite. §3 calls this tracking best-effort, not
// durable, so a write per request is unnecessary churn on a column no
// admission decision ever reads.
const touchLastUsedDebounce = time.Minute

func (s *Store) touchLastUsed(ctx context.Context, id string) {
	now := time.Now().UTC()

	s.mu.Lock()
	var k *ApiKey
	for _, candidate := range s.snapshot {
		if candidate.ID == id {
			k = candidate
			break
		}
	}
	stale := k == nil || k.LastUsedAt == nil || now.Sub(*k.LastUsedAt) >= touchLastUsedDebounce
	if k != nil && stale {
		k.LastUsedAt = &now
	}
	s.mu.Unlock()

	if !stale {
		return
	}
	_, _ = s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at=? WHERE id=?`, now, id)
}
