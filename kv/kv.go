// Package kv implements the embedded, single-writer key-value facade the
// rest of the authority is built on: Get/Exists/Insert/Upsert/Remove/Pop and
// an atomic, durably-synced BatchOps, backed by cockroachdb/pebble.
package kv

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/verbalautomation/c3a/crypto"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// ErrAlreadyExists is returned by Insert when the key already exists.
var ErrAlreadyExists = errors.New("kv: key already exists")

// Well-known keys for the lazily-initialized authority material.
const (
	KeyDilithiumKeyPair = "authority::dilithium_keypair"
	KeySymmetricKey     = "authority::symmetric_key"
	KeyInvitations      = "invites"
)

// DB wraps a pebble database with typed, msgpack-encoded accessors.
type DB struct {
	pebble *pebble.DB

	// insertMu serializes Insert's existence-check-then-write so that two
	// concurrent inserts racing on the same key under the worker pool
	// (internal.WorkerPool) cannot both observe absence and both write;
	// exactly one returns ErrAlreadyExists.
	insertMu sync.Mutex
}

// Open opens (creating if necessary) a pebble database at dir.
func Open(dir string) (*DB, error) {
	p, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open kv store at %s: %w", dir, err)
	}
	return &DB{pebble: p}, nil
}

// Close closes the underlying pebble database.
func (db *DB) Close() error {
	return db.pebble.Close()
}

// Exists reports whether key is present.
func (db *DB) Exists(key string) (bool, error) {
	v, closer, err := db.pebble.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	defer closer.Close()
	_ = v
	return true, nil
}

// Get fetches and msgpack-decodes the value stored under key into out.
func Get[T any](db *DB, key string) (T, error) {
	var out T
	v, closer, err := db.pebble.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return out, ErrNotFound
		}
		return out, err
	}
	defer closer.Close()
	if err := msgpack.Unmarshal(v, &out); err != nil {
		return out, fmt.Errorf("decode value for key %q: %w", key, err)
	}
	return out, nil
}

// Insert stores value under key, failing if the key already exists. The
// existence check and the write are serialized against every other Insert
// on db, so concurrent inserts racing on the same key yield exactly one
// success and ErrAlreadyExists for the rest.
func Insert[T any](db *DB, key string, value T) error {
	db.insertMu.Lock()
	defer db.insertMu.Unlock()

	exists, err := db.Exists(key)
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyExists
	}
	return db.upsertRaw(key, value)
}

// Upsert stores value under key unconditionally.
func Upsert[T any](db *DB, key string, value T) error {
	return db.upsertRaw(key, value)
}

func (db *DB) upsertRaw(key string, value any) error {
	b, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value for key %q: %w", key, err)
	}
	return db.pebble.Set([]byte(key), b, pebble.Sync)
}

// Remove deletes key. It does not fail if key is absent.
func (db *DB) Remove(key string) error {
	return db.pebble.Delete([]byte(key), pebble.Sync)
}

// Pop fetches and deletes the value stored under key, in a single durable
// operation.
func Pop[T any](db *DB, key string) (T, error) {
	var out T
	batch := db.pebble.NewIndexedBatch()
	v, closer, err := batch.Get([]byte(key))
	if err != nil {
		_ = batch.Close()
		if errors.Is(err, pebble.ErrNotFound) {
			return out, ErrNotFound
		}
		return out, err
	}
	if err := msgpack.Unmarshal(v, &out); err != nil {
		_ = closer.Close()
		_ = batch.Close()
		return out, fmt.Errorf("decode value for key %q: %w", key, err)
	}
	_ = closer.Close()
	if err := batch.Delete([]byte(key), nil); err != nil {
		_ = batch.Close()
		return out, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return out, err
	}
	return out, nil
}

// RawOp is a single write recorded into a BatchOps call.
type RawOp struct {
	Key   string
	Value any
}

// BatchOps performs reads (against the live DB), then removes, then
// upserts, committed as a single atomic, durably-synced batch — matching
// the ordering of the original fjall-backed implementation's batch_ops.
func (db *DB) BatchOps(reads []string, removes []string, upserts []RawOp) (map[string][]byte, error) {
	readResults := make(map[string][]byte, len(reads))
	for _, k := range reads {
		v, closer, err := db.pebble.Get([]byte(k))
		if err != nil {
			if errors.Is(err, pebble.ErrNotFound) {
				continue
			}
			return nil, err
		}
		readResults[k] = append([]byte(nil), v...)
		_ = closer.Close()
	}

	batch := db.pebble.NewBatch()
	for _, k := range removes {
		if err := batch.Delete([]byte(k), nil); err != nil {
			_ = batch.Close()
			return nil, err
		}
	}
	for _, op := range upserts {
		b, err := msgpack.Marshal(op.Value)
		if err != nil {
			_ = batch.Close()
			return nil, fmt.Errorf("encode value for key %q: %w", op.Key, err)
		}
		if err := batch.Set([]byte(op.Key), b, nil); err != nil {
			_ = batch.Close()
			return nil, err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, err
	}
	return readResults, nil
}

// AuthorityKeys is the authority's own long-lived key material: the
// Dilithium5 signing keypair and the symmetric AEAD key, lazily generated
// on first open.
type AuthorityKeys struct {
	DilithiumPublic  []byte `msgpack:"dpub"`
	DilithiumPrivate []byte `msgpack:"dpriv"`
	SymmetricKey     []byte `msgpack:"sym"`
}

// InitialSetup returns the authority's key material, generating and
// durably persisting it on first call.
func (db *DB) InitialSetup(generateDilithium func() ([]byte, []byte, error)) (*AuthorityKeys, error) {
	keys, err := Get[AuthorityKeys](db, KeyDilithiumKeyPair)
	if err == nil {
		return &keys, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	pub, priv, err := generateDilithium()
	if err != nil {
		return nil, fmt.Errorf("generate authority dilithium keypair: %w", err)
	}
	keys = AuthorityKeys{
		DilithiumPublic:  pub,
		DilithiumPrivate: priv,
		// The zero-initialized buffer is allocated fresh by GenerateSymmetricKey;
		// there is no uninitialized-memory read here.
		SymmetricKey: crypto.GenerateSymmetricKey(),
	}
	if err := Insert(db, KeyDilithiumKeyPair, keys); err != nil {
		return nil, err
	}
	return &keys, nil
}
