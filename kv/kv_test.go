package kv

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

type record struct {
	Name string `msgpack:"name"`
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInsertGetExists(t *testing.T) {
	c := qt.New(t)
	db := openTestDB(t)

	exists, err := db.Exists("k1")
	c.Assert(err, qt.IsNil)
	c.Assert(exists, qt.IsFalse)

	c.Assert(Insert(db, "k1", record{Name: "alice"}), qt.IsNil)

	exists, err = db.Exists("k1")
	c.Assert(err, qt.IsNil)
	c.Assert(exists, qt.IsTrue)

	got, err := Get[record](db, "k1")
	c.Assert(err, qt.IsNil)
	c.Assert(got.Name, qt.Equals, "alice")
}

func TestInsertFailsIfExists(t *testing.T) {
	c := qt.New(t)
	db := openTestDB(t)

	c.Assert(Insert(db, "k1", record{Name: "alice"}), qt.IsNil)
	err := Insert(db, "k1", record{Name: "bob"})
	c.Assert(err, qt.Equals, ErrAlreadyExists)
}

func TestUpsertOverwrites(t *testing.T) {
	c := qt.New(t)
	db := openTestDB(t)

	c.Assert(Upsert(db, "k1", record{Name: "alice"}), qt.IsNil)
	c.Assert(Upsert(db, "k1", record{Name: "alice-2"}), qt.IsNil)

	got, err := Get[record](db, "k1")
	c.Assert(err, qt.IsNil)
	c.Assert(got.Name, qt.Equals, "alice-2")
}

func TestRemoveAndGetNotFound(t *testing.T) {
	c := qt.New(t)
	db := openTestDB(t)

	c.Assert(Insert(db, "k1", record{Name: "alice"}), qt.IsNil)
	c.Assert(db.Remove("k1"), qt.IsNil)

	_, err := Get[record](db, "k1")
	c.Assert(err, qt.Equals, ErrNotFound)
}

func TestPopReturnsAndRemoves(t *testing.T) {
	c := qt.New(t)
	db := openTestDB(t)

	c.Assert(Insert(db, "k1", record{Name: "alice"}), qt.IsNil)
	got, err := Pop[record](db, "k1")
	c.Assert(err, qt.IsNil)
	c.Assert(got.Name, qt.Equals, "alice")

	exists, err := db.Exists("k1")
	c.Assert(err, qt.IsNil)
	c.Assert(exists, qt.IsFalse)
}

func TestBatchOpsAtomicReadRemoveUpsert(t *testing.T) {
	c := qt.New(t)
	db := openTestDB(t)

	c.Assert(Insert(db, "old", record{Name: "to-remove"}), qt.IsNil)

	reads, err := db.BatchOps(
		[]string{"old"},
		[]string{"old"},
		[]RawOp{{Key: "new", Value: record{Name: "fresh"}}},
	)
	c.Assert(err, qt.IsNil)
	c.Assert(len(reads), qt.Equals, 1)

	exists, err := db.Exists("old")
	c.Assert(err, qt.IsNil)
	c.Assert(exists, qt.IsFalse)

	got, err := Get[record](db, "new")
	c.Assert(err, qt.IsNil)
	c.Assert(got.Name, qt.Equals, "fresh")
}

func TestInitialSetupIsLazyAndIdempotent(t *testing.T) {
	c := qt.New(t)
	db := openTestDB(t)

	calls := 0
	gen := func() ([]byte, []byte, error) {
		calls++
		return []byte("pub"), []byte("priv"), nil
	}

	keys1, err := db.InitialSetup(gen)
	c.Assert(err, qt.IsNil)
	keys2, err := db.InitialSetup(gen)
	c.Assert(err, qt.IsNil)

	c.Assert(calls, qt.Equals, 1)
	c.Assert(keys1.DilithiumPublic, qt.DeepEquals, keys2.DilithiumPublic)
	c.Assert(len(keys1.SymmetricKey), qt.Equals, 32)
}
