package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCount(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UpdateAttribute("current_city", "Beijing", "basic_info")
	require.NoError(t, err)
	id, err := s.CreateEntity(EntityPet, "Whiskers", nil)
	require.NoError(t, err)
	addEvent(t, s, EventParams{Type: EventOther, Description: "note"})
	_, err = s.RelateEntities(id, id, "self")
	require.NoError(t, err)

	stats, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, Stats{Attributes: 1, Entities: 1, Events: 1, Relations: 1}, stats)

	// Soft-deleted rows drop out of the counts.
	_, err = s.DeleteAttribute("current_city")
	require.NoError(t, err)
	stats, err = s.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Attributes)
}

func TestUserIsolation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")

	alice, err := New(path, WithUser("alice"))
	require.NoError(t, err)
	defer alice.Close()

	_, err = alice.UpdateAttribute("current_city", "Beijing", "")
	require.NoError(t, err)
	alice.Close()

	bob, err := New(path, WithUser("bob"))
	require.NoError(t, err)
	defer bob.Close()

	attrs, err := bob.QueryAttributes(nil, "")
	require.NoError(t, err)
	assert.Empty(t, attrs)
}

func TestMigration_AddsDeletedColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	// A database created before soft deletes existed.
	legacy, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = legacy.Exec(`
		CREATE TABLE user_attributes (
			user_id TEXT NOT NULL DEFAULT 'default',
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			category TEXT,
			confidence REAL DEFAULT 1.0,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, key)
		);
		INSERT INTO user_attributes (user_id, key, value, updated_at)
		VALUES ('default', 'current_city', 'Beijing', 1700000000000);
	`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	s, err := New(path)
	require.NoError(t, err)
	defer s.Close()

	attrs, err := s.QueryAttributes(nil, "")
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	assert.Equal(t, "Beijing", attrs[0].Value)

	// The migrated row can be soft-deleted like any other.
	res, err := s.DeleteAttribute("current_city")
	require.NoError(t, err)
	assert.True(t, res.Deleted)
}

func TestExportImport_RoundTrip(t *testing.T) {
	src := newTestStore(t)

	_, err := src.UpdateAttribute("current_city", "Beijing", "basic_info")
	require.NoError(t, err)
	pet, err := src.CreateEntity(EntityPet, "Whiskers", map[string]any{"species": "cat"})
	require.NoError(t, err)
	owner, err := src.CreateEntity(EntityPerson, "Li Wei", nil)
	require.NoError(t, err)
	addEvent(t, src, EventParams{Type: EventMilestone, Description: "adopted Whiskers",
		RelatedEntityIDs: []int64{pet}, Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})
	_, err = src.RelateEntities(owner, pet, "owns")
	require.NoError(t, err)
	// Deleted rows travel too.
	_, err = src.UpdateAttribute("temp", "x", "")
	require.NoError(t, err)
	_, err = src.DeleteAttribute("temp")
	require.NoError(t, err)

	data, err := src.Export()
	require.NoError(t, err)

	dst := newTestStore(t)
	require.NoError(t, dst.Import(data))

	attrs, err := dst.QueryAttributes(nil, "")
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	assert.Equal(t, "Beijing", attrs[0].Value)

	// Entity ids are preserved, so timeline references stay intact.
	timeline, err := dst.EntityTimeline(pet, 0)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, "adopted Whiskers", timeline[0].Description)

	relations, err := dst.ListRelations(owner)
	require.NoError(t, err)
	require.Len(t, relations, 1)
	assert.Equal(t, "owns", relations[0].RelationType)

	// The soft-deleted attribute stays deleted after import.
	gone, err := dst.QueryAttributes([]string{"temp"}, "")
	require.NoError(t, err)
	assert.Empty(t, gone)

	roundTripped, err := dst.Export()
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(roundTripped))
}

func TestImport_EmptyDataIsNoOp(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UpdateAttribute("current_city", "Beijing", "")
	require.NoError(t, err)
	require.NoError(t, s.Import(nil))

	attrs, err := s.QueryAttributes(nil, "")
	require.NoError(t, err)
	assert.Len(t, attrs, 1)
}

type recordingHook struct {
	ops chan string
}

func (h *recordingHook) AfterPersist(op string) {
	h.ops <- op
}

func TestHook_FiresAfterWrites(t *testing.T) {
	s := newTestStore(t)
	hook := &recordingHook{ops: make(chan string, 16)}
	s.SetHook(hook)

	_, err := s.UpdateAttribute("current_city", "Beijing", "")
	require.NoError(t, err)

	select {
	case op := <-hook.ops:
		assert.Equal(t, "update_attribute", op)
	case <-time.After(2 * time.Second):
		t.Fatal("hook did not fire")
	}
}

func TestHook_DoesNotFireOnNoOpDelete(t *testing.T) {
	s := newTestStore(t)
	hook := &recordingHook{ops: make(chan string, 16)}
	s.SetHook(hook)

	_, err := s.DeleteAttribute("never_existed")
	require.NoError(t, err)

	select {
	case op := <-hook.ops:
		t.Fatalf("unexpected hook call: %s", op)
	case <-time.After(100 * time.Millisecond):
	}
}

type panickyHook struct{}

func (panickyHook) AfterPersist(string) { panic("mirror exploded") }

func TestHook_PanicDoesNotFailWrites(t *testing.T) {
	s := newTestStore(t)
	s.SetHook(panickyHook{})

	_, err := s.UpdateAttribute("current_city", "Beijing", "")
	require.NoError(t, err)

	attrs, err := s.QueryAttributes(nil, "")
	require.NoError(t, err)
	assert.Len(t, attrs, 1)
}
